package http

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/julienschmidt/httprouter"

	"github.com/torrtrack/torrtrack/bittorrent"
)

// ParseAnnounce parses a bittorrent.AnnounceRequest from an http.Request.
//
// The key and user key, if present, are taken from the route's :key and
// :userkey path parameters rather than the query string, per BEP semantics
// extended with the 40-hex key-mode authentication scheme.
func ParseAnnounce(r *http.Request, ps httprouter.Params, cfg Config) (*bittorrent.AnnounceRequest, error) {
	qp, err := bittorrent.NewQueryParams(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	request := &bittorrent.AnnounceRequest{
		Params:  qp,
		Key:     ps.ByName("key"),
		UserKey: ps.ByName("userkey"),
	}

	eventStr, _ := qp.String("event")
	request.Event, err = bittorrent.NewEvent(eventStr)
	if err != nil {
		return nil, bittorrent.ClientError("failed to provide valid client event")
	}
	request.EventProvided = eventStr != ""

	compactStr, _ := qp.String("compact")
	request.Compact = compactStr != "" && compactStr != "0"

	infoHashes := qp.InfoHashes()
	if len(infoHashes) < 1 {
		return nil, bittorrent.ClientError("no info_hash parameter supplied")
	}
	if len(infoHashes) > 1 {
		return nil, bittorrent.ClientError("multiple info_hash parameters supplied")
	}
	request.InfoHash = infoHashes[0]

	peerIDStr, ok := qp.String("peer_id")
	if !ok {
		return nil, bittorrent.ClientError("failed to parse parameter: peer_id")
	}
	if len(peerIDStr) != 20 {
		return nil, bittorrent.ClientError("failed to provide valid peer_id")
	}
	request.ID = bittorrent.PeerIDFromString(peerIDStr)

	request.Left, err = qp.Uint64("left")
	if err != nil {
		return nil, bittorrent.ClientError("failed to parse parameter: left")
	}

	request.Downloaded, err = qp.Uint64("downloaded")
	if err != nil {
		return nil, bittorrent.ClientError("failed to parse parameter: downloaded")
	}

	request.Uploaded, err = qp.Uint64("uploaded")
	if err != nil {
		return nil, bittorrent.ClientError("failed to parse parameter: uploaded")
	}

	if numwantStr, ok := qp.String("numwant"); ok && numwantStr != "" {
		numwant, err := qp.Uint64("numwant")
		if err != nil {
			return nil, bittorrent.ClientError("failed to parse parameter: numwant")
		}
		request.NumWant = uint32(numwant)
		request.NumWantProvided = true
	}

	port, err := qp.Uint64("port")
	if err != nil {
		return nil, bittorrent.ClientError("failed to parse parameter: port")
	}
	if port == 0 && request.Event != bittorrent.Stopped {
		return nil, bittorrent.ClientError("port must be nonzero unless event is stopped")
	}

	addr, provided, err := requestedIP(r, qp, cfg)
	if err != nil {
		return nil, err
	}
	request.IPProvided = provided
	request.AddrPort = netip.AddrPortFrom(addr, uint16(port))

	cfg.sanitizer().SanitizeAnnounce(request)

	return request, nil
}

// ParseScrape parses a bittorrent.ScrapeRequest from an http.Request.
func ParseScrape(r *http.Request, ps httprouter.Params, cfg Config) (*bittorrent.ScrapeRequest, error) {
	qp, err := bittorrent.NewQueryParams(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	infoHashes := qp.InfoHashes()
	if len(infoHashes) < 1 {
		return nil, bittorrent.ClientError("no info_hash parameter supplied")
	}

	request := &bittorrent.ScrapeRequest{
		InfoHashes: infoHashes,
		Params:     qp,
	}
	cfg.sanitizer().SanitizeScrape(request)

	return request, nil
}

// requestedIP determines the client IP for a BitTorrent request.
//
// It prefers, in order: a spoofed ip/ipv4/ipv6 query parameter (only if
// AllowIPSpoofing is set), the configured trusted proxy header (only if
// non-private/non-loopback, unless TrustedProxies is set), then the socket
// peer address.
func requestedIP(r *http.Request, p bittorrent.Params, cfg Config) (addr netip.Addr, provided bool, err error) {
	if cfg.AllowIPSpoofing {
		for _, key := range []string{"ip", "ipv4", "ipv6"} {
			if ipstr, ok := p.String(key); ok {
				if parsed, perr := netip.ParseAddr(ipstr); perr == nil {
					return parsed.Unmap(), true, nil
				}
			}
		}
	}

	if cfg.RealIPHeader != "" {
		if ipstr := r.Header.Get(cfg.RealIPHeader); ipstr != "" {
			parsed, perr := netip.ParseAddr(ipstr)
			if perr == nil {
				parsed = parsed.Unmap()
				if cfg.TrustedProxies || !(parsed.IsPrivate() || parsed.IsLoopback()) {
					return parsed, false, nil
				}
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, false, bittorrent.ClientError("failed to parse peer IP address")
	}

	parsed, perr := netip.ParseAddr(host)
	if perr != nil {
		return netip.Addr{}, false, bittorrent.ClientError("failed to parse peer IP address")
	}

	return parsed.Unmap(), false, nil
}
