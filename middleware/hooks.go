package middleware

import (
	"context"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/storage"
)

// Hook abstracts anything that needs to inspect or mutate a request/response
// pair as it flows through the tracker's decision logic.
type Hook interface {
	HandleAnnounce(context.Context, *bittorrent.AnnounceRequest, *bittorrent.AnnounceResponse) (context.Context, error)
	HandleScrape(context.Context, *bittorrent.ScrapeRequest, *bittorrent.ScrapeResponse) (context.Context, error)
}

type skipSwarmInteraction struct{}

// SkipSwarmInteractionKey, when set to a non-nil context value, causes the
// swarm-interaction hook to skip — used for announces that should not
// mutate the swarm (e.g. after a validation failure upstream has already
// been handled another way).
var SkipSwarmInteractionKey = skipSwarmInteraction{}

// swarmInteractionHook is the always-present post-hook that applies an
// announce's effect to the swarm store.
type swarmInteractionHook struct {
	store storage.PeerStore
}

func (h *swarmInteractionHook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	if ctx.Value(SkipSwarmInteractionKey) != nil {
		return ctx, nil
	}

	var err error
	switch {
	case req.Event == bittorrent.Stopped:
		err = h.store.DeleteSeeder(req.InfoHash, req.Peer)
		if err != nil && err != storage.ErrResourceDoesNotExist {
			return ctx, err
		}
		err = h.store.DeleteLeecher(req.InfoHash, req.Peer)
		if err != nil && err != storage.ErrResourceDoesNotExist {
			return ctx, err
		}
		return ctx, nil
	case req.Event == bittorrent.Completed:
		return ctx, h.store.GraduateLeecher(req.InfoHash, req.Peer)
	case req.Left == 0:
		// An already-complete peer re-announcing without event=completed
		// (e.g. a keepalive). Treated as a plain seed refresh rather than a
		// graduation, so it never double-counts a snatch.
		return ctx, h.store.PutSeeder(req.InfoHash, req.Peer)
	default:
		return ctx, h.store.PutLeecher(req.InfoHash, req.Peer)
	}
}

func (h *swarmInteractionHook) HandleScrape(ctx context.Context, _ *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	return ctx, nil
}

type skipResponseHook struct{}

// SkipResponseHookKey, when set to a non-nil context value, causes the
// response-building hook to skip.
var SkipResponseHookKey = skipResponseHook{}

// responseHook is the always-present pre-hook that fills in the swarm-state
// fields of a response: scrape counts and a peer list for announces.
type responseHook struct {
	store storage.PeerStore
}

func (h *responseHook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) (context.Context, error) {
	if ctx.Value(SkipResponseHookKey) != nil {
		return ctx, nil
	}

	scrape := h.store.ScrapeSwarm(req.InfoHash, req.AddressFamily())
	resp.Incomplete = scrape.Incomplete
	resp.Complete = scrape.Complete

	return ctx, h.appendPeers(req, resp)
}

func (h *responseHook) appendPeers(req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) error {
	if req.Event == bittorrent.Stopped {
		return nil
	}

	seeding := req.Left == 0
	peers, err := h.store.AnnouncePeers(req.InfoHash, seeding, int(req.NumWant), req.Peer)
	if err != nil && err != storage.ErrResourceDoesNotExist {
		return err
	}

	// A client that is the only participant in a swarm still expects to see
	// its own entry reflected back.
	if len(peers) == 0 {
		if seeding {
			resp.Complete++
		} else {
			resp.Incomplete++
		}
		peers = append(peers, req.Peer)
	}

	switch req.AddressFamily() {
	case bittorrent.IPv4:
		resp.IPv4Peers = peers
	case bittorrent.IPv6:
		resp.IPv6Peers = peers
	}

	return nil
}

func (h *responseHook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, resp *bittorrent.ScrapeResponse) (context.Context, error) {
	if ctx.Value(SkipResponseHookKey) != nil {
		return ctx, nil
	}

	af := bittorrent.IPv4
	if v6, _ := ctx.Value(ScrapeIsIPv6Key).(bool); v6 {
		af = bittorrent.IPv6
	}

	for _, ih := range req.InfoHashes {
		resp.Files = append(resp.Files, h.store.ScrapeSwarm(ih, af))
	}

	return ctx, nil
}

type scrapeAddressType struct{}

// ScrapeIsIPv6Key carries whether a scrape's source was IPv6, so the
// response hook scrapes the matching half of the sharded swarm store.
// Frontends set this on the context before calling HandleScrape.
var ScrapeIsIPv6Key = scrapeAddressType{}

type scrapeSourceAddr struct{}

// ScrapeSourceAddrKey carries the netip.Addr a scrape request arrived from,
// so hooks that need to admission-gate or log scrapes by source (e.g. the
// throttle hook) don't need ScrapeRequest itself to carry a source address.
// Frontends set this on the context before calling HandleScrape.
var ScrapeSourceAddrKey = scrapeSourceAddr{}
