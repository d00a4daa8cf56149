package udp

import (
	"encoding/binary"
	"net/netip"

	"github.com/torrtrack/torrtrack/bittorrent"
)

// Simple Proxy Protocol: a fixed-size header a trusted UDP proxy prepends
// to a forwarded datagram so the tracker can recover the real client
// address/port instead of attributing the request to the proxy itself.
const (
	sppHeaderSize = 38
	sppMagic      = 0x56EC
)

var errMalformedSPPHeader = bittorrent.ClientError("malformed simple proxy protocol header")

// sppHeader is the decoded form of a Simple Proxy Protocol header.
type sppHeader struct {
	clientAddr netip.Addr
	clientPort uint16
	proxyAddr  netip.Addr
	proxyPort  uint16
}

// hasSPPMagic reports whether data begins with the Simple Proxy Protocol
// magic bytes.
func hasSPPMagic(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x56 && data[1] == 0xEC
}

// parseSPPHeader parses a Simple Proxy Protocol header from the front of
// data. found is false (with a nil error) when data doesn't begin with the
// magic at all, which callers treat as "no SPP header, use the packet as
// is." err is non-nil only when the magic is present but the packet is too
// short to hold a full header.
func parseSPPHeader(data []byte) (header sppHeader, payloadOffset int, found bool, err error) {
	if !hasSPPMagic(data) {
		return sppHeader{}, 0, false, nil
	}
	if len(data) < sppHeaderSize {
		return sppHeader{}, 0, false, errMalformedSPPHeader
	}

	header.clientAddr = parseSPPAddress(data[2:18])
	header.proxyAddr = parseSPPAddress(data[18:34])
	header.clientPort = binary.BigEndian.Uint16(data[34:36])
	header.proxyPort = binary.BigEndian.Uint16(data[36:38])

	return header, sppHeaderSize, true, nil
}

// parseSPPAddress decodes a 16-byte address field, recognizing the
// IPv4-mapped ::ffff:a.b.c.d form used to carry an IPv4 address.
func parseSPPAddress(b []byte) netip.Addr {
	var a [16]byte
	copy(a[:], b)
	return netip.AddrFrom16(a).Unmap()
}
