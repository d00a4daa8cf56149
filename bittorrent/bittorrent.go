// Package bittorrent implements the protocol-agnostic core of a BitTorrent
// tracker: the types shared by the UDP and HTTP frontends and by everything
// downstream of them.
package bittorrent

import (
	"net/netip"
	"time"
)

// PeerID represents a peer ID.
type PeerID [20]byte

// PeerIDFromBytes creates a PeerID from a byte slice.
//
// It panics if b is not 20 bytes long.
func PeerIDFromBytes(b []byte) PeerID {
	if len(b) != 20 {
		panic("bittorrent: peer ID must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], b)
	return PeerID(buf)
}

// PeerIDFromString creates a PeerID from a string.
//
// It panics if s is not 20 bytes long.
func PeerIDFromString(s string) PeerID {
	if len(s) != 20 {
		panic("bittorrent: peer ID must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], s)
	return PeerID(buf)
}

// ClientID represents the part of a PeerID that identifies a Peer's client
// software.
type ClientID [6]byte

// ClientID extracts the client identifier from a PeerID, following the
// Azureus-style convention of a leading '-' before a two-letter client code.
func (p PeerID) ClientID() ClientID {
	var cid ClientID
	if p[0] == '-' {
		copy(cid[:], p[1:7])
	} else {
		copy(cid[:], p[:6])
	}
	return cid
}

// InfoHash represents a content fingerprint.
type InfoHash [20]byte

// InfoHashFromBytes creates an InfoHash from a byte slice.
//
// It panics if b is not 20 bytes long.
func InfoHashFromBytes(b []byte) InfoHash {
	if len(b) != 20 {
		panic("bittorrent: infohash must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], b)
	return InfoHash(buf)
}

// InfoHashFromString creates an InfoHash from a string.
//
// It panics if s is not 20 bytes long.
func InfoHashFromString(s string) InfoHash {
	if len(s) != 20 {
		panic("bittorrent: infohash must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], s)
	return InfoHash(buf)
}

// AddressFamily represents the address family of a Peer's endpoint.
type AddressFamily uint8

const (
	// IPv4 is the IPv4 address family.
	IPv4 AddressFamily = iota
	// IPv6 is the IPv6 address family.
	IPv6
)

func (af AddressFamily) String() string {
	if af == IPv6 {
		return "IPv6"
	}
	return "IPv4"
}

// Peer represents the connection details of a peer returned in an announce
// response.
type Peer struct {
	ID       PeerID
	AddrPort netip.AddrPort
}

// AddressFamily reports whether the Peer's address is IPv4 or IPv6.
func (p Peer) AddressFamily() AddressFamily {
	if p.AddrPort.Addr().Is4() || p.AddrPort.Addr().Is4In6() {
		return IPv4
	}
	return IPv6
}

// Equal reports whether p and x are the same peer, identity and endpoint.
func (p Peer) Equal(x Peer) bool { return p.EqualEndpoint(x) && p.ID == x.ID }

// EqualEndpoint reports whether p and x have the same endpoint.
func (p Peer) EqualEndpoint(x Peer) bool { return p.AddrPort == x.AddrPort }

// Event represents an event reported by a BitTorrent client in an announce.
type Event uint8

const (
	// None is sent when a client announces because a timer elapsed, not
	// because of any state transition.
	None Event = iota
	// Started is sent when a client joins a swarm.
	Started
	// Stopped is sent when a client leaves a swarm.
	Stopped
	// Completed is sent once, when a client finishes downloading.
	Completed
)

var eventToString = map[Event]string{
	None:      "",
	Started:   "started",
	Stopped:   "stopped",
	Completed: "completed",
}

var stringToEvent = map[string]Event{
	"":          None,
	"started":   Started,
	"stopped":   Stopped,
	"completed": Completed,
}

// ErrUnknownEvent is returned when NewEvent is given an unrecognized string.
var ErrUnknownEvent = ClientError("unknown event")

// NewEvent returns the Event represented by the given string.
func NewEvent(s string) (Event, error) {
	if e, ok := stringToEvent[s]; ok {
		return e, nil
	}
	return None, ErrUnknownEvent
}

// String implements Stringer for Event.
func (e Event) String() string {
	if s, ok := eventToString[e]; ok {
		return s
	}
	return "unknown"
}

// AnnounceRequest represents the parsed parameters of an announce request.
type AnnounceRequest struct {
	Event      Event
	InfoHash   InfoHash
	Compact    bool
	NumWant    uint32
	Left       uint64
	Downloaded uint64
	Uploaded   uint64

	// NumWantProvided reports whether the client explicitly set numwant.
	NumWantProvided bool
	// EventProvided reports whether the client explicitly set an event.
	EventProvided bool
	// IPProvided reports whether the client's address came from spoofable
	// request data rather than the transport's source address.
	IPProvided bool

	// Key, if non-empty, is the external 40-hex authentication key taken
	// from the HTTP path segment or UDP BEP 41 URL data.
	Key string
	// UserKey, if non-empty, identifies the announcing user when user mode
	// is enabled.
	UserKey string

	Peer
	Params Params
}

// AnnounceResponse represents the parameters used to build an announce
// response.
type AnnounceResponse struct {
	Compact     bool
	Complete    uint32
	Incomplete  uint32
	Interval    time.Duration
	MinInterval time.Duration
	IPv4Peers   []Peer
	IPv6Peers   []Peer
}

// ScrapeRequest represents the parsed parameters of a scrape request.
type ScrapeRequest struct {
	InfoHashes []InfoHash
	Params     Params
}

// Scrape represents the state of a single swarm as returned by a scrape.
type Scrape struct {
	InfoHash   InfoHash
	Complete   uint32
	Incomplete uint32
	Snatches   uint32
}

// ScrapeResponse represents the parameters used to build a scrape response.
type ScrapeResponse struct {
	Files []Scrape
}

// ClientError is an error that should be exposed to the client verbatim
// over the wire, as opposed to an internal error that should be logged and
// replaced with a generic message.
type ClientError string

// Error implements the error interface for ClientError.
func (c ClientError) Error() string { return string(c) }
