// Package cache defines the optional external peer-count cache: a hint,
// mirrored from the swarm store into Redis or Memcache, that lets other
// processes sharing a tracker deployment answer "how big is this swarm"
// without hitting the authoritative in-memory store.
package cache

import (
	"encoding/hex"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
)

// Counts is a (seeds, peers) pair recorded for one swarm.
type Counts struct {
	Seeds uint32
	Peers uint32
}

// Cache mirrors a swarm's seed/peer counts in an external KV store. A
// Cache is never authoritative: callers must log failures and continue,
// never fail an announce or scrape because the cache is unreachable.
type Cache interface {
	// SetTorrentPeers records seeds/peers counts for infoHash, expiring
	// after ttl.
	SetTorrentPeers(infoHash bittorrent.InfoHash, seeds, peers uint32, ttl time.Duration) error

	// GetTorrentPeers returns the last recorded counts for infoHash. ok is
	// false on a cache miss or expired entry.
	GetTorrentPeers(infoHash bittorrent.InfoHash) (seeds, peers uint32, ok bool, err error)

	// SetTorrentPeersBatch records counts for many swarms in one round
	// trip where the backend supports it.
	SetTorrentPeersBatch(entries map[bittorrent.InfoHash]Counts, ttl time.Duration) error
}

// Key builds the "<prefix>t:<info_hash-hex>" layout shared by every
// backend.
func Key(prefix string, infoHash bittorrent.InfoHash) string {
	return prefix + "t:" + hex.EncodeToString(infoHash[:])
}
