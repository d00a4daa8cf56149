package policy

import (
	"encoding/hex"
	"sync"

	"github.com/torrtrack/torrtrack/bittorrent"
)

const hashSetShardCount = 32

// HashSet is a sharded set of InfoHashes, used for both the whitelist and
// the blacklist — the two tables differ only in how the validation hook
// interprets membership, not in their storage shape.
type HashSet struct {
	shards  [hashSetShardCount]map[bittorrent.InfoHash]struct{}
	locks   [hashSetShardCount]sync.RWMutex
	Journal *Journal
}

// NewHashSet allocates an empty HashSet.
func NewHashSet() *HashSet {
	hs := &HashSet{Journal: NewJournal()}
	for i := range hs.shards {
		hs.shards[i] = make(map[bittorrent.InfoHash]struct{})
	}
	return hs
}

func (hs *HashSet) shard(ih bittorrent.InfoHash) int {
	return int(ih[0]) % hashSetShardCount
}

// Add inserts ih into the set and journals the change.
func (hs *HashSet) Add(ih bittorrent.InfoHash) {
	i := hs.shard(ih)
	hs.locks[i].Lock()
	hs.shards[i][ih] = struct{}{}
	hs.locks[i].Unlock()

	hs.Journal.Record(UpdateEntry{Action: Add, Key: hex.EncodeToString(ih[:])})
}

// Remove deletes ih from the set and journals the change.
func (hs *HashSet) Remove(ih bittorrent.InfoHash) {
	i := hs.shard(ih)
	hs.locks[i].Lock()
	delete(hs.shards[i], ih)
	hs.locks[i].Unlock()

	hs.Journal.Record(UpdateEntry{Action: Remove, Key: hex.EncodeToString(ih[:])})
}

// Contains reports whether ih is present.
func (hs *HashSet) Contains(ih bittorrent.InfoHash) bool {
	i := hs.shard(ih)
	hs.locks[i].RLock()
	defer hs.locks[i].RUnlock()
	_, ok := hs.shards[i][ih]
	return ok
}

// Len reports the total number of entries across all shards.
func (hs *HashSet) Len() int {
	n := 0
	for i := range hs.shards {
		hs.locks[i].RLock()
		n += len(hs.shards[i])
		hs.locks[i].RUnlock()
	}
	return n
}
