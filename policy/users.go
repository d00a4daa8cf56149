package policy

import (
	"encoding/hex"
	"sync"

	"github.com/torrtrack/torrtrack/bittorrent"
)

const userShardCount = 32

// UserID identifies a user independently of the key used to announce on
// their behalf.
type UserID [20]byte

// UserEntry tracks one user's aggregate transfer stats and which swarms
// they're currently active in.
type UserEntry struct {
	Key        Key
	ID         UserID
	Uploaded   uint64
	Downloaded uint64
	Completed  uint64
	UpdatedAt  int64
	Active     bool

	TorrentsActive map[bittorrent.InfoHash]struct{}
}

func newUserEntry(key Key) *UserEntry {
	return &UserEntry{Key: key, TorrentsActive: make(map[bittorrent.InfoHash]struct{})}
}

// snapshot returns a value copy of the entry, safe to journal or hand to a
// caller outside the table's lock.
func (e *UserEntry) snapshot() UserEntry {
	cp := *e
	cp.TorrentsActive = make(map[bittorrent.InfoHash]struct{}, len(e.TorrentsActive))
	for ih := range e.TorrentsActive {
		cp.TorrentsActive[ih] = struct{}{}
	}
	return cp
}

// Users is a sharded table of UserEntry values, keyed by the user's
// announce key.
type Users struct {
	shards  [userShardCount]map[Key]*UserEntry
	locks   [userShardCount]sync.Mutex
	Journal *Journal
}

// NewUsers allocates an empty Users table.
func NewUsers() *Users {
	u := &Users{Journal: NewJournal()}
	for i := range u.shards {
		u.shards[i] = make(map[Key]*UserEntry)
	}
	return u
}

func (u *Users) shard(key Key) int {
	return int(key[0]) % userShardCount
}

// Add inserts a new user entry, replacing any existing one for the key.
func (u *Users) Add(entry UserEntry) {
	i := u.shard(entry.Key)
	cp := entry
	if cp.TorrentsActive == nil {
		cp.TorrentsActive = make(map[bittorrent.InfoHash]struct{})
	}

	u.locks[i].Lock()
	u.shards[i][entry.Key] = &cp
	u.locks[i].Unlock()

	u.Journal.Record(UpdateEntry{Action: Add, Key: hex.EncodeToString(entry.Key[:]), Payload: cp.snapshot()})
}

// Lookup returns the entry for key, if any.
func (u *Users) Lookup(key Key) (UserEntry, bool) {
	i := u.shard(key)
	u.locks[i].Lock()
	defer u.locks[i].Unlock()

	e, ok := u.shards[i][key]
	if !ok {
		return UserEntry{}, false
	}
	return e.snapshot(), true
}

// RecordAnnounce folds an announce's transfer deltas into a user's running
// totals and marks the swarm active, journaling the resulting state.
func (u *Users) RecordAnnounce(key Key, ih bittorrent.InfoHash, uploaded, downloaded uint64, completed bool, updatedAt int64) bool {
	i := u.shard(key)
	u.locks[i].Lock()
	e, ok := u.shards[i][key]
	if !ok {
		u.locks[i].Unlock()
		return false
	}

	e.Uploaded += uploaded
	e.Downloaded += downloaded
	if completed {
		e.Completed++
	}
	e.UpdatedAt = updatedAt
	e.Active = true
	e.TorrentsActive[ih] = struct{}{}
	snap := e.snapshot()
	u.locks[i].Unlock()

	u.Journal.Record(UpdateEntry{Action: Mutate, Key: hex.EncodeToString(key[:]), Payload: snap})
	return true
}

// RecordStop marks a swarm inactive for the user identified by key, as
// happens when a client announces event=stopped.
func (u *Users) RecordStop(key Key, ih bittorrent.InfoHash) bool {
	i := u.shard(key)
	u.locks[i].Lock()
	e, ok := u.shards[i][key]
	if !ok {
		u.locks[i].Unlock()
		return false
	}

	delete(e.TorrentsActive, ih)
	e.Active = len(e.TorrentsActive) > 0
	snap := e.snapshot()
	u.locks[i].Unlock()

	u.Journal.Record(UpdateEntry{Action: Mutate, Key: hex.EncodeToString(key[:]), Payload: snap})
	return true
}
