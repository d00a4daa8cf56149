// Package policy implements the sharded whitelist, blacklist, key, and user
// tables shared by the announce/scrape validation hooks, each backed by an
// append-only update journal the writeback pipeline drains.
package policy

import "sync"

// Action describes what happened to an entry.
type Action uint8

const (
	// Add records that an entry was inserted or replaced.
	Add Action = iota
	// Remove records that an entry was deleted.
	Remove
	// Mutate records that an existing entry's payload changed in place.
	Mutate
)

// UpdateEntry is a single journaled change to a policy table, carrying
// enough of the entry's identity and payload for the writeback pipeline to
// upsert or delete the corresponding row.
type UpdateEntry struct {
	Action  Action
	Key     string
	Payload interface{}
}

// Journal is an append-only, coalescing queue of UpdateEntry values. The
// same Key overwrites its prior pending entry, so only the latest state per
// identity needs to be drained.
type Journal struct {
	mu      sync.Mutex
	pending map[string]UpdateEntry
	order   []string
}

// NewJournal allocates an empty Journal.
func NewJournal() *Journal {
	return &Journal{pending: make(map[string]UpdateEntry)}
}

// Record appends (or coalesces) an update.
func (j *Journal) Record(e UpdateEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.pending[e.Key]; !exists {
		j.order = append(j.order, e.Key)
	}
	j.pending[e.Key] = e
}

// Drain atomically swaps the journal for an empty one and returns everything
// that had been recorded, in the order each key was first touched.
func (j *Journal) Drain() []UpdateEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]UpdateEntry, 0, len(j.order))
	for _, k := range j.order {
		out = append(out, j.pending[k])
	}
	j.pending = make(map[string]UpdateEntry)
	j.order = nil
	return out
}

// Len reports the number of pending entries, for stats reporting.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}
