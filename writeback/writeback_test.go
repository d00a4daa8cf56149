package writeback

import (
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

// fakeStore is an in-memory Store used to exercise the ticking loop without
// a real database.
type fakeStore struct {
	mu        sync.Mutex
	whitelist map[string]struct{}
	saves     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{whitelist: make(map[string]struct{})}
}

func (s *fakeStore) LoadWhitelist() ([]bittorrent.InfoHash, error) { return nil, nil }
func (s *fakeStore) LoadBlacklist() ([]bittorrent.InfoHash, error) { return nil, nil }
func (s *fakeStore) LoadKeys() (map[policy.Key]policy.KeyEntry, error) {
	return nil, nil
}
func (s *fakeStore) LoadUsers() ([]policy.UserEntry, error)                { return nil, nil }
func (s *fakeStore) LoadTorrents() (map[bittorrent.InfoHash]uint32, error) { return nil, nil }

func (s *fakeStore) SaveWhitelist(entries []policy.UpdateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for _, e := range entries {
		if e.Action == policy.Remove {
			delete(s.whitelist, e.Key)
			continue
		}
		s.whitelist[e.Key] = struct{}{}
	}
	return nil
}
func (s *fakeStore) SaveBlacklist(entries []policy.UpdateEntry) error { return nil }
func (s *fakeStore) SaveKeys(entries []policy.UpdateEntry) error      { return nil }
func (s *fakeStore) SaveUsers(entries []policy.UpdateEntry) error     { return nil }
func (s *fakeStore) SaveTorrents(entries []policy.UpdateEntry) error  { return nil }

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.whitelist[key]
	return ok
}

func TestWritebackDrainsOnStop(t *testing.T) {
	store := newFakeStore()
	hs := policy.NewHashSet()
	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	hs.Add(ih)

	w := New(Config{Interval: time.Hour}, store, Tables{Whitelist: hs.Journal})

	require.NoError(t, <-w.Stop())
	require.True(t, store.has(hex.EncodeToString(ih[:])))
	require.Equal(t, 0, hs.Journal.Len())
}

func TestWritebackTicksPeriodically(t *testing.T) {
	store := newFakeStore()
	hs := policy.NewHashSet()
	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	hs.Add(ih)

	w := New(Config{Interval: 10 * time.Millisecond}, store, Tables{Whitelist: hs.Journal})
	defer func() { <-w.Stop() }()

	require.Eventually(t, func() bool {
		return store.has(hex.EncodeToString(ih[:]))
	}, time.Second, 5*time.Millisecond)
}

func TestWritebackSkipsNilTables(t *testing.T) {
	store := newFakeStore()
	w := New(Config{Interval: time.Hour}, store, Tables{})
	require.NoError(t, <-w.Stop())
	require.Equal(t, 0, store.saves)
}
