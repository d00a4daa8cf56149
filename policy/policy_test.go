package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
)

func TestHashSetAddContainsRemove(t *testing.T) {
	hs := NewHashSet()
	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")

	require.False(t, hs.Contains(ih))
	hs.Add(ih)
	require.True(t, hs.Contains(ih))
	require.Equal(t, 1, hs.Len())

	hs.Remove(ih)
	require.False(t, hs.Contains(ih))
}

func TestHashSetJournalCoalesces(t *testing.T) {
	hs := NewHashSet()
	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")

	hs.Add(ih)
	hs.Add(ih)
	entries := hs.Journal.Drain()
	require.Len(t, entries, 1)
	require.Equal(t, Add, entries[0].Action)
}

func TestKeysValidRespectsExpiry(t *testing.T) {
	k := NewKeys()
	key := KeyFromHex("000000000000000000000000000000000000000a")

	now := time.Unix(1000, 0)
	k.Add(key, KeyEntry{Expiry: 1000})
	require.False(t, k.Valid(key, now.Add(time.Second)))

	k.Add(key, KeyEntry{Expiry: 0})
	require.True(t, k.Valid(key, now.Add(24*time.Hour)))
}

func TestKeysCollectExpired(t *testing.T) {
	k := NewKeys()
	key := KeyFromHex("000000000000000000000000000000000000000a")
	k.Add(key, KeyEntry{Expiry: 1000})

	dropped := k.CollectExpired(time.Unix(2000, 0))
	require.Equal(t, 1, dropped)
	require.False(t, k.Valid(key, time.Unix(2000, 0)))
}

func TestUsersRecordAnnounceAccumulates(t *testing.T) {
	u := NewUsers()
	key := KeyFromHex("000000000000000000000000000000000000000a")
	u.Add(UserEntry{Key: key})

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	require.True(t, u.RecordAnnounce(key, ih, 100, 200, true, 42))
	require.True(t, u.RecordAnnounce(key, ih, 50, 0, false, 43))

	entry, ok := u.Lookup(key)
	require.True(t, ok)
	require.EqualValues(t, 150, entry.Uploaded)
	require.EqualValues(t, 200, entry.Downloaded)
	require.EqualValues(t, 1, entry.Completed)
	require.True(t, entry.Active)
	require.Contains(t, entry.TorrentsActive, ih)
}

func TestUsersRecordStopDeactivates(t *testing.T) {
	u := NewUsers()
	key := KeyFromHex("000000000000000000000000000000000000000a")
	u.Add(UserEntry{Key: key})

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	u.RecordAnnounce(key, ih, 1, 1, false, 1)
	u.RecordStop(key, ih)

	entry, ok := u.Lookup(key)
	require.True(t, ok)
	require.False(t, entry.Active)
	require.NotContains(t, entry.TorrentsActive, ih)
}

func TestUsersUnknownKeyFails(t *testing.T) {
	u := NewUsers()
	key := KeyFromHex("000000000000000000000000000000000000000b")
	require.False(t, u.RecordAnnounce(key, bittorrent.InfoHash{}, 1, 1, false, 1))
}
