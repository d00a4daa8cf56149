package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
	"github.com/torrtrack/torrtrack/writeback"
)

func TestRecordConnectionCountsByProtocol(t *testing.T) {
	a := New(Config{})
	defer a.Stop()

	a.Record(Event{Kind: EventConnection, Protocol: HTTP})
	a.Record(Event{Kind: EventConnection, Protocol: UDP})
	a.Record(Event{Kind: EventConnection, Protocol: UDP})

	require.Eventually(t, func() bool {
		snap := a.Snapshot()
		return snap.ConnectionsHTTP == 1 && snap.ConnectionsUDP == 2
	}, time.Second, time.Millisecond)
}

func TestRecordAnnounceAndScrapeByFamily(t *testing.T) {
	a := New(Config{})
	defer a.Stop()

	a.Record(Event{Kind: EventAnnounce, Family: bittorrent.IPv4})
	a.Record(Event{Kind: EventAnnounce, Family: bittorrent.IPv6})
	a.Record(Event{Kind: EventScrape, Family: bittorrent.IPv6})

	require.Eventually(t, func() bool {
		snap := a.Snapshot()
		return snap.AnnouncesIPv4 == 1 && snap.AnnouncesIPv6 == 1 && snap.ScrapesIPv6 == 1 && snap.ScrapesIPv4 == 0
	}, time.Second, time.Millisecond)
}

func TestRecordPeerDeltaAccumulates(t *testing.T) {
	a := New(Config{})
	defer a.Stop()

	a.RecordPeerDelta(2, 3, 1)
	a.RecordPeerDelta(-1, 1, 0)

	snap := a.Snapshot()
	require.EqualValues(t, 1, snap.Seeders)
	require.EqualValues(t, 4, snap.Leechers)
	require.EqualValues(t, 1, snap.Completed)
}

func TestRecordSaveAndKeyCleanupTimestamps(t *testing.T) {
	a := New(Config{})
	defer a.Stop()

	now := time.Now()
	a.RecordSave(now)
	a.RecordKeyCleanup(now)

	snap := a.Snapshot()
	require.True(t, snap.LastSave.Equal(now))
	require.True(t, snap.LastKeyCleanup.Equal(now))
}

func TestSnapshotReadsLiveJournalLengths(t *testing.T) {
	whitelist := policy.NewJournal()
	whitelist.Record(policy.UpdateEntry{Key: "a", Action: policy.Add})
	whitelist.Record(policy.UpdateEntry{Key: "b", Action: policy.Add})

	a := New(Config{Tables: writeback.Tables{Whitelist: whitelist}})
	defer a.Stop()

	snap := a.Snapshot()
	require.Equal(t, 2, snap.WhitelistJournalLen)
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	a := New(Config{ChannelSize: 8})

	for i := 0; i < 5; i++ {
		a.Record(Event{Kind: EventAnnounce, Family: bittorrent.IPv4})
	}
	a.Stop()

	require.EqualValues(t, 5, a.Snapshot().AnnouncesIPv4)
}

func TestRecordTorrentDelta(t *testing.T) {
	a := New(Config{})
	defer a.Stop()

	a.RecordTorrentDelta(3)
	a.RecordTorrentDelta(-1)

	require.EqualValues(t, 2, a.Snapshot().Torrents)
}
