package memory

import (
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/storage"
)

func newTestStore() storage.PeerStore {
	return New(Config{
		ShardCount:                  1,
		GarbageCollectionInterval:   10 * time.Minute,
		PrometheusReportingInterval: 10 * time.Minute,
		PeerLifetime:                30 * time.Minute,
	})
}

func testPeer(port uint16) bittorrent.Peer {
	return bittorrent.Peer{
		ID:       bittorrent.PeerIDFromString("-TT0001-aaaaaaaaaaaa"),
		AddrPort: netip.MustParseAddrPort("127.0.0.1:" + strconv.Itoa(int(port))),
	}
}

func TestPutSeederAndScrape(t *testing.T) {
	ps := newTestStore()
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	require.NoError(t, ps.PutSeeder(ih, testPeer(1)))

	scrape := ps.ScrapeSwarm(ih, bittorrent.IPv4)
	require.EqualValues(t, 1, scrape.Complete)
	require.EqualValues(t, 0, scrape.Incomplete)
}

func TestDeleteSeederMissingReturnsErr(t *testing.T) {
	ps := newTestStore()
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	err := ps.DeleteSeeder(ih, testPeer(1))
	require.ErrorIs(t, err, storage.ErrResourceDoesNotExist)
}

func TestGraduateLeecherCountsSnatchOnce(t *testing.T) {
	ps := newTestStore()
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	p := testPeer(1)

	require.NoError(t, ps.PutLeecher(ih, p))
	require.NoError(t, ps.GraduateLeecher(ih, p))
	require.NoError(t, ps.GraduateLeecher(ih, p))

	scrape := ps.ScrapeSwarm(ih, bittorrent.IPv4)
	require.EqualValues(t, 1, scrape.Complete)
	require.EqualValues(t, 0, scrape.Incomplete)
	require.EqualValues(t, 1, scrape.Snatches)
}

func TestAnnouncePeersLeecherPrefersSeeders(t *testing.T) {
	ps := newTestStore()
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	require.NoError(t, ps.PutSeeder(ih, testPeer(1)))
	require.NoError(t, ps.PutLeecher(ih, testPeer(2)))

	peers, err := ps.AnnouncePeers(ih, false, 1, testPeer(3))
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, uint16(1), peers[0].AddrPort.Port())
}

func TestAnnouncePeersSeederOnlyGetsLeechers(t *testing.T) {
	ps := newTestStore()
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	require.NoError(t, ps.PutSeeder(ih, testPeer(1)))
	require.NoError(t, ps.PutLeecher(ih, testPeer(2)))

	peers, err := ps.AnnouncePeers(ih, true, 10, testPeer(4))
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, uint16(2), peers[0].AddrPort.Port())
}

func TestCollectGarbageRemovesStalePeers(t *testing.T) {
	ps := newTestStore()
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	require.NoError(t, ps.PutSeeder(ih, testPeer(1)))

	require.NoError(t, ps.CollectGarbage(time.Now().Add(time.Hour)))

	scrape := ps.ScrapeSwarm(ih, bittorrent.IPv4)
	require.EqualValues(t, 0, scrape.Complete)
}

func TestPersistentKeepsSnatchesAfterLastPeerLeaves(t *testing.T) {
	ps := New(Config{
		ShardCount:                  1,
		GarbageCollectionInterval:   10 * time.Minute,
		PrometheusReportingInterval: 10 * time.Minute,
		PeerLifetime:                30 * time.Minute,
		Persistent:                  true,
	})
	defer ps.Stop()

	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	p := testPeer(1)
	require.NoError(t, ps.PutLeecher(ih, p))
	require.NoError(t, ps.GraduateLeecher(ih, p))
	require.NoError(t, ps.DeleteSeeder(ih, p))

	scrape := ps.ScrapeSwarm(ih, bittorrent.IPv4)
	require.EqualValues(t, 1, scrape.Snatches)
}
