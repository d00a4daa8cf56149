package middleware

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/storage/memory"
)

func newTestLogic() *Logic {
	store := memory.New(memory.Config{
		ShardCount:                  1,
		GarbageCollectionInterval:   time.Hour,
		PrometheusReportingInterval: time.Hour,
		PeerLifetime:                time.Hour,
	})
	return NewLogic(ResponseConfig{AnnounceInterval: time.Minute, MinAnnounceInterval: time.Second}, store, nil, nil)
}

func TestLogicHandleAnnouncePutsLeecher(t *testing.T) {
	l := newTestLogic()
	req := &bittorrent.AnnounceRequest{
		InfoHash: bittorrent.InfoHashFromString("aaaabbbbccccddddeeee"),
		Left:     10,
		NumWant:  50,
		Peer: bittorrent.Peer{
			ID:       bittorrent.PeerIDFromString("-TT0001-aaaaaaaaaaaa"),
			AddrPort: netip.MustParseAddrPort("10.0.0.1:6881"),
		},
	}

	resp, err := l.HandleAnnounce(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, time.Minute, resp.Interval)

	l.AfterAnnounce(context.Background(), req, resp)

	resp2, err := l.HandleAnnounce(context.Background(), req)
	require.NoError(t, err)
	require.EqualValues(t, 1, resp2.Incomplete)
}

func TestLogicHandleScrapeUnknownHashIsZero(t *testing.T) {
	l := newTestLogic()
	req := &bittorrent.ScrapeRequest{InfoHashes: []bittorrent.InfoHash{bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")}}

	resp, err := l.HandleScrape(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Files, 1)
	require.EqualValues(t, 0, resp.Files[0].Complete)
}
