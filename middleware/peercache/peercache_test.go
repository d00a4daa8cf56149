package peercache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/cache"
)

type fakeCache struct {
	single map[bittorrent.InfoHash]cache.Counts
	batch  map[bittorrent.InfoHash]cache.Counts
}

func newFakeCache() *fakeCache {
	return &fakeCache{single: make(map[bittorrent.InfoHash]cache.Counts), batch: make(map[bittorrent.InfoHash]cache.Counts)}
}

func (c *fakeCache) SetTorrentPeers(infoHash bittorrent.InfoHash, seeds, peers uint32, ttl time.Duration) error {
	c.single[infoHash] = cache.Counts{Seeds: seeds, Peers: peers}
	return nil
}

func (c *fakeCache) GetTorrentPeers(infoHash bittorrent.InfoHash) (uint32, uint32, bool, error) {
	counts, ok := c.single[infoHash]
	return counts.Seeds, counts.Peers, ok, nil
}

func (c *fakeCache) SetTorrentPeersBatch(entries map[bittorrent.InfoHash]cache.Counts, ttl time.Duration) error {
	for ih, counts := range entries {
		c.batch[ih] = counts
	}
	return nil
}

func TestHookHandleAnnounceMirrorsCounts(t *testing.T) {
	fc := newFakeCache()
	h := NewHook(fc, time.Minute)
	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")

	_, err := h.HandleAnnounce(context.Background(), &bittorrent.AnnounceRequest{InfoHash: ih},
		&bittorrent.AnnounceResponse{Complete: 2, Incomplete: 5})
	require.NoError(t, err)

	require.Equal(t, cache.Counts{Seeds: 2, Peers: 5}, fc.single[ih])
}

func TestHookHandleScrapeMirrorsBatch(t *testing.T) {
	fc := newFakeCache()
	h := NewHook(fc, time.Minute)
	ih1 := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	ih2 := bittorrent.InfoHashFromString("11112222333344445555")

	resp := &bittorrent.ScrapeResponse{Files: []bittorrent.Scrape{
		{InfoHash: ih1, Complete: 1, Incomplete: 2},
		{InfoHash: ih2, Complete: 3, Incomplete: 4},
	}}

	_, err := h.HandleScrape(context.Background(), &bittorrent.ScrapeRequest{}, resp)
	require.NoError(t, err)

	require.Equal(t, cache.Counts{Seeds: 1, Peers: 2}, fc.batch[ih1])
	require.Equal(t, cache.Counts{Seeds: 3, Peers: 4}, fc.batch[ih2])
}

func TestHookHandleScrapeSkipsEmptyFiles(t *testing.T) {
	fc := newFakeCache()
	h := NewHook(fc, time.Minute)

	_, err := h.HandleScrape(context.Background(), &bittorrent.ScrapeRequest{}, &bittorrent.ScrapeResponse{})
	require.NoError(t, err)
	require.Empty(t, fc.batch)
}
