// Package peercache implements a post-announce/scrape hook that mirrors a
// swarm's seed/peer counts into an optional external cache.Cache, as a hint
// for other tracker processes sharing the same deployment. The cache is
// never authoritative: a failure to mirror is logged and otherwise ignored.
package peercache

import (
	"context"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/cache"
	"github.com/torrtrack/torrtrack/pkg/log"
)

// Hook mirrors every announce's and scrape's resulting counts into a
// cache.Cache.
type Hook struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewHook builds a Hook that mirrors counts into c, expiring them after
// ttl.
func NewHook(c cache.Cache, ttl time.Duration) *Hook {
	return &Hook{cache: c, ttl: ttl}
}

// HandleAnnounce mirrors the response's post-announce scrape counts.
func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) (context.Context, error) {
	if err := h.cache.SetTorrentPeers(req.InfoHash, resp.Complete, resp.Incomplete, h.ttl); err != nil {
		log.Error("peercache: failed to mirror announce counts", log.Err(err), log.Fields{"info_hash": req.InfoHash})
	}

	return ctx, nil
}

// HandleScrape mirrors every requested swarm's counts in a single batch.
func (h *Hook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, resp *bittorrent.ScrapeResponse) (context.Context, error) {
	if len(resp.Files) == 0 {
		return ctx, nil
	}

	entries := make(map[bittorrent.InfoHash]cache.Counts, len(resp.Files))
	for _, f := range resp.Files {
		entries[f.InfoHash] = cache.Counts{Seeds: f.Complete, Peers: f.Incomplete}
	}

	if err := h.cache.SetTorrentPeersBatch(entries, h.ttl); err != nil {
		log.Error("peercache: failed to mirror scrape counts", log.Err(err), log.Fields{"swarms": len(entries)})
	}

	return ctx, nil
}
