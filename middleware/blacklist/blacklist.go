// Package blacklist implements a Hook that fails an Announce or Scrape
// whose info_hash is in the configured blacklist.
package blacklist

import (
	"context"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

// ErrTorrentBlacklisted is returned when an info_hash is present in the
// blacklist.
var ErrTorrentBlacklisted = bittorrent.ClientError("blacklisted torrent")

// Hook validates announces against a policy.HashSet of banned info hashes.
type Hook struct {
	hashes *policy.HashSet
}

// NewHook returns a blacklist Hook backed by hashes.
func NewHook(hashes *policy.HashSet) *Hook {
	return &Hook{hashes: hashes}
}

// HandleAnnounce rejects the request if its info_hash is blacklisted.
func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	if h.hashes.Contains(req.InfoHash) {
		return ctx, ErrTorrentBlacklisted
	}
	return ctx, nil
}

// HandleScrape rejects the request if any of its info_hashes is
// blacklisted.
func (h *Hook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	for _, ih := range req.InfoHashes {
		if h.hashes.Contains(ih) {
			return ctx, ErrTorrentBlacklisted
		}
	}
	return ctx, nil
}
