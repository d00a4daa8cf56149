// Package whitelist implements a Hook that fails an Announce or Scrape
// whose info_hash is not in the configured whitelist.
package whitelist

import (
	"context"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

// ErrTorrentNotWhitelisted is returned when an info_hash is not present in
// the whitelist.
var ErrTorrentNotWhitelisted = bittorrent.ClientError("unapproved torrent")

// Hook validates announces against a policy.HashSet of approved info
// hashes.
type Hook struct {
	hashes *policy.HashSet
}

// NewHook returns a whitelist Hook backed by hashes.
func NewHook(hashes *policy.HashSet) *Hook {
	return &Hook{hashes: hashes}
}

// HandleAnnounce rejects the request if its info_hash is not whitelisted.
func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	if !h.hashes.Contains(req.InfoHash) {
		return ctx, ErrTorrentNotWhitelisted
	}
	return ctx, nil
}

// HandleScrape rejects the request if any of its info_hashes is not
// whitelisted.
func (h *Hook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	for _, ih := range req.InfoHashes {
		if !h.hashes.Contains(ih) {
			return ctx, ErrTorrentNotWhitelisted
		}
	}
	return ctx, nil
}
