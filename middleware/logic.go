// Package middleware implements the tracker's decision logic as a chain of
// Hooks run before and after the swarm store is consulted.
package middleware

import (
	"context"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/frontend"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/stop"
	"github.com/torrtrack/torrtrack/storage"
)

// ResponseConfig holds the configuration used to build announce responses.
type ResponseConfig struct {
	AnnounceInterval    time.Duration `yaml:"announce_interval"`
	MinAnnounceInterval time.Duration `yaml:"min_announce_interval"`
}

var _ frontend.TrackerLogic = &Logic{}

// NewLogic builds a Logic that runs preHooks before consulting the swarm
// store and postHooks after, in the order given. The swarm-interaction and
// response-building hooks are appended automatically: preHooks fill in the
// response from swarm state, postHooks apply the announce's effect to it.
func NewLogic(cfg ResponseConfig, peerStore storage.PeerStore, preHooks, postHooks []Hook) *Logic {
	return &Logic{
		announceInterval:    cfg.AnnounceInterval,
		minAnnounceInterval: cfg.MinAnnounceInterval,
		preHooks:            append(preHooks, &responseHook{store: peerStore}),
		postHooks:           append(postHooks, &swarmInteractionHook{store: peerStore}),
	}
}

// Logic is a frontend.TrackerLogic that runs a chain of Hooks: whitelist,
// blacklist, key, and user validation hooks first, then the built-in
// response/swarm-interaction hooks.
type Logic struct {
	announceInterval    time.Duration
	minAnnounceInterval time.Duration
	preHooks            []Hook
	postHooks           []Hook
}

// HandleAnnounce generates a response for an Announce.
func (l *Logic) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest) (resp *bittorrent.AnnounceResponse, err error) {
	resp = &bittorrent.AnnounceResponse{
		Interval:    l.announceInterval,
		MinInterval: l.minAnnounceInterval,
		Compact:     req.Compact,
	}

	for _, h := range l.preHooks {
		if ctx, err = h.HandleAnnounce(ctx, req, resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// AfterAnnounce applies the swarm-store effects of a completed Announce.
func (l *Logic) AfterAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) {
	var err error
	for _, h := range l.postHooks {
		if ctx, err = h.HandleAnnounce(ctx, req, resp); err != nil {
			log.Error("post-announce hook failed", log.Err(err))
			return
		}
	}
}

// HandleScrape generates a response for a Scrape.
func (l *Logic) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest) (resp *bittorrent.ScrapeResponse, err error) {
	resp = &bittorrent.ScrapeResponse{
		Files: make([]bittorrent.Scrape, 0, len(req.InfoHashes)),
	}

	for _, h := range l.preHooks {
		if ctx, err = h.HandleScrape(ctx, req, resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// AfterScrape does nothing beyond what preHooks already did, since scrapes
// never mutate the swarm, but still runs postHooks for stats collection.
func (l *Logic) AfterScrape(ctx context.Context, req *bittorrent.ScrapeRequest, resp *bittorrent.ScrapeResponse) {
	var err error
	for _, h := range l.postHooks {
		if ctx, err = h.HandleScrape(ctx, req, resp); err != nil {
			log.Error("post-scrape hook failed", log.Err(err))
			return
		}
	}
}

// Stop stops every hook that implements stop.Stopper.
func (l *Logic) Stop() stop.Result {
	g := stop.NewGroup()
	for _, h := range l.preHooks {
		if s, ok := h.(stop.Stopper); ok {
			g.Add(s)
		}
	}
	for _, h := range l.postHooks {
		if s, ok := h.(stop.Stopper); ok {
			g.Add(s)
		}
	}
	return g.Stop()
}
