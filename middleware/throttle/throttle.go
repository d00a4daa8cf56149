// Package throttle implements a Hook that denies announces and scrapes from
// a source IP that has exceeded the configured admission rate.
package throttle

import (
	"context"
	"net/netip"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/middleware"
	corethrottle "github.com/torrtrack/torrtrack/throttle"
)

// ErrThrottled is returned when the request's source IP has exceeded the
// admission threshold. It is deliberately generic: it never reveals the
// throttle's thresholds to the client.
var ErrThrottled = bittorrent.ClientError("too many requests")

// Hook gates requests through a corethrottle.Throttle keyed by source IP.
type Hook struct {
	t *corethrottle.Throttle
}

// NewHook returns a Hook backed by t.
func NewHook(t *corethrottle.Throttle) *Hook {
	return &Hook{t: t}
}

// HandleAnnounce denies the request if its source IP is currently
// throttled, and otherwise records a hit.
func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	addr := req.AddrPort.Addr()
	if !h.t.Admit(addr) {
		return ctx, ErrThrottled
	}
	h.t.Hit(addr)
	return ctx, nil
}

// HandleScrape admits scrapes the same way HandleAnnounce admits announces.
// ScrapeRequest carries no source address of its own, so frontends set
// middleware.ScrapeSourceAddrKey on the context before calling HandleScrape;
// a scrape that arrives without it is never throttled.
func (h *Hook) HandleScrape(ctx context.Context, _ *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	addr, ok := ctx.Value(middleware.ScrapeSourceAddrKey).(netip.Addr)
	if !ok {
		return ctx, nil
	}

	if !h.t.Admit(addr) {
		return ctx, ErrThrottled
	}
	h.t.Hit(addr)
	return ctx, nil
}
