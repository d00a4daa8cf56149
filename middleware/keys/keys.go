// Package keys implements a Hook that requires a valid, unexpired external
// key on every request when key mode is enabled.
package keys

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

// ErrUnknownKey is returned when the request's key is missing, malformed,
// or not present in the key table with an unexpired TTL.
var ErrUnknownKey = bittorrent.ClientError("unknown key")

// Hook validates a request's external key against a policy.Keys table.
type Hook struct {
	keys *policy.Keys
	now  func() time.Time
}

// NewHook returns a keys Hook backed by keys.
func NewHook(keys *policy.Keys) *Hook {
	return &Hook{keys: keys, now: time.Now}
}

func (h *Hook) valid(raw string) bool {
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 20 {
		return false
	}

	var key policy.Key
	copy(key[:], b)
	return h.keys.Valid(key, h.now())
}

// HandleAnnounce rejects the request unless it carries a valid key.
func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	if !h.valid(req.Key) {
		return ctx, ErrUnknownKey
	}
	return ctx, nil
}

// HandleScrape rejects the request unless it carries a valid key.
func (h *Hook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	key, ok := req.Params.String("key")
	if !ok || !h.valid(key) {
		return ctx, ErrUnknownKey
	}
	return ctx, nil
}
