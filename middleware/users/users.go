// Package users implements a Hook that requires a valid user key on every
// request when user mode is enabled, and folds each announce's transfer
// counts into that user's running totals.
package users

import (
	"context"
	"encoding/hex"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/pkg/timecache"
	"github.com/torrtrack/torrtrack/policy"
)

// ErrPeerKeyNotValid is returned when a request's user key does not resolve
// to a known UserEntry.
var ErrPeerKeyNotValid = bittorrent.ClientError("peer key not valid")

// Hook validates a request's user key against a policy.Users table and
// records announce effects against the resolved user.
type Hook struct {
	users *policy.Users
}

// NewHook returns a users Hook backed by users.
func NewHook(users *policy.Users) *Hook {
	return &Hook{users: users}
}

func parseKey(raw string) (policy.Key, bool) {
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 20 {
		return policy.Key{}, false
	}
	var key policy.Key
	copy(key[:], b)
	return key, true
}

// HandleAnnounce rejects the request unless its user key resolves, and
// records the announce's transfer deltas and active/stopped state against
// that user.
func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	key, ok := parseKey(req.UserKey)
	if !ok {
		return ctx, ErrPeerKeyNotValid
	}

	if req.Event == bittorrent.Stopped {
		if !h.users.RecordStop(key, req.InfoHash) {
			return ctx, ErrPeerKeyNotValid
		}
		return ctx, nil
	}

	completed := req.Event == bittorrent.Completed
	if !h.users.RecordAnnounce(key, req.InfoHash, req.Uploaded, req.Downloaded, completed, timecache.NowUnixNano()) {
		return ctx, ErrPeerKeyNotValid
	}

	return ctx, nil
}

// HandleScrape rejects the request unless its user key resolves.
func (h *Hook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	raw, ok := req.Params.String("userkey")
	if !ok {
		return ctx, ErrPeerKeyNotValid
	}
	key, ok := parseKey(raw)
	if !ok {
		return ctx, ErrPeerKeyNotValid
	}
	if _, ok := h.users.Lookup(key); !ok {
		return ctx, ErrPeerKeyNotValid
	}
	return ctx, nil
}
