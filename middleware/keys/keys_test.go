package keys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

func TestHookRejectsMissingKey(t *testing.T) {
	h := NewHook(policy.NewKeys())
	req := &bittorrent.AnnounceRequest{}
	_, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{})
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestHookAcceptsValidKey(t *testing.T) {
	k := policy.NewKeys()
	rawKey := "00000000000000000000000000000000000000aa"
	k.Add(policy.KeyFromHex(rawKey), policy.KeyEntry{})

	h := NewHook(k)
	req := &bittorrent.AnnounceRequest{Key: rawKey}
	_, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{})
	require.NoError(t, err)
}
