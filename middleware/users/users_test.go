package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

func TestHookRejectsUnknownUserKey(t *testing.T) {
	h := NewHook(policy.NewUsers())
	req := &bittorrent.AnnounceRequest{UserKey: "00000000000000000000000000000000000000aa"}
	_, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{})
	require.ErrorIs(t, err, ErrPeerKeyNotValid)
}

func TestHookRecordsTransferForKnownUser(t *testing.T) {
	table := policy.NewUsers()
	rawKey := "00000000000000000000000000000000000000aa"
	key := policy.KeyFromHex(rawKey)
	table.Add(policy.UserEntry{Key: key})

	h := NewHook(table)
	req := &bittorrent.AnnounceRequest{
		UserKey:    rawKey,
		InfoHash:   bittorrent.InfoHashFromString("aaaabbbbccccddddeeee"),
		Uploaded:   10,
		Downloaded: 20,
	}
	_, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{})
	require.NoError(t, err)

	entry, ok := table.Lookup(key)
	require.True(t, ok)
	require.EqualValues(t, 10, entry.Uploaded)
	require.EqualValues(t, 20, entry.Downloaded)
}
