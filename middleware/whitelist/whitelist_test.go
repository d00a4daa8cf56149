package whitelist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/policy"
)

func TestHookRejectsUnlistedHash(t *testing.T) {
	hashes := policy.NewHashSet()
	h := NewHook(hashes)

	req := &bittorrent.AnnounceRequest{InfoHash: bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")}
	_, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{})
	require.ErrorIs(t, err, ErrTorrentNotWhitelisted)
}

func TestHookAllowsListedHash(t *testing.T) {
	hashes := policy.NewHashSet()
	ih := bittorrent.InfoHashFromString("aaaabbbbccccddddeeee")
	hashes.Add(ih)
	h := NewHook(hashes)

	req := &bittorrent.AnnounceRequest{InfoHash: ih}
	_, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{})
	require.NoError(t, err)
}
