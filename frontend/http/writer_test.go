package http

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
)

func TestWriteError(t *testing.T) {
	table := []struct {
		reason, expected string
	}{
		{"hello world", "d14:failure reason11:hello worlde"},
		{"what's up", "d14:failure reason9:what's upe"},
	}

	for _, tt := range table {
		r := httptest.NewRecorder()
		err := WriteError(r, bittorrent.ClientError(tt.reason))
		require.NoError(t, err)
		require.Equal(t, tt.expected, r.Body.String())
	}
}

func TestWriteAnnounceResponseCompact(t *testing.T) {
	resp := &bittorrent.AnnounceResponse{
		Complete:   1,
		Incomplete: 2,
		IPv4Peers: []bittorrent.Peer{
			{AddrPort: netip.MustParseAddrPort("1.2.3.4:6881")},
		},
		Compact: true,
	}

	r := httptest.NewRecorder()
	require.NoError(t, WriteAnnounceResponse(r, resp))
	require.Contains(t, r.Body.String(), "5:peers6:")
}

func TestWriteAnnounceResponseDict(t *testing.T) {
	resp := &bittorrent.AnnounceResponse{
		IPv4Peers: []bittorrent.Peer{
			{ID: bittorrent.PeerIDFromString("aaaaaaaaaaaaaaaaaaaa"), AddrPort: netip.MustParseAddrPort("1.2.3.4:6881")},
		},
	}

	r := httptest.NewRecorder()
	require.NoError(t, WriteAnnounceResponse(r, resp))
	require.Contains(t, r.Body.String(), "7:peer id20:aaaaaaaaaaaaaaaaaaaa")
}

func TestWriteScrapeResponse(t *testing.T) {
	ih := bittorrent.InfoHashFromString("aaaaaaaaaaaaaaaaaaaa")
	resp := &bittorrent.ScrapeResponse{
		Files: []bittorrent.Scrape{{InfoHash: ih, Complete: 3, Incomplete: 4}},
	}

	r := httptest.NewRecorder()
	require.NoError(t, WriteScrapeResponse(r, resp))
	require.Contains(t, r.Body.String(), "8:completei3e")
}
