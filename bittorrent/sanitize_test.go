package bittorrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeAnnounceDefaultsNumWant(t *testing.T) {
	rs := RequestSanitizer{MaxNumWant: 50, DefaultNumWant: 25}
	r := &AnnounceRequest{}
	rs.SanitizeAnnounce(r)
	require.Equal(t, uint32(25), r.NumWant)
}

func TestSanitizeAnnounceCapsNumWant(t *testing.T) {
	rs := RequestSanitizer{MaxNumWant: 50, DefaultNumWant: 25}
	r := &AnnounceRequest{NumWant: 1000, NumWantProvided: true}
	rs.SanitizeAnnounce(r)
	require.Equal(t, uint32(50), r.NumWant)
}

func TestSanitizeAnnounceKeepsProvidedNumWant(t *testing.T) {
	rs := RequestSanitizer{MaxNumWant: 50, DefaultNumWant: 25}
	r := &AnnounceRequest{NumWant: 10, NumWantProvided: true}
	rs.SanitizeAnnounce(r)
	require.Equal(t, uint32(10), r.NumWant)
}

func TestSanitizeScrapeTruncates(t *testing.T) {
	rs := RequestSanitizer{MaxScrapeInfoHashes: 2}
	r := &ScrapeRequest{InfoHashes: make([]InfoHash, 5)}
	rs.SanitizeScrape(r)
	require.Len(t, r.InfoHashes, 2)
}
