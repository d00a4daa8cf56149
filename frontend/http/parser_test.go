package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func validAnnounceQuery() string {
	return "info_hash=aaaaaaaaaaaaaaaaaaaa&peer_id=bbbbbbbbbbbbbbbbbbbb&port=6881&uploaded=0&downloaded=0&left=0"
}

func TestParseAnnounceExtractsKeyFromRoute(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce/deadbeef?"+validAnnounceQuery(), nil)
	ps := httprouter.Params{{Key: "key", Value: "deadbeef"}}

	req, err := ParseAnnounce(r, ps, Config{})
	require.NoError(t, err)
	require.Equal(t, "deadbeef", req.Key)
	require.Empty(t, req.UserKey)
}

func TestParseAnnounceRejectsMissingInfoHash(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?peer_id=bbbbbbbbbbbbbbbbbbbb&port=6881", nil)
	_, err := ParseAnnounce(r, nil, Config{})
	require.Error(t, err)
}

func TestParseAnnounceUsesSocketIPByDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?"+validAnnounceQuery(), nil)
	r.RemoteAddr = "203.0.113.5:54321"

	req, err := ParseAnnounce(r, nil, Config{})
	require.NoError(t, err)
	require.Equal(t, "203.0.113.5", req.AddrPort.Addr().String())
	require.False(t, req.IPProvided)
}

func TestParseAnnounceRejectsPrivateTrustedHeaderByDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?"+validAnnounceQuery(), nil)
	r.RemoteAddr = "203.0.113.5:54321"
	r.Header.Set("X-Real-IP", "10.0.0.1")

	req, err := ParseAnnounce(r, nil, Config{RealIPHeader: "X-Real-IP"})
	require.NoError(t, err)
	require.Equal(t, "203.0.113.5", req.AddrPort.Addr().String())
}

func TestParseAnnounceHonorsTrustedHeaderWhenProxiesTrusted(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?"+validAnnounceQuery(), nil)
	r.RemoteAddr = "203.0.113.5:54321"
	r.Header.Set("X-Real-IP", "10.0.0.1")

	req, err := ParseAnnounce(r, nil, Config{RealIPHeader: "X-Real-IP", TrustedProxies: true})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", req.AddrPort.Addr().String())
}

func TestParseAnnounceHonorsSpoofedIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?"+validAnnounceQuery()+"&ip=198.51.100.7", nil)
	r.RemoteAddr = "203.0.113.5:54321"

	req, err := ParseAnnounce(r, nil, Config{AllowIPSpoofing: true})
	require.NoError(t, err)
	require.Equal(t, "198.51.100.7", req.AddrPort.Addr().String())
	require.True(t, req.IPProvided)
}

func TestParseScrapeRequiresInfoHash(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/scrape", nil)
	_, err := ParseScrape(r, nil, Config{})
	require.Error(t, err)
}

func TestParseScrapeAppliesMaxInfoHashes(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/scrape?info_hash=aaaaaaaaaaaaaaaaaaaa&info_hash=bbbbbbbbbbbbbbbbbbbb", nil)
	req, err := ParseScrape(r, nil, Config{MaxScrapeInfoHashes: 1})
	require.NoError(t, err)
	require.Len(t, req.InfoHashes, 1)
}

func TestParseAnnounceDefaultsNumWantWhenAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?"+validAnnounceQuery(), nil)

	req, err := ParseAnnounce(r, nil, Config{DefaultNumWant: 50, MaxNumWant: 100})
	require.NoError(t, err)
	require.False(t, req.NumWantProvided)
	require.Equal(t, uint32(50), req.NumWant)
}

func TestParseAnnounceCapsNumWantToMax(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?"+validAnnounceQuery()+"&numwant=9999", nil)

	req, err := ParseAnnounce(r, nil, Config{DefaultNumWant: 50, MaxNumWant: 100})
	require.NoError(t, err)
	require.True(t, req.NumWantProvided)
	require.Equal(t, uint32(100), req.NumWant)
}

func TestParseAnnounceRejectsZeroPortUnlessStopped(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/announce?info_hash=aaaaaaaaaaaaaaaaaaaa&peer_id=bbbbbbbbbbbbbbbbbbbb&port=0&uploaded=0&downloaded=0&left=0", nil)
	_, err := ParseAnnounce(r, nil, Config{})
	require.Error(t, err)

	r2 := httptest.NewRequest(http.MethodGet, "/announce?info_hash=aaaaaaaaaaaaaaaaaaaa&peer_id=bbbbbbbbbbbbbbbbbbbb&port=0&uploaded=0&downloaded=0&left=0&event=stopped", nil)
	req, err := ParseAnnounce(r2, nil, Config{})
	require.NoError(t, err)
	require.Equal(t, uint16(0), req.AddrPort.Port())
}
