package udp

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionIDVerification(t *testing.T) {
	table := []struct {
		createdAt int64
		now       int64
		ip        string
		key       string
		valid     bool
	}{
		{0, 1, "127.0.0.1", "", true},
		{0, 420420, "127.0.0.1", "", false},
		{0, 0, "::", "", true},
		{0, 119, "10.0.0.1", "secret", true},
		{0, 121, "10.0.0.1", "secret", false},
	}

	for _, tt := range table {
		ip := netip.MustParseAddr(tt.ip)
		cid := NewConnectionID(ip, time.Unix(tt.createdAt, 0), tt.key)
		got := ValidConnectionID(cid, ip, time.Unix(tt.now, 0), time.Minute, tt.key)
		require.Equal(t, tt.valid, got)
	}
}

func TestConnectionIDRejectsWrongIP(t *testing.T) {
	now := time.Unix(1000, 0)
	cid := NewConnectionID(netip.MustParseAddr("1.2.3.4"), now, "key")
	valid := ValidConnectionID(cid, netip.MustParseAddr("1.2.3.5"), now, time.Minute, "key")
	require.False(t, valid)
}

func TestConnectionIDGeneratorIsReusable(t *testing.T) {
	gen := NewConnectionIDGenerator("key")
	now := time.Unix(5000, 0)
	ip := netip.MustParseAddr("127.0.0.1")

	first := append([]byte{}, gen.Generate(ip, now)...)
	second := append([]byte{}, gen.Generate(ip, now)...)
	require.Equal(t, first, second)
	require.True(t, gen.Validate(first, ip, now, time.Minute))
}
