package throttle

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledThrottleAlwaysAdmits(t *testing.T) {
	th := New(Config{})
	addr := netip.MustParseAddr("192.0.2.1")
	for i := 0; i < 100; i++ {
		require.True(t, th.Admit(addr))
		th.Hit(addr)
	}
	require.Equal(t, 0, th.Len())
}

func TestAdmitsUnderThreshold(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 3, TimestampReset: time.Minute, DurationReject: time.Minute})
	addr := netip.MustParseAddr("192.0.2.2")

	for i := 0; i < 3; i++ {
		require.True(t, th.Admit(addr))
		th.Hit(addr)
	}
	require.Equal(t, 1, th.Len())
}

func TestDeniesOverThreshold(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 2, TimestampReset: time.Minute, DurationReject: time.Minute})
	addr := netip.MustParseAddr("192.0.2.3")

	for i := 0; i < 3; i++ {
		th.Hit(addr)
	}
	require.False(t, th.Admit(addr))
}

func TestRejectWindowExpiresAndResets(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 1, TimestampReset: time.Minute, DurationReject: time.Millisecond})
	addr := netip.MustParseAddr("192.0.2.4")

	th.Hit(addr)
	th.Hit(addr)
	require.False(t, th.Admit(addr))

	time.Sleep(5 * time.Millisecond)
	require.True(t, th.Admit(addr))
	require.Equal(t, 0, th.Len())
}

func TestUnderThresholdEntryResetsAfterIdle(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 5, TimestampReset: time.Millisecond, DurationReject: time.Minute})
	addr := netip.MustParseAddr("192.0.2.5")

	th.Hit(addr)
	time.Sleep(5 * time.Millisecond)
	require.True(t, th.Admit(addr))
	require.Equal(t, 0, th.Len())
}

func TestSweepRemovesExpiredEntriesOfBothKinds(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 1, TimestampReset: time.Millisecond, DurationReject: time.Millisecond})
	under := netip.MustParseAddr("192.0.2.6")
	over := netip.MustParseAddr("192.0.2.7")

	th.Hit(under)
	th.Hit(over)
	th.Hit(over)

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 2, th.Sweep())
	require.Equal(t, 0, th.Len())
}

func TestAddrUnmapTreatsV4MappedSameAsV4(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 1, TimestampReset: time.Minute, DurationReject: time.Minute})

	plain := netip.MustParseAddr("192.0.2.8")
	mapped := netip.MustParseAddr("::ffff:192.0.2.8")

	th.Hit(plain)
	th.Hit(mapped)
	require.Equal(t, 1, th.Len())
}

func TestStopHaltsSweepLoop(t *testing.T) {
	th := New(Config{Enabled: true, MaxCount: 1, TimestampReset: time.Minute, DurationReject: time.Minute, SweepInterval: time.Millisecond})
	<-th.Stop()
}
