// Package timecache provides a cache for the system clock, to avoid calls to
// time.Now() on every swarm mutation.
//
// The time is stored as one int64 holding nanoseconds since the Unix epoch,
// accessed with atomic primitives rather than a lock. The package runs a
// global singleton TimeCache that is updated once a second.
package timecache

import (
	"sync"
	"sync/atomic"
	"time"
)

var t *TimeCache

func init() {
	t = New()
	go t.Run(time.Second)
}

// TimeCache is a cache of the current system time with nanosecond precision.
type TimeCache struct {
	// clock holds nanoseconds since the Unix epoch. Must be accessed
	// atomically.
	clock int64

	closed  chan struct{}
	running chan struct{}
	m       sync.Mutex
}

// New returns a new TimeCache. It must be started with Run before its value
// will update.
func New() *TimeCache {
	return &TimeCache{
		clock:   time.Now().UnixNano(),
		closed:  make(chan struct{}),
		running: make(chan struct{}),
	}
}

// Run updates the cached clock value once per interval until Stop is called.
func (t *TimeCache) Run(interval time.Duration) {
	t.m.Lock()
	select {
	case <-t.running:
		panic("timecache: Run called multiple times")
	default:
	}
	close(t.running)
	t.m.Unlock()

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-t.closed:
			return
		case now := <-tick.C:
			atomic.StoreInt64(&t.clock, now.UnixNano())
		}
	}
}

// Stop stops the TimeCache. The cached time remains valid but stops
// updating. Calling Stop again is a no-op.
func (t *TimeCache) Stop() {
	t.m.Lock()
	defer t.m.Unlock()

	select {
	case <-t.closed:
		return
	default:
	}
	close(t.closed)
}

// Now returns the cached time.
func (t *TimeCache) Now() time.Time {
	return time.Unix(0, atomic.LoadInt64(&t.clock))
}

// NowUnixNano returns the cached time as nanoseconds since the Unix epoch.
func (t *TimeCache) NowUnixNano() int64 {
	return atomic.LoadInt64(&t.clock)
}

// Now returns the global TimeCache's current time.
func Now() time.Time { return t.Now() }

// NowUnixNano returns the global TimeCache's current time as nanoseconds
// since the Unix epoch.
func NowUnixNano() int64 { return t.NowUnixNano() }
