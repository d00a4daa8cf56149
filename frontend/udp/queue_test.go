package udp

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketQueuePushPop(t *testing.T) {
	q := newPacketQueue(4, 2)
	addr := netip.MustParseAddrPort("192.0.2.1:6881")

	q.push(incomingPacket{data: []byte("a"), replyAddr: addr})
	q.push(incomingPacket{data: []byte("b"), replyAddr: addr})

	stopping := make(chan struct{})
	p1, ok := q.pop(stopping)
	require.True(t, ok)
	p2, ok := q.pop(stopping)
	require.True(t, ok)

	got := map[string]bool{string(p1.data): true, string(p2.data): true}
	require.True(t, got["a"])
	require.True(t, got["b"])
}

func TestPacketQueueGrowsUnderSaturation(t *testing.T) {
	q := newPacketQueue(1, 4)
	addr := netip.MustParseAddrPort("192.0.2.1:6881")

	for i := 0; i < 3; i++ {
		q.push(incomingPacket{data: []byte{byte(i)}, replyAddr: addr})
	}

	require.Greater(t, q.segmentsCount(), 1)
	require.Equal(t, uint64(0), q.droppedCount())
}

func TestPacketQueueDropsPastMaxSegments(t *testing.T) {
	q := newPacketQueue(1, 1)
	addr := netip.MustParseAddrPort("192.0.2.1:6881")

	q.push(incomingPacket{data: []byte{0}, replyAddr: addr})
	q.push(incomingPacket{data: []byte{1}, replyAddr: addr})

	require.Equal(t, uint64(1), q.droppedCount())
}

func TestPacketQueuePopReturnsFalseOnStop(t *testing.T) {
	q := newPacketQueue(4, 2)
	stopping := make(chan struct{})
	close(stopping)

	_, ok := q.pop(stopping)
	require.False(t, ok)
}

func TestPacketQueueConcurrentPushPop(t *testing.T) {
	q := newPacketQueue(8, 4)
	addr := netip.MustParseAddrPort("192.0.2.1:6881")
	stopping := make(chan struct{})

	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.push(incomingPacket{data: []byte{1}, replyAddr: addr})
		}()
	}

	received := 0
	var mu sync.Mutex
	var stopOnce sync.Once
	var workers sync.WaitGroup
	for i := 0; i < 4; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-stopping:
					return
				default:
				}
				_, ok := q.pop(stopping)
				if !ok {
					return
				}
				mu.Lock()
				received++
				done := received >= n
				mu.Unlock()
				if done {
					stopOnce.Do(func() { close(stopping) })
					return
				}
			}
		}()
	}

	wg.Wait()
	workers.Wait()
	require.GreaterOrEqual(t, received, n)
}
