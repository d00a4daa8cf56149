package udp

import (
	"net/netip"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/torrtrack/torrtrack/pkg/log"
)

// incomingPacket is a single inbound datagram queued for parsing by the
// worker pool, decoupled from the socket-reading goroutine. clientAddr is
// the address attributed to the sender (the socket's source address,
// unless a Simple Proxy Protocol header overrides it); replyAddr is where
// the response datagram must actually be written — always the socket's
// source address, since that's the only address packets can be routed
// back to.
type incomingPacket struct {
	data       []byte
	clientAddr netip.Addr
	replyAddr  netip.AddrPort
}

// packetQueue is a growable queue of incoming packets built from fixed
// capacity segments rather than one large buffered channel. Each segment is
// a bounded Go channel; when the current write segment is full the queue
// grows by appending a new segment instead of blocking the caller, so a
// burst of traffic dilates the queue rather than stalling socket reads.
// Growth is CAS-guarded so concurrent pushers only ever add one segment at
// a time.
type packetQueue struct {
	segmentCap  int
	maxSegments int

	mu       sync.RWMutex
	segments []chan incomingPacket
	writeAt  int

	growing atomic.Bool
	dropped atomic.Uint64
}

func newPacketQueue(segmentCap, maxSegments int) *packetQueue {
	return &packetQueue{
		segmentCap:  segmentCap,
		maxSegments: maxSegments,
		segments:    []chan incomingPacket{make(chan incomingPacket, segmentCap)},
	}
}

// push enqueues a packet, growing the segment ring when the current write
// segment is saturated. Once the ring has reached maxSegments and is still
// saturated, the packet is dropped — this mirrors the original's
// emergency-drop-with-warning behavior rather than blocking the reader
// indefinitely.
func (q *packetQueue) push(p incomingPacket) {
	if q.tryPush(p) {
		return
	}

	q.tryGrow()

	if q.tryPush(p) {
		return
	}

	q.dropped.Add(1)
	log.Warn("udp packet queue exhausted, dropping packet", log.Fields{"addr": p.replyAddr})
}

func (q *packetQueue) tryPush(p incomingPacket) bool {
	q.mu.RLock()
	segs := q.segments
	start := q.writeAt
	q.mu.RUnlock()

	for i := 0; i < len(segs); i++ {
		select {
		case segs[(start+i)%len(segs)] <- p:
			return true
		default:
		}
	}
	return false
}

func (q *packetQueue) tryGrow() {
	q.mu.RLock()
	full := len(q.segments) >= q.maxSegments
	q.mu.RUnlock()
	if full {
		return
	}

	if !q.growing.CompareAndSwap(false, true) {
		return
	}
	defer q.growing.Store(false)

	q.mu.Lock()
	q.segments = append(q.segments, make(chan incomingPacket, q.segmentCap))
	q.writeAt = len(q.segments) - 1
	q.mu.Unlock()
}

// pop blocks until a packet is available on any segment or stopping is
// closed, in which case it returns ok == false.
func (q *packetQueue) pop(stopping <-chan struct{}) (incomingPacket, bool) {
	q.mu.RLock()
	segs := make([]chan incomingPacket, len(q.segments))
	copy(segs, q.segments)
	q.mu.RUnlock()

	cases := make([]reflect.SelectCase, 0, len(segs)+1)
	for _, s := range segs {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(stopping)})

	chosen, recv, ok := reflect.Select(cases)
	if chosen == len(cases)-1 || !ok {
		return incomingPacket{}, false
	}
	return recv.Interface().(incomingPacket), true
}

// segmentsCount reports the current number of segments, for stats/logging.
func (q *packetQueue) segmentsCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.segments)
}

// droppedCount reports how many packets have been dropped due to queue
// exhaustion since startup.
func (q *packetQueue) droppedCount() uint64 {
	return q.dropped.Load()
}
