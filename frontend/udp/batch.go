package udp

import (
	"net"
	"net/netip"
	"sync"
	"time"
)

// Default batch-sender thresholds: a batch flushes once it holds this many
// responses or this much time has elapsed, whichever comes first.
const (
	defaultResponseBatchSize     = 500
	defaultResponseBatchInterval = 5 * time.Millisecond
)

type batchedResponse struct {
	data []byte
	addr netip.AddrPort
}

// responseBatchSender buffers outgoing UDP responses and writes them to the
// socket in batches instead of one syscall per response, trading a few
// milliseconds of latency for far fewer sendto() calls under load.
type responseBatchSender struct {
	socket        *net.UDPConn
	batchSize     int
	flushInterval time.Duration

	queued   chan batchedResponse
	closing  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newResponseBatchSender(socket *net.UDPConn, batchSize int, flushInterval time.Duration) *responseBatchSender {
	s := &responseBatchSender{
		socket:        socket,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		queued:        make(chan batchedResponse, batchSize*4),
		closing:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.run()
	return s
}

// enqueue queues a response for sending. b must not be mutated after this
// call; every writer.go helper allocates a fresh buffer per call, so
// responses are never aliased or reused once written here.
func (s *responseBatchSender) enqueue(b []byte, addr netip.AddrPort) {
	select {
	case s.queued <- batchedResponse{data: b, addr: addr}:
	case <-s.closing:
	}
}

func (s *responseBatchSender) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	pending := make([]batchedResponse, 0, s.batchSize)
	flush := func() {
		for _, r := range pending {
			_, _ = s.socket.WriteToUDPAddrPort(r.data, r.addr)
		}
		pending = pending[:0]
	}

	for {
		select {
		case r := <-s.queued:
			pending = append(pending, r)
			if len(pending) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			if len(pending) > 0 {
				flush()
			}
		case <-s.closing:
			for {
				select {
				case r := <-s.queued:
					pending = append(pending, r)
				default:
					flush()
					return
				}
			}
		}
	}
}

// stop flushes any pending responses and blocks until the sender's
// goroutine has exited. Safe to call more than once.
func (s *responseBatchSender) stop() {
	s.stopOnce.Do(func() { close(s.closing) })
	<-s.done
}
