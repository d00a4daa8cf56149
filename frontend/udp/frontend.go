// Package udp implements a BitTorrent tracker via the UDP protocol as
// described in BEP 15.
package udp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/frontend"
	"github.com/torrtrack/torrtrack/frontend/udp/bytepool"
	"github.com/torrtrack/torrtrack/middleware"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/stop"
	"github.com/torrtrack/torrtrack/pkg/timecache"
	"github.com/torrtrack/torrtrack/stats"
)

// familyOf reports the bittorrent.AddressFamily of a raw netip.Addr, for
// stats events that have no bittorrent.Peer to ask.
func familyOf(ip netip.Addr) bittorrent.AddressFamily {
	if ip.Is4() || ip.Is4In6() {
		return bittorrent.IPv4
	}
	return bittorrent.IPv6
}

var allowedGeneratedPrivateKeyRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")

// Config represents all of the configurable options for a UDP BitTorrent
// Tracker.
type Config struct {
	Addr                string        `yaml:"addr"`
	PrivateKey          string        `yaml:"private_key"`
	MaxClockSkew        time.Duration `yaml:"max_clock_skew"`
	EnableRequestTiming bool          `yaml:"enable_request_timing"`
	ParseOptions        `yaml:",inline"`

	// ParseWorkers is the number of goroutines draining the packet queue
	// and running requests through TrackerLogic, independent of the single
	// goroutine that reads datagrams off the socket.
	ParseWorkers int `yaml:"parse_workers"`

	// QueueSegmentSize and QueueMaxSegments bound the packet queue: each
	// segment buffers this many packets, and the queue grows by one
	// segment at a time, up to this many segments, before it starts
	// dropping packets under sustained overload.
	QueueSegmentSize int `yaml:"queue_segment_size"`
	QueueMaxSegments int `yaml:"queue_max_segments"`

	// EnableSimpleProxyProtocol accepts a Simple Proxy Protocol header
	// (magic 0x56EC followed by the real client address/port) prepended to
	// inbound datagrams by a trusted UDP proxy, and uses it in place of the
	// socket's source address.
	EnableSimpleProxyProtocol bool `yaml:"enable_simple_proxy_protocol"`

	// Stats, if set, receives a connection/announce/scrape Event for every
	// request this frontend handles successfully.
	Stats *stats.Aggregator `yaml:"-"`
}

// LogFields renders the current config as a set of Fields for logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":                cfg.Addr,
		"privateKey":          cfg.PrivateKey,
		"maxClockSkew":        cfg.MaxClockSkew,
		"enableRequestTiming": cfg.EnableRequestTiming,
		"allowIPSpoofing":     cfg.AllowIPSpoofing,
		"maxNumWant":          cfg.MaxNumWant,
		"defaultNumWant":      cfg.DefaultNumWant,
		"maxScrapeInfoHashes": cfg.MaxScrapeInfoHashes,

		"parseWorkers":              cfg.ParseWorkers,
		"queueSegmentSize":          cfg.QueueSegmentSize,
		"queueMaxSegments":          cfg.QueueMaxSegments,
		"enableSimpleProxyProtocol": cfg.EnableSimpleProxyProtocol,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values substituted for anything invalid. It warns to the
// logger when a value is changed.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.PrivateKey == "" {
		pkeyRunes := make([]rune, 64)
		for i := range pkeyRunes {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(allowedGeneratedPrivateKeyRunes))))
			if err != nil {
				log.Fatal("failed to generate UDP private key", log.Err(err))
			}
			pkeyRunes[i] = allowedGeneratedPrivateKeyRunes[n.Int64()]
		}
		validcfg.PrivateKey = string(pkeyRunes)

		log.Warn("UDP private key was not provided, using generated key", log.Fields{"key": validcfg.PrivateKey})
	}

	if cfg.MaxNumWant <= 0 {
		validcfg.MaxNumWant = defaultMaxNumWant
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.MaxNumWant",
			"provided": cfg.MaxNumWant,
			"default":  validcfg.MaxNumWant,
		})
	}

	if cfg.DefaultNumWant <= 0 {
		validcfg.DefaultNumWant = defaultDefaultNumWant
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.DefaultNumWant",
			"provided": cfg.DefaultNumWant,
			"default":  validcfg.DefaultNumWant,
		})
	}

	if cfg.MaxScrapeInfoHashes <= 0 {
		validcfg.MaxScrapeInfoHashes = defaultMaxScrapeInfoHashes
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.MaxScrapeInfoHashes",
			"provided": cfg.MaxScrapeInfoHashes,
			"default":  validcfg.MaxScrapeInfoHashes,
		})
	}

	if cfg.ParseWorkers <= 0 {
		validcfg.ParseWorkers = defaultParseWorkers
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.ParseWorkers",
			"provided": cfg.ParseWorkers,
			"default":  validcfg.ParseWorkers,
		})
	}

	if cfg.QueueSegmentSize <= 0 {
		validcfg.QueueSegmentSize = defaultQueueSegmentSize
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.QueueSegmentSize",
			"provided": cfg.QueueSegmentSize,
			"default":  validcfg.QueueSegmentSize,
		})
	}

	if cfg.QueueMaxSegments <= 0 {
		validcfg.QueueMaxSegments = defaultQueueMaxSegments
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.QueueMaxSegments",
			"provided": cfg.QueueMaxSegments,
			"default":  validcfg.QueueMaxSegments,
		})
	}

	return validcfg
}

const (
	defaultParseWorkers     = 4
	defaultQueueSegmentSize = 1024
	defaultQueueMaxSegments = 8
)

// Frontend holds the state of a UDP BitTorrent Frontend.
type Frontend struct {
	socket  *net.UDPConn
	closing chan struct{}
	wg      sync.WaitGroup

	queue  *packetQueue
	sender *responseBatchSender

	genPool *sync.Pool

	logic frontend.TrackerLogic
	Config
}

// NewFrontend creates a new instance of a UDP Frontend that asynchronously
// serves requests. Datagrams are read by a single goroutine into a growable
// packet queue, drained by a pool of ParseWorkers goroutines that run
// requests through logic and hand responses to a batching sender.
func NewFrontend(logic frontend.TrackerLogic, provided Config) (*Frontend, error) {
	cfg := provided.Validate()

	f := &Frontend{
		closing: make(chan struct{}),
		queue:   newPacketQueue(cfg.QueueSegmentSize, cfg.QueueMaxSegments),
		logic:   logic,
		Config:  cfg,
		genPool: &sync.Pool{
			New: func() interface{} {
				return NewConnectionIDGenerator(cfg.PrivateKey)
			},
		},
	}

	if err := f.listen(); err != nil {
		return nil, err
	}

	f.sender = newResponseBatchSender(f.socket, defaultResponseBatchSize, defaultResponseBatchInterval)

	for i := 0; i < cfg.ParseWorkers; i++ {
		f.wg.Add(1)
		go f.work()
	}

	go func() {
		if err := f.serve(); err != nil {
			log.Fatal("failed while serving udp", log.Err(err))
		}
	}()

	return f, nil
}

// Stop provides a thread-safe way to shut down a currently running Frontend.
func (t *Frontend) Stop() stop.Result {
	select {
	case <-t.closing:
		return stop.AlreadyStopped
	default:
	}

	c := stop.NewChannel()
	go func() {
		close(t.closing)
		_ = t.socket.SetReadDeadline(time.Now())
		t.wg.Wait()
		t.sender.stop()
		_ = t.socket.Close()
		c.Done()
	}()

	return c.Result()
}

// listen resolves the address and binds the server socket.
func (t *Frontend) listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", t.Addr)
	if err != nil {
		return err
	}
	t.socket, err = net.ListenUDP("udp", udpAddr)
	return err
}

// serve blocks reading datagrams off the socket and pushing them onto the
// packet queue until Stop() is called or an error is returned. Parsing and
// dispatch happen on the work() worker pool, not here, so a slow request
// never delays the next socket read.
func (t *Frontend) serve() error {
	pool := bytepool.New(2048)

	t.wg.Add(1)
	defer t.wg.Done()

	for {
		select {
		case <-t.closing:
			log.Debug("udp serve() received shutdown signal")
			return nil
		default:
		}

		buffer := pool.Get()
		n, addrPort, err := t.socket.ReadFromUDPAddrPort(*buffer)
		if err != nil {
			pool.Put(buffer)
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return err
		}

		if n == 0 {
			pool.Put(buffer)
			continue
		}

		packet := append([]byte{}, (*buffer)[:n]...)
		pool.Put(buffer)

		clientAddr := addrPort.Addr().Unmap()
		if t.EnableSimpleProxyProtocol {
			header, offset, found, sppErr := parseSPPHeader(packet)
			if sppErr != nil {
				// Magic present but header truncated; drop silently like
				// any other malformed packet rather than feeding a partial
				// header into the queue.
				continue
			}
			if found {
				clientAddr = header.clientAddr
				packet = packet[offset:]
			}
		}

		t.queue.push(incomingPacket{
			data:       packet,
			clientAddr: clientAddr,
			replyAddr:  addrPort,
		})
	}
}

// work drains the packet queue and runs each packet through handleRequest
// until the queue reports shutdown.
func (t *Frontend) work() {
	defer t.wg.Done()

	for {
		p, ok := t.queue.pop(t.closing)
		if !ok {
			return
		}

		var start time.Time
		if t.EnableRequestTiming {
			start = time.Now()
		}

		action, err := t.handleRequest(
			Request{Packet: p.data, IP: p.clientAddr},
			ResponseWriter{t.sender, p.replyAddr},
		)

		var elapsed time.Duration
		if t.EnableRequestTiming {
			elapsed = time.Since(start)
		}
		recordResponseDuration(action, p.clientAddr, err, elapsed)
	}
}

// Request represents a UDP payload received by a Tracker.
type Request struct {
	Packet []byte
	IP     netip.Addr
}

// ResponseWriter implements the ability to respond to a Request via the
// io.Writer interface. Writes are handed to the frontend's batch sender
// rather than written to the socket directly.
type ResponseWriter struct {
	sender *responseBatchSender
	addr   netip.AddrPort
}

// Write implements the io.Writer interface for a ResponseWriter.
func (w ResponseWriter) Write(b []byte) (int, error) {
	w.sender.enqueue(b, w.addr)
	return len(b), nil
}

// handleRequest parses and responds to a UDP Request.
func (t *Frontend) handleRequest(r Request, w ResponseWriter) (actionName string, err error) {
	if len(r.Packet) < 16 {
		// Malformed, no client packets are less than 16 bytes.
		// We explicitly return nothing in case this is a DoS attempt.
		err = errMalformedPacket
		return
	}

	connID := r.Packet[0:8]
	actionID := binary.BigEndian.Uint32(r.Packet[8:12])
	txID := r.Packet[12:16]

	gen := t.genPool.Get().(*ConnectionIDGenerator)
	defer t.genPool.Put(gen)

	if actionID != connectActionID && !gen.Validate(connID, r.IP, timecache.Now(), t.MaxClockSkew) {
		err = errBadConnectionID
		WriteError(w, txID, err)
		return
	}

	switch actionID {
	case connectActionID:
		actionName = "connect"

		if !bytes.Equal(connID, initialConnectionID) {
			err = errMalformedPacket
			return
		}

		WriteConnectionID(w, txID, gen.Generate(r.IP, timecache.Now()))

		if t.Stats != nil {
			t.Stats.Record(stats.Event{Kind: stats.EventConnection, Protocol: stats.UDP})
		}

	case announceActionID, announceV6ActionID:
		actionName = "announce"

		var req *bittorrent.AnnounceRequest
		req, err = ParseAnnounce(r, actionID == announceV6ActionID, t.ParseOptions)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		ctx := context.Background()
		var resp *bittorrent.AnnounceResponse
		resp, err = t.logic.HandleAnnounce(ctx, req)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		WriteAnnounce(w, txID, resp, actionID == announceV6ActionID)

		if t.Stats != nil {
			t.Stats.Record(stats.Event{Kind: stats.EventAnnounce, Protocol: stats.UDP, Family: req.AddressFamily()})
		}

		go t.logic.AfterAnnounce(ctx, req, resp)

	case scrapeActionID:
		actionName = "scrape"

		var req *bittorrent.ScrapeRequest
		req, err = ParseScrape(r, t.ParseOptions)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		ctx := context.Background()
		ctx = context.WithValue(ctx, middleware.ScrapeIsIPv6Key, familyOf(r.IP) == bittorrent.IPv6)
		ctx = context.WithValue(ctx, middleware.ScrapeSourceAddrKey, r.IP)
		var resp *bittorrent.ScrapeResponse
		resp, err = t.logic.HandleScrape(ctx, req)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		WriteScrape(w, txID, resp)

		if t.Stats != nil {
			t.Stats.Record(stats.Event{Kind: stats.EventScrape, Protocol: stats.UDP, Family: familyOf(r.IP)})
		}

		go t.logic.AfterScrape(ctx, req, resp)

	default:
		err = errUnknownAction
		WriteError(w, txID, err)
	}

	return
}
