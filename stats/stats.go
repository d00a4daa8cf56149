// Package stats implements the tracker's processing-statistics aggregator:
// a single-writer event bus that turns many concurrent senders' fire-and-
// forget events into a consistent running snapshot, without putting a lock
// on the hot announce/scrape path.
package stats

import (
	"sync"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/writeback"
)

// Protocol names which wire protocol produced an event.
type Protocol uint8

// Known protocols.
const (
	HTTP Protocol = iota
	UDP
)

func (p Protocol) String() string {
	if p == UDP {
		return "udp"
	}
	return "http"
}

// Kind names the category of a recorded Event.
type Kind uint8

// Known event kinds.
const (
	EventConnection Kind = iota
	EventAnnounce
	EventScrape
)

// Event is sent by any number of goroutines into an Aggregator's channel.
// It is intentionally small and copyable so recording one never blocks on
// anything but the channel send itself.
type Event struct {
	Kind     Kind
	Protocol Protocol
	Family   bittorrent.AddressFamily
}

// Snapshot is a point-in-time copy of everything an Aggregator tracks. It
// is safe to read after Aggregator.Snapshot returns it, since nothing else
// holds a reference to it.
type Snapshot struct {
	Start time.Time

	ConnectionsHTTP uint64
	ConnectionsUDP  uint64

	AnnouncesIPv4 uint64
	AnnouncesIPv6 uint64
	ScrapesIPv4   uint64
	ScrapesIPv6   uint64

	// Seeders, Leechers, and Completed are running totals kept in sync
	// with the swarm store via RecordPeerDelta; Torrents changes only
	// through RecordTorrentDelta. None of them is recomputed from scratch.
	Torrents  int64
	Seeders   int64
	Leechers  int64
	Completed int64

	WhitelistJournalLen int
	BlacklistJournalLen int
	KeysJournalLen      int
	UsersJournalLen     int
	TorrentsJournalLen  int

	LastSave       time.Time
	LastKeyCleanup time.Time
}

// Uptime reports how long the Aggregator this Snapshot came from has been
// running.
func (s Snapshot) Uptime() time.Duration {
	return time.Since(s.Start)
}

// Aggregator is the event bus's single reader. Every RecordXxx method is
// safe to call from any number of goroutines. Events sent with Record are
// applied only inside the one goroutine started by New; RecordPeerDelta,
// RecordTorrentDelta, RecordSave, and RecordKeyCleanup update the snapshot
// directly under its mutex, in the caller's goroutine.
type Aggregator struct {
	events  chan Event
	tables  writeback.Tables
	closing chan struct{}
	wg      sync.WaitGroup

	mu   sync.RWMutex
	snap Snapshot
}

// Config controls the Aggregator's event channel and which journals it
// reports the length of.
type Config struct {
	// ChannelSize bounds how many in-flight events may be buffered before
	// Record starts dropping them. Zero uses a sane default.
	ChannelSize int

	// Tables, if set, is polled for journal lengths on every Snapshot call
	// and on every Prometheus export tick.
	Tables writeback.Tables

	// PrometheusReportingInterval is how often the Snapshot is copied into
	// the registered Prometheus collectors. Zero uses a sane default.
	PrometheusReportingInterval time.Duration
}

const defaultChannelSize = 4096

// New starts an Aggregator, its background event-consuming goroutine, and
// its Prometheus export loop.
func New(cfg Config) *Aggregator {
	size := cfg.ChannelSize
	if size <= 0 {
		size = defaultChannelSize
	}

	interval := cfg.PrometheusReportingInterval
	if interval <= 0 {
		interval = defaultPrometheusReportingInterval
	}

	a := &Aggregator{
		events:  make(chan Event, size),
		tables:  cfg.Tables,
		closing: make(chan struct{}),
		snap:    Snapshot{Start: time.Now()},
	}

	a.wg.Add(1)
	go a.run()

	a.wg.Add(1)
	go a.reportLoop(interval)

	return a
}

func (a *Aggregator) reportLoop(interval time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.closing:
			return
		case <-ticker.C:
			a.populateProm()
		}
	}
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	for {
		select {
		case <-a.closing:
			// Drain whatever is already queued before exiting, so a burst
			// right before shutdown is not silently dropped.
			for {
				select {
				case e := <-a.events:
					a.apply(e)
				default:
					return
				}
			}
		case e := <-a.events:
			a.apply(e)
		}
	}
}

func (a *Aggregator) apply(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e.Kind {
	case EventConnection:
		if e.Protocol == UDP {
			a.snap.ConnectionsUDP++
		} else {
			a.snap.ConnectionsHTTP++
		}
	case EventAnnounce:
		if e.Family == bittorrent.IPv6 {
			a.snap.AnnouncesIPv6++
		} else {
			a.snap.AnnouncesIPv4++
		}
	case EventScrape:
		if e.Family == bittorrent.IPv6 {
			a.snap.ScrapesIPv6++
		} else {
			a.snap.ScrapesIPv4++
		}
	}
}

// Record enqueues an event. It never blocks indefinitely: if the channel is
// full, the event is dropped rather than stalling the caller's hot path.
func (a *Aggregator) Record(e Event) {
	select {
	case a.events <- e:
	default:
	}
}

// RecordPeerDelta implements storage/memory.StatsSink, letting the swarm
// store report size changes directly into the running totals.
func (a *Aggregator) RecordPeerDelta(seeds, leechers, completed int32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snap.Seeders += int64(seeds)
	a.snap.Leechers += int64(leechers)
	a.snap.Completed += int64(completed)
}

// RecordTorrentDelta adjusts the running torrent-count total, for callers
// that add or remove swarms outside of an announce (e.g. admin API, load
// from a persistent store at startup).
func (a *Aggregator) RecordTorrentDelta(delta int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap.Torrents += delta
}

// RecordSave implements writeback.Sink, letting the writeback ticker report
// the time of its last cycle.
func (a *Aggregator) RecordSave(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap.LastSave = t
}

// RecordKeyCleanup records the time a key-expiry sweep last ran.
func (a *Aggregator) RecordKeyCleanup(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap.LastKeyCleanup = t
}

// Snapshot returns a consistent copy of the current counters, including the
// live length of every configured journal.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	snap := a.snap
	a.mu.RUnlock()

	if j := a.tables.Whitelist; j != nil {
		snap.WhitelistJournalLen = j.Len()
	}
	if j := a.tables.Blacklist; j != nil {
		snap.BlacklistJournalLen = j.Len()
	}
	if j := a.tables.Keys; j != nil {
		snap.KeysJournalLen = j.Len()
	}
	if j := a.tables.Users; j != nil {
		snap.UsersJournalLen = j.Len()
	}
	if j := a.tables.Torrents; j != nil {
		snap.TorrentsJournalLen = j.Len()
	}

	return snap
}

// Stop halts the event-consuming goroutine after draining anything already
// queued.
func (a *Aggregator) Stop() {
	close(a.closing)
	a.wg.Wait()
}
