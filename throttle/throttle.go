// Package throttle implements a per-source-IP admission gate. It is the
// first line of defense against a single client hammering an expensive
// endpoint: an IP gets a free run of requests, then is rejected for a
// cooldown window once it crosses a count threshold.
package throttle

import (
	"net/netip"
	"sync"
	"time"

	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/stop"
)

// Default config constants.
const (
	defaultMaxCount       = 5
	defaultTimestampReset = 60 * time.Second
	defaultDurationReject = 60 * time.Second
	defaultSweepInterval  = time.Minute
)

// Config controls admission thresholds and sweep cadence. A zero Config
// (Enabled false) makes every Admit call return true without bookkeeping.
type Config struct {
	// Enabled turns the throttle on. Left false, Admit always allows and
	// Hit is a no-op — the throttle is entirely bypassed.
	Enabled bool `yaml:"enabled"`

	// MaxCount is the number of hits an IP may accrue before admission is
	// denied.
	MaxCount uint64 `yaml:"max_count"`

	// TimestampReset is how long an under-threshold entry may sit idle
	// before a sweep (or the next admission check) clears it.
	TimestampReset time.Duration `yaml:"timestamp_reset"`

	// DurationReject is how long an over-threshold entry keeps denying
	// admission before it is cleared and the IP gets a fresh count.
	DurationReject time.Duration `yaml:"duration_reject"`

	// SweepInterval is how often the background loop clears expired
	// entries. Zero is replaced by the one-minute default; entries are also
	// cleared lazily on Admit.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LogFields renders the config as loggable fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"enabled":        cfg.Enabled,
		"maxCount":       cfg.MaxCount,
		"timestampReset": cfg.TimestampReset,
		"durationReject": cfg.DurationReject,
		"sweepInterval":  cfg.SweepInterval,
	}
}

// Validate returns a copy of cfg with zero-valued fields replaced by
// defaults.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.MaxCount == 0 {
		validcfg.MaxCount = defaultMaxCount
		log.Warn("falling back to default configuration", log.Fields{"name": "MaxCount", "provided": cfg.MaxCount, "default": validcfg.MaxCount})
	}

	if cfg.TimestampReset <= 0 {
		validcfg.TimestampReset = defaultTimestampReset
		log.Warn("falling back to default configuration", log.Fields{"name": "TimestampReset", "provided": cfg.TimestampReset, "default": validcfg.TimestampReset})
	}

	if cfg.DurationReject <= 0 {
		validcfg.DurationReject = defaultDurationReject
		log.Warn("falling back to default configuration", log.Fields{"name": "DurationReject", "provided": cfg.DurationReject, "default": validcfg.DurationReject})
	}

	if cfg.SweepInterval <= 0 {
		validcfg.SweepInterval = defaultSweepInterval
		log.Warn("falling back to default configuration", log.Fields{"name": "SweepInterval", "provided": cfg.SweepInterval, "default": validcfg.SweepInterval})
	}

	return validcfg
}

type entry struct {
	firstSeen time.Time
	count     uint64
}

// Throttle is a concurrent per-IP admission table. The zero value is not
// usable; construct with New.
type Throttle struct {
	cfg Config

	mu      sync.Mutex
	entries map[netip.Addr]*entry

	closed chan struct{}
	wg     sync.WaitGroup
}

// New creates a Throttle and, if cfg.Enabled is set, starts its background
// sweep loop.
func New(provided Config) *Throttle {
	cfg := provided.Validate()
	t := &Throttle{
		cfg:     cfg,
		entries: make(map[netip.Addr]*entry),
		closed:  make(chan struct{}),
	}

	if cfg.Enabled {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			ticker := time.NewTicker(cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-t.closed:
					return
				case <-ticker.C:
					n := t.Sweep()
					if n > 0 {
						log.Debug("throttle sweep removed expired entries", log.Fields{"removed": n})
					}
				}
			}
		}()
	}

	return t
}

// Admit reports whether a request from addr should be allowed through. It
// does not record the hit — callers that admit the request should follow up
// with Hit. Disabled throttles always admit.
func (t *Throttle) Admit(addr netip.Addr) bool {
	if !t.cfg.Enabled {
		return true
	}

	addr = addr.Unmap()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[addr]
	if !ok {
		return true
	}

	now := time.Now()
	if e.count <= t.cfg.MaxCount {
		if now.After(e.firstSeen.Add(t.cfg.TimestampReset)) {
			delete(t.entries, addr)
		}
		return true
	}

	// Over threshold: still within the reject window, deny. Past it, clear
	// the entry and let this request through with a fresh count.
	if now.After(e.firstSeen.Add(t.cfg.DurationReject)) {
		delete(t.entries, addr)
		return true
	}
	return false
}

// Hit records one request from addr, creating its entry if this is the
// first one seen.
func (t *Throttle) Hit(addr netip.Addr) {
	if !t.cfg.Enabled {
		return
	}

	addr = addr.Unmap()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[addr]
	if !ok {
		t.entries[addr] = &entry{firstSeen: time.Now(), count: 1}
		return
	}
	e.count++
}

// Sweep removes every entry past its applicable expiry window and returns
// how many were removed.
func (t *Throttle) Sweep() int {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for addr, e := range t.entries {
		expired := false
		switch {
		case e.count <= t.cfg.MaxCount:
			expired = now.After(e.firstSeen.Add(t.cfg.TimestampReset))
		case e.count > t.cfg.MaxCount:
			expired = now.After(e.firstSeen.Add(t.cfg.DurationReject))
		}
		if expired {
			delete(t.entries, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of IPs currently tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop halts the background sweep loop.
func (t *Throttle) Stop() stop.Result {
	c := stop.NewChannel()
	go func() {
		close(t.closed)
		t.wg.Wait()
		c.Done()
	}()
	return c.Result()
}
