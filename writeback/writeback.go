// Package writeback persists the policy tables' journaled mutations — and
// the swarm store's snatch counts — to a relational database without
// blocking announces, per a fixed interval drain-and-upsert cycle. The
// actual database access lives behind the Store interface so the ticking
// loop here stays independent of any particular driver; writeback/gormstore
// provides the GORM-backed implementation.
package writeback

import (
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/stop"
	"github.com/torrtrack/torrtrack/policy"
)

const defaultInterval = 30 * time.Second

// Sink is notified after every writeback tick, so a stats aggregator can
// report the time of the last writeback cycle without polling.
type Sink interface {
	RecordSave(time.Time)
}

// Config holds the configuration of a Writeback ticker.
type Config struct {
	// Interval is how often pending journal entries are drained and
	// persisted.
	Interval time.Duration `yaml:"interval"`

	// Sink, if set, is notified once per tick.
	Sink Sink `yaml:"-"`
}

// LogFields renders the current config as a set of Fields for logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{"interval": cfg.Interval}
}

// Validate sanity checks values set in a config and returns a new config
// with default values substituted for anything invalid.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.Interval <= 0 {
		validcfg.Interval = defaultInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "writeback.Interval",
			"provided": cfg.Interval,
			"default":  validcfg.Interval,
		})
	}

	return validcfg
}

// Store persists the policy tables and swarm snatch counts to a relational
// database, and can reload them at startup. writeback/gormstore implements
// this over Postgres and SQLite.
type Store interface {
	LoadWhitelist() ([]bittorrent.InfoHash, error)
	LoadBlacklist() ([]bittorrent.InfoHash, error)
	LoadKeys() (map[policy.Key]policy.KeyEntry, error)
	LoadUsers() ([]policy.UserEntry, error)
	LoadTorrents() (map[bittorrent.InfoHash]uint32, error)

	SaveWhitelist(entries []policy.UpdateEntry) error
	SaveBlacklist(entries []policy.UpdateEntry) error
	SaveKeys(entries []policy.UpdateEntry) error
	SaveUsers(entries []policy.UpdateEntry) error
	SaveTorrents(entries []policy.UpdateEntry) error
}

// Tables bundles the journals a Writeback drains on every tick. Any field
// left nil is simply skipped.
type Tables struct {
	Whitelist *policy.Journal
	Blacklist *policy.Journal
	Keys      *policy.Journal
	Users     *policy.Journal
	Torrents  *policy.Journal
}

// Writeback periodically drains a set of policy journals and the swarm
// store's snatch-count journal, persisting whatever changed since the last
// tick to a Store.
type Writeback struct {
	store   Store
	tables  Tables
	sink    Sink
	closing chan struct{}
	done    chan struct{}
}

// New starts a Writeback that ticks every cfg.Interval until Stop is
// called.
func New(provided Config, store Store, tables Tables) *Writeback {
	cfg := provided.Validate()

	w := &Writeback{
		store:   store,
		tables:  tables,
		sink:    cfg.Sink,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go w.run(cfg.Interval)

	return w
}

func (w *Writeback) run(interval time.Duration) {
	defer close(w.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closing:
			w.tick()
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick drains every configured journal and persists whatever it finds. A
// table with nothing pending costs a single length check and no query.
func (w *Writeback) tick() {
	w.drain(w.tables.Whitelist, "whitelist", w.store.SaveWhitelist)
	w.drain(w.tables.Blacklist, "blacklist", w.store.SaveBlacklist)
	w.drain(w.tables.Keys, "keys", w.store.SaveKeys)
	w.drain(w.tables.Users, "users", w.store.SaveUsers)
	w.drain(w.tables.Torrents, "torrents", w.store.SaveTorrents)

	if w.sink != nil {
		w.sink.RecordSave(time.Now())
	}
}

func (w *Writeback) drain(j *policy.Journal, table string, save func([]policy.UpdateEntry) error) {
	if j == nil {
		return
	}

	entries := j.Drain()
	if len(entries) == 0 {
		return
	}

	if err := save(entries); err != nil {
		log.Error("writeback: failed to persist table", log.Fields{"table": table, "error": err, "entries": len(entries)})
		return
	}

	log.Debug("writeback: persisted table", log.Fields{"table": table, "entries": len(entries)})
}

// Stop drains every journal one final time, persists it, and returns once
// the background loop has exited.
func (w *Writeback) Stop() stop.Result {
	c := stop.NewChannel()

	go func() {
		close(w.closing)
		<-w.done
		c.Done()
	}()

	return c.Result()
}
