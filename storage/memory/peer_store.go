// Package memory implements storage.PeerStore backed by sharded in-memory
// maps.
package memory

import (
	"encoding/binary"
	"encoding/hex"
	"runtime"
	"sync"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/stop"
	"github.com/torrtrack/torrtrack/pkg/timecache"
	"github.com/torrtrack/torrtrack/policy"
	"github.com/torrtrack/torrtrack/storage"
)

// Default config constants.
const (
	defaultShardCount                  = 1024
	defaultPrometheusReportingInterval = time.Second
	defaultGarbageCollectionInterval   = time.Minute * 3
	defaultPeerLifetime                = time.Minute * 30
)

// StatsSink receives swarm size deltas as they happen, so a stats aggregator
// can maintain running totals without polling the store.
type StatsSink interface {
	RecordPeerDelta(seeds, leechers, completed int32)
}

// Config holds the configuration of a memory PeerStore.
type Config struct {
	GarbageCollectionInterval   time.Duration `yaml:"gc_interval"`
	PrometheusReportingInterval time.Duration `yaml:"prometheus_reporting_interval"`
	PeerLifetime                time.Duration `yaml:"peer_lifetime"`
	ShardCount                  int           `yaml:"shard_count"`

	// Persistent keeps a swarm's entry (and its snatch count) around after
	// its last peer leaves, so the count survives until the next writeback
	// cycle reads it. Garbage collection still clears the peer maps.
	Persistent bool `yaml:"persistent"`

	// Sink, if set, is notified of every swarm-size change.
	Sink StatsSink `yaml:"-"`

	// TorrentsJournal, if set, is recorded on every snatch so the
	// writeback pipeline can persist swarm completion counts.
	TorrentsJournal *policy.Journal `yaml:"-"`
}

// LogFields renders the config as a set of loggable fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"gcInterval":         cfg.GarbageCollectionInterval,
		"promReportInterval": cfg.PrometheusReportingInterval,
		"peerLifetime":       cfg.PeerLifetime,
		"shardCount":         cfg.ShardCount,
		"persistent":         cfg.Persistent,
	}
}

// Validate sanity-checks values set in a config and returns a new config
// with defaults substituted for anything invalid, warning to the logger for
// each substitution.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.ShardCount <= 0 {
		validcfg.ShardCount = defaultShardCount
		log.Warn("falling back to default configuration", log.Fields{"name": "ShardCount", "provided": cfg.ShardCount, "default": validcfg.ShardCount})
	}
	if cfg.GarbageCollectionInterval <= 0 {
		validcfg.GarbageCollectionInterval = defaultGarbageCollectionInterval
		log.Warn("falling back to default configuration", log.Fields{"name": "GarbageCollectionInterval", "provided": cfg.GarbageCollectionInterval, "default": validcfg.GarbageCollectionInterval})
	}
	if cfg.PrometheusReportingInterval <= 0 {
		validcfg.PrometheusReportingInterval = defaultPrometheusReportingInterval
		log.Warn("falling back to default configuration", log.Fields{"name": "PrometheusReportingInterval", "provided": cfg.PrometheusReportingInterval, "default": validcfg.PrometheusReportingInterval})
	}
	if cfg.PeerLifetime <= 0 {
		validcfg.PeerLifetime = defaultPeerLifetime
		log.Warn("falling back to default configuration", log.Fields{"name": "PeerLifetime", "provided": cfg.PeerLifetime, "default": validcfg.PeerLifetime})
	}

	return validcfg
}

// New creates a new PeerStore backed by memory.
func New(provided Config) storage.PeerStore {
	cfg := provided.Validate()
	ps := &peerStore{
		cfg:    cfg,
		shards: make([]*peerShard, cfg.ShardCount*2),
		closed: make(chan struct{}),
	}

	for i := range ps.shards {
		ps.shards[i] = &peerShard{swarms: make(map[bittorrent.InfoHash]*swarm)}
	}

	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		for {
			select {
			case <-ps.closed:
				return
			case <-time.After(cfg.GarbageCollectionInterval):
				before := time.Now().Add(-cfg.PeerLifetime)
				ps.collectGarbage(before)
			}
		}
	}()

	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		t := time.NewTicker(cfg.PrometheusReportingInterval)
		defer t.Stop()
		for {
			select {
			case <-ps.closed:
				return
			case <-t.C:
				ps.populateProm()
			}
		}
	}()

	return ps
}

type serializedPeer string

func newPeerKey(p bittorrent.Peer) serializedPeer {
	b := make([]byte, 20+18)
	copy(b[:20], p.ID[:])
	addr := p.AddrPort.Addr()
	if addr.Is4() || addr.Is4In6() {
		a4 := addr.As4()
		copy(b[20:24], a4[:])
		binary.BigEndian.PutUint16(b[24:26], p.AddrPort.Port())
		return serializedPeer(b[:26])
	}
	a16 := addr.As16()
	copy(b[20:36], a16[:])
	binary.BigEndian.PutUint16(b[36:38], p.AddrPort.Port())
	return serializedPeer(append(b, 0, 0)[:38])
}

func decodePeerKey(pk serializedPeer) bittorrent.Peer {
	id := bittorrent.PeerIDFromString(string(pk[:20]))
	rest := pk[20:]

	if len(rest) == 6 {
		var a [4]byte
		copy(a[:], rest[:4])
		port := binary.BigEndian.Uint16([]byte(rest[4:6]))
		return bittorrent.Peer{ID: id, AddrPort: netAddrPort4(a, port)}
	}

	var a [16]byte
	copy(a[:], rest[:16])
	port := binary.BigEndian.Uint16([]byte(rest[16:18]))
	return bittorrent.Peer{ID: id, AddrPort: netAddrPort6(a, port)}
}

type peerShard struct {
	swarms      map[bittorrent.InfoHash]*swarm
	numSeeders  uint64
	numLeechers uint64
	sync.RWMutex
}

type swarm struct {
	seeders  map[serializedPeer]int64
	leechers map[serializedPeer]int64
	snatches uint32
}

type peerStore struct {
	cfg    Config
	shards []*peerShard

	closed chan struct{}
	wg     sync.WaitGroup
}

var _ storage.PeerStore = &peerStore{}

func newSwarm() *swarm {
	return &swarm{
		seeders:  make(map[serializedPeer]int64),
		leechers: make(map[serializedPeer]int64),
	}
}

func (ps *peerStore) populateProm() {
	var numInfohashes, numSeeders, numLeechers uint64
	for _, s := range ps.shards {
		s.RLock()
		numInfohashes += uint64(len(s.swarms))
		numSeeders += s.numSeeders
		numLeechers += s.numLeechers
		s.RUnlock()
	}

	storage.PromInfohashesCount.Set(float64(numInfohashes))
	storage.PromSeedersCount.Set(float64(numSeeders))
	storage.PromLeechersCount.Set(float64(numLeechers))
}

func recordGCDuration(d time.Duration) {
	storage.PromGCDurationMilliseconds.Observe(float64(d.Nanoseconds()) / float64(time.Millisecond))
}

func (ps *peerStore) notify(seeds, leechers, completed int32) {
	if ps.cfg.Sink != nil {
		ps.cfg.Sink.RecordPeerDelta(seeds, leechers, completed)
	}
}

// shardIndex splits the shard space in half: the first half holds IPv4
// swarms, the second half IPv6 swarms, so that an IPv4-only and an IPv6-only
// announce for the same info_hash never contend on the same mutex.
func (ps *peerStore) shardIndex(ih bittorrent.InfoHash, af bittorrent.AddressFamily) uint32 {
	idx := binary.BigEndian.Uint32(ih[:4]) % (uint32(len(ps.shards)) / 2)
	if af == bittorrent.IPv6 {
		idx += uint32(len(ps.shards) / 2)
	}
	return idx
}

func (ps *peerStore) checkClosed() {
	select {
	case <-ps.closed:
		panic("storage/memory: attempted to use a stopped peer store")
	default:
	}
}

func (ps *peerStore) PutSeeder(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.checkClosed()

	pk := newPeerKey(p)
	shard := ps.shards[ps.shardIndex(ih, p.AddressFamily())]
	shard.Lock()

	s, ok := shard.swarms[ih]
	if !ok {
		s = newSwarm()
		shard.swarms[ih] = s
	}

	if _, ok := s.seeders[pk]; !ok {
		shard.numSeeders++
		ps.notify(1, 0, 0)
	}
	s.seeders[pk] = timecache.NowUnixNano()

	shard.Unlock()
	return nil
}

func (ps *peerStore) deleteEmptySwarm(shard *peerShard, ih bittorrent.InfoHash, s *swarm) {
	if ps.cfg.Persistent {
		return
	}
	if len(s.seeders)|len(s.leechers) == 0 {
		delete(shard.swarms, ih)
	}
}

func (ps *peerStore) DeleteSeeder(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.checkClosed()

	pk := newPeerKey(p)
	shard := ps.shards[ps.shardIndex(ih, p.AddressFamily())]
	shard.Lock()
	defer shard.Unlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return storage.ErrResourceDoesNotExist
	}
	if _, ok := s.seeders[pk]; !ok {
		return storage.ErrResourceDoesNotExist
	}

	shard.numSeeders--
	delete(s.seeders, pk)
	ps.notify(-1, 0, 0)
	ps.deleteEmptySwarm(shard, ih, s)
	return nil
}

func (ps *peerStore) PutLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.checkClosed()

	pk := newPeerKey(p)
	shard := ps.shards[ps.shardIndex(ih, p.AddressFamily())]
	shard.Lock()

	s, ok := shard.swarms[ih]
	if !ok {
		s = newSwarm()
		shard.swarms[ih] = s
	}

	if _, ok := s.leechers[pk]; !ok {
		shard.numLeechers++
		ps.notify(0, 1, 0)
	}
	s.leechers[pk] = timecache.NowUnixNano()

	shard.Unlock()
	return nil
}

func (ps *peerStore) DeleteLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.checkClosed()

	pk := newPeerKey(p)
	shard := ps.shards[ps.shardIndex(ih, p.AddressFamily())]
	shard.Lock()
	defer shard.Unlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return storage.ErrResourceDoesNotExist
	}
	if _, ok := s.leechers[pk]; !ok {
		return storage.ErrResourceDoesNotExist
	}

	shard.numLeechers--
	delete(s.leechers, pk)
	ps.notify(0, -1, 0)
	ps.deleteEmptySwarm(shard, ih, s)
	return nil
}

// GraduateLeecher promotes a leecher to a seeder. The swarm's snatch count
// only increments on an actual seed transition, so a repeat announce from a
// peer that is already a seeder with event=completed is not double-counted.
func (ps *peerStore) GraduateLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.checkClosed()

	pk := newPeerKey(p)
	shard := ps.shards[ps.shardIndex(ih, p.AddressFamily())]
	shard.Lock()

	s, ok := shard.swarms[ih]
	if !ok {
		s = newSwarm()
		shard.swarms[ih] = s
	}

	if _, ok := s.leechers[pk]; ok {
		shard.numLeechers--
		delete(s.leechers, pk)
		ps.notify(0, -1, 0)
	}

	if _, ok := s.seeders[pk]; !ok {
		shard.numSeeders++
		s.snatches++
		ps.notify(1, 0, 1)

		if ps.cfg.TorrentsJournal != nil {
			ps.cfg.TorrentsJournal.Record(policy.UpdateEntry{
				Action:  policy.Mutate,
				Key:     hex.EncodeToString(ih[:]),
				Payload: s.snatches,
			})
		}
	}
	s.seeders[pk] = timecache.NowUnixNano()

	shard.Unlock()
	return nil
}

func (ps *peerStore) AnnouncePeers(ih bittorrent.InfoHash, seeder bool, numWant int, announcer bittorrent.Peer) (peers []bittorrent.Peer, err error) {
	ps.checkClosed()

	shard := ps.shards[ps.shardIndex(ih, announcer.AddressFamily())]
	shard.RLock()
	defer shard.RUnlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return nil, storage.ErrResourceDoesNotExist
	}

	if seeder {
		// A seeder only needs leechers.
		for pk := range s.leechers {
			if numWant == 0 {
				break
			}
			peers = append(peers, decodePeerKey(pk))
			numWant--
		}
		return peers, nil
	}

	// A leecher gets seeders first, then other leechers.
	for pk := range s.seeders {
		if numWant == 0 {
			break
		}
		peers = append(peers, decodePeerKey(pk))
		numWant--
	}

	if numWant > 0 {
		announcerPK := newPeerKey(announcer)
		for pk := range s.leechers {
			if pk == announcerPK {
				continue
			}
			if numWant == 0 {
				break
			}
			peers = append(peers, decodePeerKey(pk))
			numWant--
		}
	}

	return peers, nil
}

func (ps *peerStore) ScrapeSwarm(ih bittorrent.InfoHash, af bittorrent.AddressFamily) (resp bittorrent.Scrape) {
	ps.checkClosed()

	resp.InfoHash = ih
	shard := ps.shards[ps.shardIndex(ih, af)]
	shard.RLock()
	defer shard.RUnlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return resp
	}

	resp.Incomplete = uint32(len(s.leechers))
	resp.Complete = uint32(len(s.seeders))
	resp.Snatches = s.snatches
	return resp
}

// CollectGarbage deletes all peers that haven't announced since cutoff.
func (ps *peerStore) CollectGarbage(cutoff time.Time) error {
	select {
	case <-ps.closed:
		return nil
	default:
	}

	cutoffUnix := cutoff.UnixNano()
	start := time.Now()

	for _, shard := range ps.shards {
		shard.RLock()
		infohashes := make([]bittorrent.InfoHash, 0, len(shard.swarms))
		for ih := range shard.swarms {
			infohashes = append(infohashes, ih)
		}
		shard.RUnlock()
		runtime.Gosched()

		for _, ih := range infohashes {
			shard.Lock()
			s, ok := shard.swarms[ih]
			if !ok {
				shard.Unlock()
				continue
			}

			for pk, mtime := range s.leechers {
				if mtime <= cutoffUnix {
					shard.numLeechers--
					delete(s.leechers, pk)
					ps.notify(0, -1, 0)
				}
			}
			for pk, mtime := range s.seeders {
				if mtime <= cutoffUnix {
					shard.numSeeders--
					delete(s.seeders, pk)
					ps.notify(-1, 0, 0)
				}
			}

			ps.deleteEmptySwarm(shard, ih, s)
			shard.Unlock()
			runtime.Gosched()
		}
	}

	recordGCDuration(time.Since(start))
	return nil
}

func (ps *peerStore) Stop() stop.Result {
	c := stop.NewChannel()
	go func() {
		close(ps.closed)
		ps.wg.Wait()

		shards := make([]*peerShard, len(ps.shards))
		for i := range shards {
			shards[i] = &peerShard{swarms: make(map[bittorrent.InfoHash]*swarm)}
		}
		ps.shards = shards

		c.Done()
	}()
	return c.Result()
}

func (ps *peerStore) LogFields() log.Fields {
	return ps.cfg.LogFields()
}
