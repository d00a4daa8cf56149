// Package memcache implements cache.Cache over Memcache, as the fallback
// backend when no Redis deployment is available. The client is synchronous,
// so every call is serialized behind a mutex.
package memcache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/cache"
	"github.com/torrtrack/torrtrack/pkg/log"
)

const defaultPrefix = "torrtrack:"

// Config holds the configuration of a Cache's Memcache connection.
type Config struct {
	Addrs  []string `yaml:"addrs"`
	Prefix string   `yaml:"prefix"`
}

// LogFields renders the current config as a set of Fields for logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{"addrs": cfg.Addrs, "prefix": cfg.Prefix}
}

// Validate sanity checks values set in a config and returns a new config
// with default values substituted for anything invalid.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if len(cfg.Addrs) == 0 {
		validcfg.Addrs = []string{"127.0.0.1:11211"}
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "memcache.Addrs",
			"provided": cfg.Addrs,
			"default":  validcfg.Addrs,
		})
	}

	if cfg.Prefix == "" {
		validcfg.Prefix = defaultPrefix
	}

	return validcfg
}

var _ cache.Cache = (*Cache)(nil)

// Cache is a Memcache-backed cache.Cache. Counts are stored as a single
// "seeds:peers" string value, since Memcache has no hash type.
type Cache struct {
	mu     sync.Mutex
	client *memcache.Client
	prefix string
}

// New builds a Cache connecting to cfg.Addrs.
func New(provided Config) *Cache {
	cfg := provided.Validate()
	return &Cache{client: memcache.New(cfg.Addrs...), prefix: cfg.Prefix}
}

func encodeCounts(seeds, peers uint32) string {
	return strconv.FormatUint(uint64(seeds), 10) + ":" + strconv.FormatUint(uint64(peers), 10)
}

func decodeCounts(value []byte) (seeds, peers uint32, ok bool) {
	parts := strings.SplitN(string(value), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	s, err1 := strconv.ParseUint(parts[0], 10, 32)
	p, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return uint32(s), uint32(p), true
}

// SetTorrentPeers implements cache.Cache.
func (c *Cache) SetTorrentPeers(infoHash bittorrent.InfoHash, seeds, peers uint32, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.client.Set(&memcache.Item{
		Key:        cache.Key(c.prefix, infoHash),
		Value:      []byte(encodeCounts(seeds, peers)),
		Expiration: int32(ttl.Seconds()),
	})
}

// GetTorrentPeers implements cache.Cache.
func (c *Cache) GetTorrentPeers(infoHash bittorrent.InfoHash) (seeds, peers uint32, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.client.Get(cache.Key(c.prefix, infoHash))
	if err == memcache.ErrCacheMiss {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}

	seeds, peers, ok = decodeCounts(item.Value)
	return seeds, peers, ok, nil
}

// SetTorrentPeersBatch implements cache.Cache, issuing one Set per entry —
// the synchronous Memcache client has no pipelining.
func (c *Cache) SetTorrentPeersBatch(entries map[bittorrent.InfoHash]cache.Counts, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiration := int32(ttl.Seconds())
	for infoHash, counts := range entries {
		item := &memcache.Item{
			Key:        cache.Key(c.prefix, infoHash),
			Value:      []byte(encodeCounts(counts.Seeds, counts.Peers)),
			Expiration: expiration,
		}
		if err := c.client.Set(item); err != nil {
			return err
		}
	}

	return nil
}
