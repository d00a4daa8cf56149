// Package rediscache implements cache.Cache over Redis, using hash fields
// "s" (seeds) and "p" (peers) per key plus EXPIRE for TTL.
package rediscache

import (
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredigo "github.com/go-redsync/redsync/v4/redis/redigo"
	"github.com/gomodule/redigo/redis"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/cache"
	"github.com/torrtrack/torrtrack/pkg/log"
)

// Default config constants.
const (
	defaultMaxIdle     = 8
	defaultIdleTimeout = 4 * time.Minute
	defaultConnTimeout = 2 * time.Second
	defaultPrefix      = "torrtrack:"
	batchLockName      = "torrtrack-cache-batch"
)

// Config holds the configuration of a Cache's Redis connection.
type Config struct {
	Addr        string        `yaml:"addr"`
	Prefix      string        `yaml:"prefix"`
	MaxIdle     int           `yaml:"max_idle"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

// LogFields renders the current config as a set of Fields for logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":        cfg.Addr,
		"prefix":      cfg.Prefix,
		"maxIdle":     cfg.MaxIdle,
		"idleTimeout": cfg.IdleTimeout,
		"connTimeout": cfg.ConnTimeout,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values substituted for anything invalid.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.Addr == "" {
		validcfg.Addr = "127.0.0.1:6379"
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "rediscache.Addr",
			"provided": cfg.Addr,
			"default":  validcfg.Addr,
		})
	}

	if cfg.Prefix == "" {
		validcfg.Prefix = defaultPrefix
	}

	if cfg.MaxIdle <= 0 {
		validcfg.MaxIdle = defaultMaxIdle
	}

	if cfg.IdleTimeout <= 0 {
		validcfg.IdleTimeout = defaultIdleTimeout
	}

	if cfg.ConnTimeout <= 0 {
		validcfg.ConnTimeout = defaultConnTimeout
	}

	return validcfg
}

var _ cache.Cache = (*Cache)(nil)

// Cache is a Redis-backed cache.Cache. Reads and writes use a pooled
// connection; SetTorrentPeersBatch additionally takes a short-lived
// distributed mutex so that multiple tracker processes sharing one Redis
// don't interleave a pipelined batch.
type Cache struct {
	pool   *redis.Pool
	rs     *redsync.Redsync
	prefix string
}

// New builds a Cache dialing cfg.Addr lazily via a connection pool.
func New(provided Config) *Cache {
	cfg := provided.Validate()

	pool := &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		IdleTimeout: cfg.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			return redis.DialTimeout("tcp", cfg.Addr, cfg.ConnTimeout, cfg.ConnTimeout, cfg.ConnTimeout)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}

	return &Cache{
		pool:   pool,
		rs:     redsync.New(redsyncredigo.NewPool(pool)),
		prefix: cfg.Prefix,
	}
}

// SetTorrentPeers implements cache.Cache.
func (c *Cache) SetTorrentPeers(infoHash bittorrent.InfoHash, seeds, peers uint32, ttl time.Duration) error {
	conn := c.pool.Get()
	defer conn.Close()

	key := cache.Key(c.prefix, infoHash)
	if _, err := conn.Do("HSET", key, "s", seeds, "p", peers); err != nil {
		return err
	}

	_, err := conn.Do("EXPIRE", key, int(ttl.Seconds()))
	return err
}

// GetTorrentPeers implements cache.Cache.
func (c *Cache) GetTorrentPeers(infoHash bittorrent.InfoHash) (seeds, peers uint32, ok bool, err error) {
	conn := c.pool.Get()
	defer conn.Close()

	key := cache.Key(c.prefix, infoHash)
	reply, err := redis.StringMap(conn.Do("HGETALL", key))
	if err != nil {
		return 0, 0, false, err
	}
	if len(reply) == 0 {
		return 0, 0, false, nil
	}

	s, _ := strconv.ParseUint(reply["s"], 10, 32)
	p, _ := strconv.ParseUint(reply["p"], 10, 32)
	return uint32(s), uint32(p), true, nil
}

// SetTorrentPeersBatch implements cache.Cache, pipelining every entry under
// a single distributed lock.
func (c *Cache) SetTorrentPeersBatch(entries map[bittorrent.InfoHash]cache.Counts, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	mutex := c.rs.NewMutex(batchLockName, redsync.WithExpiry(10*time.Second))
	if err := mutex.Lock(); err != nil {
		return err
	}
	defer func() { _, _ = mutex.Unlock() }()

	conn := c.pool.Get()
	defer conn.Close()

	ttlSeconds := int(ttl.Seconds())
	for infoHash, counts := range entries {
		key := cache.Key(c.prefix, infoHash)
		if err := conn.Send("HSET", key, "s", counts.Seeds, "p", counts.Peers); err != nil {
			return err
		}
		if err := conn.Send("EXPIRE", key, ttlSeconds); err != nil {
			return err
		}
	}

	return conn.Flush()
}
