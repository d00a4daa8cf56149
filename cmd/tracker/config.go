package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	httpfrontend "github.com/torrtrack/torrtrack/frontend/http"
	udpfrontend "github.com/torrtrack/torrtrack/frontend/udp"
	"github.com/torrtrack/torrtrack/cache"
	"github.com/torrtrack/torrtrack/cache/memcache"
	"github.com/torrtrack/torrtrack/cache/rediscache"
	"github.com/torrtrack/torrtrack/middleware"
	"github.com/torrtrack/torrtrack/policy"
	"github.com/torrtrack/torrtrack/storage"
	"github.com/torrtrack/torrtrack/storage/memory"
	"github.com/torrtrack/torrtrack/throttle"
	"github.com/torrtrack/torrtrack/writeback"
	"github.com/torrtrack/torrtrack/writeback/gormstore"
)

// Backend names a pluggable driver by a discriminator string plus an
// unparsed sub-document, so the swarm store and the peer-count cache can
// each have heterogeneous, driver-specific config without a union type.
type Backend struct {
	Type   string        `yaml:"type"`
	Config yaml.MapSlice `yaml:"config"`
}

// TLSConfig names where the HTTP frontend's certificate and key live on
// disk. Left disabled, the HTTP frontend serves plain HTTP.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// PersistentConfig selects the relational database writeback persists the
// policy tables and swarm snatch counts to. Left disabled, the tracker
// keeps policy state and swarm counts in memory only.
type PersistentConfig struct {
	Enabled          bool `yaml:"enabled"`
	gormstore.Config `yaml:",inline"`
}

// HooksConfig toggles which optional pre/post hooks run around the
// built-in swarm-interaction and response-building hooks. Unlike the
// teacher's self-contained hooks (a JWT secret, an approved-client list),
// these hooks wrap policy tables loaded from the persistent store, so
// there is no per-hook YAML sub-document to discriminate on — just whether
// the shared table built in main is consulted at all.
type HooksConfig struct {
	Whitelist bool `yaml:"whitelist"`
	Blacklist bool `yaml:"blacklist"`
	Keys      bool `yaml:"keys"`
	Users     bool `yaml:"users"`
	Throttle  bool `yaml:"throttle"`
	PeerCache bool `yaml:"peer_cache"`
}

// ConfigFile represents a namespaced YAML configuration file.
type ConfigFile struct {
	MainConfigBlock struct {
		middleware.ResponseConfig `yaml:",inline"`

		PrometheusAddr string `yaml:"prometheus_addr"`

		HTTP httpfrontend.Config `yaml:"http"`
		UDP  udpfrontend.Config  `yaml:"udp"`
		TLS  TLSConfig           `yaml:"tls"`

		Storage Backend `yaml:"storage"`
		Cache   Backend `yaml:"cache"`

		PeerCacheTTL time.Duration `yaml:"peer_cache_ttl"`

		Persistent PersistentConfig `yaml:"persistent"`
		Writeback  writeback.Config `yaml:"writeback"`
		Throttle   throttle.Config  `yaml:"throttle"`

		StatsChannelSize    int           `yaml:"stats_channel_size"`
		StatsReportInterval time.Duration `yaml:"stats_report_interval"`
		KeysCleanupInterval time.Duration `yaml:"keys_cleanup_interval"`

		Hooks HooksConfig `yaml:"hooks"`
	} `yaml:"tracker"`
}

// ParseConfigFile returns a new ConfigFile given the path to a YAML
// configuration file.
//
// It supports relative and absolute paths and environment variables.
func ParseConfigFile(path string) (*ConfigFile, error) {
	if path == "" {
		return nil, errors.New("no config path specified")
	}

	contents, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfgFile ConfigFile
	if err := yaml.Unmarshal(contents, &cfgFile); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return &cfgFile, nil
}

// CreateStorage builds the configured swarm store, wiring sink and
// torrentsJournal into its config before construction since neither is a
// YAML-representable field.
func (cfg ConfigFile) CreateStorage(sink memory.StatsSink, torrentsJournal *policy.Journal) (storage.PeerStore, error) {
	raw, err := yaml.Marshal(&cfg.MainConfigBlock.Storage.Config)
	if err != nil {
		return nil, err
	}

	switch cfg.MainConfigBlock.Storage.Type {
	case "", "memory":
		var memCfg memory.Config
		if err := yaml.Unmarshal(raw, &memCfg); err != nil {
			return nil, errors.Wrap(err, "invalid memory storage config")
		}
		memCfg.Sink = sink
		memCfg.TorrentsJournal = torrentsJournal
		return memory.New(memCfg), nil
	default:
		return nil, errors.Errorf("unknown storage type: %q", cfg.MainConfigBlock.Storage.Type)
	}
}

// CreateCache builds the configured peer-count cache. A Backend.Type of ""
// means no cache is configured, and CreateCache returns a nil Cache.
func (cfg ConfigFile) CreateCache() (cache.Cache, error) {
	raw, err := yaml.Marshal(&cfg.MainConfigBlock.Cache.Config)
	if err != nil {
		return nil, err
	}

	switch cfg.MainConfigBlock.Cache.Type {
	case "":
		return nil, nil
	case "redis":
		var redCfg rediscache.Config
		if err := yaml.Unmarshal(raw, &redCfg); err != nil {
			return nil, errors.Wrap(err, "invalid redis cache config")
		}
		return rediscache.New(redCfg), nil
	case "memcache":
		var memCfg memcache.Config
		if err := yaml.Unmarshal(raw, &memCfg); err != nil {
			return nil, errors.Wrap(err, "invalid memcache cache config")
		}
		return memcache.New(memCfg), nil
	default:
		return nil, errors.Errorf("unknown cache type: %q", cfg.MainConfigBlock.Cache.Type)
	}
}

// CreatePersistentStore builds the writeback.Store the tracker loads its
// policy tables from and persists them back to, or nil if disabled.
func (cfg ConfigFile) CreatePersistentStore() (*gormstore.Store, error) {
	if !cfg.MainConfigBlock.Persistent.Enabled {
		return nil, nil
	}
	store, err := gormstore.New(cfg.MainConfigBlock.Persistent.Config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open persistent store")
	}
	return store, nil
}
