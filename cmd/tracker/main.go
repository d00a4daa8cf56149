package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	httpfrontend "github.com/torrtrack/torrtrack/frontend/http"
	udpfrontend "github.com/torrtrack/torrtrack/frontend/udp"
	"github.com/torrtrack/torrtrack/certstore"
	"github.com/torrtrack/torrtrack/middleware"
	"github.com/torrtrack/torrtrack/middleware/blacklist"
	"github.com/torrtrack/torrtrack/middleware/keys"
	"github.com/torrtrack/torrtrack/middleware/peercache"
	throttlemw "github.com/torrtrack/torrtrack/middleware/throttle"
	"github.com/torrtrack/torrtrack/middleware/users"
	"github.com/torrtrack/torrtrack/middleware/whitelist"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/metrics"
	"github.com/torrtrack/torrtrack/pkg/stop"
	"github.com/torrtrack/torrtrack/policy"
	"github.com/torrtrack/torrtrack/stats"
	"github.com/torrtrack/torrtrack/throttle"
	"github.com/torrtrack/torrtrack/writeback"
)

func main() {
	var configFilePath string

	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "BitTorrent Tracker",
		Long:  "A multi-protocol BitTorrent tracker speaking HTTP (BEP 3) and UDP (BEP 15)",
	}
	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "/etc/torrtrack.yaml", "location of configuration file")

	rootCmd.AddCommand(serveCmd(&configFilePath))
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createSelfSignedCmd())
	rootCmd.AddCommand(createDatabaseCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal("command failed", log.Err(err))
	}
}

func serveCmd(configFilePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the tracker",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serve(*configFilePath); err != nil {
				log.Fatal("failed to serve", log.Err(err))
			}
		},
	}
}

func serve(configFilePath string) error {
	cfgFile, err := ParseConfigFile(configFilePath)
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}
	cfg := &cfgFile.MainConfigBlock

	whitelistSet := policy.NewHashSet()
	blacklistSet := policy.NewHashSet()
	keysSet := policy.NewKeys()
	usersSet := policy.NewUsers()
	torrentsJournal := policy.NewJournal()

	tables := writeback.Tables{
		Whitelist: whitelistSet.Journal,
		Blacklist: blacklistSet.Journal,
		Keys:      keysSet.Journal,
		Users:     usersSet.Journal,
		Torrents:  torrentsJournal,
	}

	statsAgg := stats.New(stats.Config{
		ChannelSize:                 cfg.StatsChannelSize,
		Tables:                      tables,
		PrometheusReportingInterval: cfg.StatsReportInterval,
	})

	group := stop.NewGroup()

	pstore, err := cfgFile.CreatePersistentStore()
	if err != nil {
		return errors.Wrap(err, "failed to open persistent store")
	}
	if pstore != nil {
		if err := loadPersistedTables(pstore, whitelistSet, blacklistSet, keysSet, usersSet, statsAgg); err != nil {
			return errors.Wrap(err, "failed to load persisted tables")
		}

		wbCfg := cfg.Writeback
		wbCfg.Sink = statsAgg
		wb := writeback.New(wbCfg, pstore, tables)
		group.Add(wb)
	}

	cacheInst, err := cfgFile.CreateCache()
	if err != nil {
		return errors.Wrap(err, "failed to build cache")
	}

	peerStore, err := cfgFile.CreateStorage(statsAgg, torrentsJournal)
	if err != nil {
		return errors.Wrap(err, "failed to build swarm store")
	}
	group.Add(peerStore)

	var thr *throttle.Throttle
	if cfg.Hooks.Throttle {
		thr = throttle.New(cfg.Throttle)
		group.Add(thr)
	}

	var preHooks, postHooks []middleware.Hook
	if cfg.Hooks.Whitelist {
		preHooks = append(preHooks, whitelist.NewHook(whitelistSet))
	}
	if cfg.Hooks.Blacklist {
		preHooks = append(preHooks, blacklist.NewHook(blacklistSet))
	}
	if cfg.Hooks.Keys {
		preHooks = append(preHooks, keys.NewHook(keysSet))
	}
	if cfg.Hooks.Users {
		preHooks = append(preHooks, users.NewHook(usersSet))
	}
	if cfg.Hooks.Throttle && thr != nil {
		preHooks = append(preHooks, throttlemw.NewHook(thr))
	}
	if cfg.Hooks.PeerCache && cacheInst != nil {
		postHooks = append(postHooks, peercache.NewHook(cacheInst, cfg.PeerCacheTTL))
	}

	logic := middleware.NewLogic(cfg.ResponseConfig, peerStore, preHooks, postHooks)
	group.Add(logic)

	httpCfg := cfg.HTTP
	httpCfg.Stats = statsAgg
	if cfg.TLS.Enabled {
		certID := certstore.ServerIdentifier{Kind: certstore.KindHTTPTracker, Addr: cfg.HTTP.Addr}
		certs := certstore.New(certstore.Config{})
		if err := certs.LoadCertificate(certID, cfg.TLS.CertPath, cfg.TLS.KeyPath); err != nil {
			return errors.Wrap(err, "failed to load TLS certificate")
		}
		resolver, err := certstore.NewResolver(certs, certID)
		if err != nil {
			return errors.Wrap(err, "failed to build TLS resolver")
		}
		httpCfg.TLSConfig = resolver.TLSConfig()
	}
	httpFrontend, err := httpfrontend.NewFrontend(logic, httpCfg)
	if err != nil {
		return errors.Wrap(err, "failed to start HTTP frontend")
	}
	group.Add(httpFrontend)

	udpCfg := cfg.UDP
	udpCfg.Stats = statsAgg
	udpFrontend, err := udpfrontend.NewFrontend(logic, udpCfg)
	if err != nil {
		return errors.Wrap(err, "failed to start UDP frontend")
	}
	group.Add(udpFrontend)

	metricsServer := metrics.NewServer(cfg.PrometheusAddr)
	group.Add(metricsServer)

	cleanup := startKeyCleanupLoop(keysSet, statsAgg, cfg.KeysCleanupInterval)
	group.Add(cleanup)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Info("shutting down")
	err = <-group.Stop()

	// stats.Aggregator predates stop.Stopper in this codebase and drains
	// its event channel synchronously rather than returning a Result, so
	// it is stopped directly instead of through the group.
	statsAgg.Stop()

	return err
}

// loadPersistedTables seeds the in-memory policy tables from the
// persistent store at startup. Per-torrent snatch counts are not
// reseeded into the swarm store: storage.PeerStore exposes no method to
// set an initial count, only to observe one as it changes, so a restart
// starts snatch counts at zero until the next GraduateLeecher for each
// swarm. The torrent count itself is still reflected in the stats gauge.
func loadPersistedTables(pstore writeback.Store, whitelistSet, blacklistSet *policy.HashSet, keysSet *policy.Keys, usersSet *policy.Users, statsAgg *stats.Aggregator) error {
	wl, err := pstore.LoadWhitelist()
	if err != nil {
		return errors.Wrap(err, "failed to load whitelist")
	}
	for _, ih := range wl {
		whitelistSet.Add(ih)
	}

	bl, err := pstore.LoadBlacklist()
	if err != nil {
		return errors.Wrap(err, "failed to load blacklist")
	}
	for _, ih := range bl {
		blacklistSet.Add(ih)
	}

	ks, err := pstore.LoadKeys()
	if err != nil {
		return errors.Wrap(err, "failed to load keys")
	}
	for k, e := range ks {
		keysSet.Add(k, e)
	}

	us, err := pstore.LoadUsers()
	if err != nil {
		return errors.Wrap(err, "failed to load users")
	}
	for _, e := range us {
		usersSet.Add(e)
	}

	torrents, err := pstore.LoadTorrents()
	if err != nil {
		return errors.Wrap(err, "failed to load torrents")
	}
	statsAgg.RecordTorrentDelta(int64(len(torrents)))

	return nil
}

// keyCleanupLoop periodically drops expired keys from a shared policy.Keys
// table and reports the sweep time to the stats aggregator.
type keyCleanupLoop struct {
	closing chan struct{}
	done    chan struct{}
}

func startKeyCleanupLoop(keysSet *policy.Keys, statsAgg *stats.Aggregator, interval time.Duration) *keyCleanupLoop {
	if interval <= 0 {
		interval = defaultKeysCleanupInterval
	}

	l := &keyCleanupLoop{
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(l.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.closing:
				return
			case <-ticker.C:
				now := time.Now()
				dropped := keysSet.CollectExpired(now)
				statsAgg.RecordKeyCleanup(now)
				if dropped > 0 {
					log.Debug("key cleanup dropped expired keys", log.Fields{"count": dropped})
				}
			}
		}
	}()

	return l
}

func (l *keyCleanupLoop) Stop() stop.Result {
	c := stop.NewChannel()
	go func() {
		close(l.closing)
		<-l.done
		c.Done()
	}()
	return c.Result()
}

const defaultKeysCleanupInterval = time.Minute

func createConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "create-config",
		Short: "write a default configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			if err := writeDefaultConfig(out); err != nil {
				log.Fatal("failed to write default config", log.Err(err))
			}
		},
	}
	cmd.Flags().StringVar(&out, "out", "torrtrack.yaml", "path to write the generated config to")
	return cmd
}

func writeDefaultConfig(path string) error {
	var cfgFile ConfigFile
	cfg := &cfgFile.MainConfigBlock

	cfg.AnnounceInterval = 2 * time.Minute
	cfg.MinAnnounceInterval = time.Minute
	cfg.PrometheusAddr = "0.0.0.0:9090"
	cfg.HTTP.Addr = "0.0.0.0:6969"
	cfg.HTTP.ReadTimeout = 2 * time.Second
	cfg.HTTP.WriteTimeout = 2 * time.Second
	cfg.HTTP.RequestTimeout = 2 * time.Second
	cfg.UDP.Addr = "0.0.0.0:6969"
	cfg.UDP.MaxNumWant = 50
	cfg.UDP.DefaultNumWant = 50
	cfg.UDP.MaxScrapeInfoHashes = 50
	cfg.Storage.Type = "memory"
	cfg.Throttle.MaxCount = 5
	cfg.Throttle.TimestampReset = 60 * time.Second
	cfg.Throttle.DurationReject = 60 * time.Second
	cfg.Writeback.Interval = 30 * time.Second
	cfg.KeysCleanupInterval = time.Minute
	cfg.StatsReportInterval = time.Second

	contents, err := yaml.Marshal(&cfgFile)
	if err != nil {
		return errors.Wrap(err, "failed to render default config")
	}

	return os.WriteFile(path, contents, 0o644)
}

func createSelfSignedCmd() *cobra.Command {
	var certPath, keyPath, commonName string
	var validFor time.Duration

	cmd := &cobra.Command{
		Use:   "create-selfsigned",
		Short: "generate a self-signed TLS certificate/key pair",
		Run: func(cmd *cobra.Command, args []string) {
			if err := writeSelfSignedCert(commonName, certPath, keyPath, validFor); err != nil {
				log.Fatal("failed to generate self-signed certificate", log.Err(err))
			}
		},
	}
	cmd.Flags().StringVar(&certPath, "cert-out", "cert.pem", "path to write the generated certificate to")
	cmd.Flags().StringVar(&keyPath, "key-out", "key.pem", "path to write the generated private key to")
	cmd.Flags().StringVar(&commonName, "common-name", "localhost", "certificate common name / DNS name")
	cmd.Flags().DurationVar(&validFor, "valid-for", 365*24*time.Hour, "certificate validity period")
	return cmd
}

// createDatabaseCmd, importCmd, and exportCmd are named stub subcommands:
// schema management and bulk data transfer are handled by whatever runs
// the relational database behind writeback/gormstore, not by this binary.
func createDatabaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-database",
		Short: "not implemented: manage the persistent schema with your database's own tooling",
		Run: func(cmd *cobra.Command, args []string) {
			log.Fatal("create-database is not implemented; AutoMigrate runs automatically on startup")
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "not implemented: load policy tables directly through your database",
		Run: func(cmd *cobra.Command, args []string) {
			log.Fatal("import is not implemented")
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "not implemented: read policy tables directly through your database",
		Run: func(cmd *cobra.Command, args []string) {
			log.Fatal("export is not implemented")
		},
	}
}
