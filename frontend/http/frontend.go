// Package http implements a BitTorrent frontend via the HTTP protocol as
// described in BEP 3 and BEP 23.
package http

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/frontend"
	"github.com/torrtrack/torrtrack/middleware"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/pkg/stop"
	"github.com/torrtrack/torrtrack/stats"
)

// Config represents all of the configurable options for an HTTP BitTorrent
// Frontend.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AllowIPSpoofing bool          `yaml:"allow_ip_spoofing"`
	RealIPHeader    string        `yaml:"real_ip_header"`
	TrustedProxies  bool          `yaml:"trusted_proxies"`

	// MaxNumWant, DefaultNumWant and MaxScrapeInfoHashes bound and default
	// the announce/scrape request fields the same way frontend/udp's
	// ParseOptions does, via bittorrent.RequestSanitizer.
	MaxNumWant          uint32 `yaml:"max_numwant"`
	DefaultNumWant      uint32 `yaml:"default_numwant"`
	MaxScrapeInfoHashes uint32 `yaml:"max_scrape_infohashes"`

	// TLSConfig, if set, serves this frontend over TLS using the given
	// config's GetCertificate callback — see certstore.Resolver.TLSConfig.
	// Left nil, the frontend serves plain HTTP.
	TLSConfig *tls.Config `yaml:"-"`

	// Stats, if set, receives a connection Event for every accepted TCP
	// connection and an announce/scrape Event for every request this
	// frontend handles successfully.
	Stats *stats.Aggregator `yaml:"-"`
}

// LogFields renders the current config as a set of Fields for logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":            cfg.Addr,
		"readTimeout":     cfg.ReadTimeout,
		"writeTimeout":    cfg.WriteTimeout,
		"requestTimeout":  cfg.RequestTimeout,
		"allowIPSpoofing": cfg.AllowIPSpoofing,
		"realIPHeader":    cfg.RealIPHeader,
		"trustedProxies":  cfg.TrustedProxies,

		"maxNumWant":          cfg.MaxNumWant,
		"defaultNumWant":      cfg.DefaultNumWant,
		"maxScrapeInfoHashes": cfg.MaxScrapeInfoHashes,
	}
}

// sanitizer builds the bittorrent.RequestSanitizer used to bound and
// default announce/scrape request fields.
func (cfg Config) sanitizer() bittorrent.RequestSanitizer {
	return bittorrent.RequestSanitizer{
		MaxNumWant:          cfg.MaxNumWant,
		DefaultNumWant:      cfg.DefaultNumWant,
		MaxScrapeInfoHashes: cfg.MaxScrapeInfoHashes,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values substituted for anything invalid.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.ReadTimeout <= 0 {
		validcfg.ReadTimeout = defaultReadTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.ReadTimeout",
			"provided": cfg.ReadTimeout,
			"default":  validcfg.ReadTimeout,
		})
	}

	if cfg.WriteTimeout <= 0 {
		validcfg.WriteTimeout = defaultWriteTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.WriteTimeout",
			"provided": cfg.WriteTimeout,
			"default":  validcfg.WriteTimeout,
		})
	}

	if cfg.RequestTimeout <= 0 {
		validcfg.RequestTimeout = defaultRequestTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.RequestTimeout",
			"provided": cfg.RequestTimeout,
			"default":  validcfg.RequestTimeout,
		})
	}

	if cfg.MaxNumWant <= 0 {
		validcfg.MaxNumWant = defaultMaxNumWant
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.MaxNumWant",
			"provided": cfg.MaxNumWant,
			"default":  validcfg.MaxNumWant,
		})
	}

	if cfg.DefaultNumWant <= 0 {
		validcfg.DefaultNumWant = defaultDefaultNumWant
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.DefaultNumWant",
			"provided": cfg.DefaultNumWant,
			"default":  validcfg.DefaultNumWant,
		})
	}

	if cfg.MaxScrapeInfoHashes <= 0 {
		validcfg.MaxScrapeInfoHashes = defaultMaxScrapeInfoHashes
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.MaxScrapeInfoHashes",
			"provided": cfg.MaxScrapeInfoHashes,
			"default":  validcfg.MaxScrapeInfoHashes,
		})
	}

	return validcfg
}

const (
	defaultReadTimeout    = 2 * time.Second
	defaultWriteTimeout   = 2 * time.Second
	defaultRequestTimeout = 2 * time.Second

	defaultMaxNumWant          uint32 = 100
	defaultDefaultNumWant      uint32 = 50
	defaultMaxScrapeInfoHashes uint32 = 50
)

// Frontend holds the state of an HTTP BitTorrent Frontend.
type Frontend struct {
	srv *http.Server

	logic frontend.TrackerLogic
	Config
}

// NewFrontend allocates a new instance of a Frontend and begins serving
// requests in the background.
func NewFrontend(logic frontend.TrackerLogic, provided Config) (*Frontend, error) {
	cfg := provided.Validate()

	t := &Frontend{
		logic:  logic,
		Config: cfg,
	}

	t.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      t.handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		TLSConfig:    cfg.TLSConfig,
	}
	t.srv.SetKeepAlivesEnabled(false)

	if cfg.Stats != nil {
		t.srv.ConnState = func(_ net.Conn, state http.ConnState) {
			if state == http.StateNew {
				cfg.Stats.Record(stats.Event{Kind: stats.EventConnection, Protocol: stats.HTTP})
			}
		}
	}

	go func() {
		var err error
		if cfg.TLSConfig != nil {
			// Certificate and key come from TLSConfig.GetCertificate, not
			// from disk paths, so both arguments are empty.
			err = t.srv.ListenAndServeTLS("", "")
		} else {
			err = t.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed while serving http", log.Err(err))
		}
	}()

	return t, nil
}

// Stop provides a thread-safe way to shut down a currently running Frontend.
func (t *Frontend) Stop() stop.Result {
	c := stop.NewChannel()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.RequestTimeout)
		defer cancel()
		_ = t.srv.Shutdown(ctx)
		c.Done()
	}()

	return c.Result()
}

func (t *Frontend) handler() http.Handler {
	router := httprouter.New()
	router.GET("/announce", t.announceRoute)
	router.GET("/announce/:key", t.announceRoute)
	router.GET("/announce/:key/:userkey", t.announceRoute)
	router.GET("/scrape", t.scrapeRoute)
	router.GET("/scrape/:key", t.scrapeRoute)
	return router
}

// announceRoute parses and responds to an Announce using t.logic.
func (t *Frontend) announceRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	start := time.Now()
	defer func() { recordResponseDuration("announce", err, time.Since(start)) }()

	req, err := ParseAnnounce(r, ps, t.Config)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	ctx := context.Background()
	resp, err := t.logic.HandleAnnounce(ctx, req)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	if err = WriteAnnounceResponse(w, resp); err != nil {
		return
	}

	if t.Stats != nil {
		t.Stats.Record(stats.Event{Kind: stats.EventAnnounce, Protocol: stats.HTTP, Family: req.AddressFamily()})
	}

	go t.logic.AfterAnnounce(ctx, req, resp)
}

// scrapeRoute parses and responds to a Scrape using t.logic.
func (t *Frontend) scrapeRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	start := time.Now()
	defer func() { recordResponseDuration("scrape", err, time.Since(start)) }()

	req, err := ParseScrape(r, ps, t.Config)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	ctx := context.Background()
	af := remoteAddrFamily(r)
	ctx = context.WithValue(ctx, middleware.ScrapeIsIPv6Key, af == bittorrent.IPv6)
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if addr, err := netip.ParseAddr(host); err == nil {
			ctx = context.WithValue(ctx, middleware.ScrapeSourceAddrKey, addr.Unmap())
		}
	}

	resp, err := t.logic.HandleScrape(ctx, req)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	if err = WriteScrapeResponse(w, resp); err != nil {
		return
	}

	if t.Stats != nil {
		t.Stats.Record(stats.Event{Kind: stats.EventScrape, Protocol: stats.HTTP, Family: remoteAddrFamily(r)})
	}

	go t.logic.AfterScrape(ctx, req, resp)
}

// remoteAddrFamily best-effort parses r.RemoteAddr for stats purposes only;
// scrape has no client address in its parsed request the way announce
// does.
func remoteAddrFamily(r *http.Request) bittorrent.AddressFamily {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return bittorrent.IPv4
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || addr.Is4() || addr.Is4In6() {
		return bittorrent.IPv4
	}
	return bittorrent.IPv6
}
