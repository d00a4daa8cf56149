// Package certstore implements a hot-reloadable table of TLS certificates,
// keyed by server identity, shared by every TLS-terminating listener
// (HTTP tracker, API, WebSocket master).
package certstore

import (
	"crypto/tls"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ServerKind names the kind of listener a ServerIdentifier belongs to.
type ServerKind string

// Known server kinds.
const (
	KindHTTPTracker     ServerKind = "http"
	KindAPIServer       ServerKind = "api"
	KindWebSocketMaster ServerKind = "websocket"
)

// ServerIdentifier names one TLS-terminating listener by kind and bind
// address; it is the key under which a certificate is stored and looked
// up.
type ServerIdentifier struct {
	Kind ServerKind
	Addr string
}

// String renders an identifier the way log lines and error messages expect.
func (id ServerIdentifier) String() string {
	switch id.Kind {
	case KindHTTPTracker:
		return fmt.Sprintf("HttpTracker(%s)", id.Addr)
	case KindAPIServer:
		return fmt.Sprintf("ApiServer(%s)", id.Addr)
	case KindWebSocketMaster:
		return fmt.Sprintf("WebSocketMaster(%s)", id.Addr)
	default:
		return fmt.Sprintf("%s(%s)", id.Kind, id.Addr)
	}
}

// CertificatePaths records the on-disk locations a CertBundle was loaded
// from, so it can be reloaded later without the caller repeating them.
type CertificatePaths struct {
	CertPath string
	KeyPath  string
}

// CertBundle is a parsed certificate chain and private key ready for use by
// crypto/tls, plus the paths and time it was loaded from.
type CertBundle struct {
	Cert     tls.Certificate
	CertPath string
	KeyPath  string
	LoadedAt time.Time
}

// Errors returned by Store methods.
var (
	ErrServerNotFound = errors.New("certstore: server identifier not found")
	ErrBadPath        = errors.New("certstore: path must not traverse, be absolute, or contain a null byte")
)

// Config restricts the paths a Store will load certificates from.
type Config struct {
	// RestrictToBaseDir rejects absolute cert/key paths and resolves
	// relative ones under BaseDir.
	RestrictToBaseDir bool   `yaml:"restrict_to_base_dir"`
	BaseDir           string `yaml:"base_dir"`
}

// Store is a process-wide table mapping a ServerIdentifier to its current
// CertBundle. Installation is always "build bundle, then swap pointer":
// lookups never observe a partially parsed certificate.
type Store struct {
	cfg Config

	mu      sync.RWMutex
	bundles map[ServerIdentifier]*CertBundle
	paths   map[ServerIdentifier]CertificatePaths
}

// New allocates an empty Store.
func New(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		bundles: make(map[ServerIdentifier]*CertBundle),
		paths:   make(map[ServerIdentifier]CertificatePaths),
	}
}

func (s *Store) validatePath(path string) error {
	if strings.ContainsRune(path, 0) {
		return ErrBadPath
	}
	if strings.Contains(path, "..") {
		return ErrBadPath
	}
	if s.cfg.RestrictToBaseDir && filepath.IsAbs(path) {
		return ErrBadPath
	}
	return nil
}

func (s *Store) resolvePath(path string) string {
	if s.cfg.RestrictToBaseDir && s.cfg.BaseDir != "" {
		return filepath.Join(s.cfg.BaseDir, path)
	}
	return path
}

func (s *Store) loadBundle(certPath, keyPath string) (*CertBundle, error) {
	if err := s.validatePath(certPath); err != nil {
		return nil, err
	}
	if err := s.validatePath(keyPath); err != nil {
		return nil, err
	}

	// tls.LoadX509KeyPair parses the key trying PKCS#8, then PKCS#1 (RSA),
	// then SEC1 (EC) in that order — the same fallback chain as spec'd.
	cert, err := tls.LoadX509KeyPair(s.resolvePath(certPath), s.resolvePath(keyPath))
	if err != nil {
		return nil, fmt.Errorf("certstore: %w", err)
	}

	return &CertBundle{
		Cert:     cert,
		CertPath: certPath,
		KeyPath:  keyPath,
		LoadedAt: time.Now(),
	}, nil
}

// LoadCertificate parses cert/key from disk and installs the resulting
// bundle for id, replacing any existing one.
func (s *Store) LoadCertificate(id ServerIdentifier, certPath, keyPath string) error {
	bundle, err := s.loadBundle(certPath, keyPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.paths[id] = CertificatePaths{CertPath: certPath, KeyPath: keyPath}
	s.bundles[id] = bundle
	s.mu.Unlock()

	return nil
}

// GetCertificate returns the currently installed bundle for id, if any.
func (s *Store) GetCertificate(id ServerIdentifier) (*CertBundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[id]
	return b, ok
}

// GetPaths returns the paths id's certificate was last loaded from.
func (s *Store) GetPaths(id ServerIdentifier) (CertificatePaths, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paths[id]
	return p, ok
}

// ReloadCertificate re-parses id's certificate from the paths it was last
// loaded from.
func (s *Store) ReloadCertificate(id ServerIdentifier) error {
	paths, ok := s.GetPaths(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}
	return s.LoadCertificate(id, paths.CertPath, paths.KeyPath)
}

// ReloadCertificateWithPaths re-parses id's certificate from new paths,
// replacing the ones it was previously loaded from.
func (s *Store) ReloadCertificateWithPaths(id ServerIdentifier, certPath, keyPath string) error {
	return s.LoadCertificate(id, certPath, keyPath)
}

// AllServers returns every ServerIdentifier with a certificate installed.
func (s *Store) AllServers() []ServerIdentifier {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServerIdentifier, 0, len(s.paths))
	for id := range s.paths {
		out = append(out, id)
	}
	return out
}

// ReloadResult is one ServerIdentifier's outcome from ReloadAll.
type ReloadResult struct {
	ID  ServerIdentifier
	Err error
}

// ReloadAll reloads every installed certificate from its last-known paths,
// continuing past individual failures and reporting one result per server.
func (s *Store) ReloadAll() []ReloadResult {
	ids := s.AllServers()
	results := make([]ReloadResult, len(ids))
	for i, id := range ids {
		results[i] = ReloadResult{ID: id, Err: s.ReloadCertificate(id)}
	}
	return results
}
