package certstore

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/torrtrack/torrtrack/pkg/log"
)

// Resolver caches one server identity's certificate behind a read-write
// lock for use as a *tls.Config's GetCertificate callback — the stdlib
// equivalent of a per-listener SNI resolver. A Resolver never hands back a
// half-constructed certificate: Refresh builds the new value before
// swapping the cached pointer under the write lock.
type Resolver struct {
	store    *Store
	serverID ServerIdentifier

	mu  sync.RWMutex
	key *tls.Certificate
}

// NewResolver builds a Resolver for serverID, populating its cache from
// store immediately. It fails if store has no certificate installed for
// serverID yet.
func NewResolver(store *Store, serverID ServerIdentifier) (*Resolver, error) {
	r := &Resolver{store: store, serverID: serverID}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-reads the current bundle from the backing Store and swaps the
// cached certificate.
func (r *Resolver) Refresh() error {
	bundle, ok := r.store.GetCertificate(r.serverID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, r.serverID)
	}

	r.mu.Lock()
	r.key = &bundle.Cert
	r.mu.Unlock()

	log.Info("refreshed certificate cache", log.Fields{"server": r.serverID.String()})
	return nil
}

// HasCertificate reports whether the cache currently holds a certificate.
func (r *Resolver) HasCertificate() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.key != nil
}

// GetCertificate implements the (*tls.Config).GetCertificate callback
// shape. SNI is ignored, since a Resolver only ever serves one server
// identity.
func (r *Resolver) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.key == nil {
		return nil, fmt.Errorf("certstore: no certificate cached for %s", r.serverID)
	}
	return r.key, nil
}

// TLSConfig returns a *tls.Config wired to this Resolver, suitable for
// passing to frontend/http.Config.TLSConfig.
func (r *Resolver) TLSConfig() *tls.Config {
	return &tls.Config{GetCertificate: r.GetCertificate}
}
