package certstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewResolverFailsWithoutCertificate(t *testing.T) {
	store := New(Config{})
	id := ServerIdentifier{Kind: KindHTTPTracker, Addr: "0.0.0.0:443"}

	_, err := NewResolver(store, id)
	require.ErrorIs(t, err, ErrServerNotFound)
}

func TestResolverGetCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	store := New(Config{})
	id := ServerIdentifier{Kind: KindHTTPTracker, Addr: "0.0.0.0:443"}
	require.NoError(t, store.LoadCertificate(id, certPath, keyPath))

	r, err := NewResolver(store, id)
	require.NoError(t, err)
	require.True(t, r.HasCertificate())

	cert, err := r.GetCertificate(nil)
	require.NoError(t, err)
	require.NotNil(t, cert)

	cfg := r.TLSConfig()
	require.NotNil(t, cfg.GetCertificate)
}

func TestResolverRefreshPicksUpReload(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	store := New(Config{})
	id := ServerIdentifier{Kind: KindHTTPTracker, Addr: "0.0.0.0:443"}
	require.NoError(t, store.LoadCertificate(id, certPath, keyPath))

	r, err := NewResolver(store, id)
	require.NoError(t, err)

	require.NoError(t, store.ReloadCertificate(id))
	require.NoError(t, r.Refresh())
	require.True(t, r.HasCertificate())
}
