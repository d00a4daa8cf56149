package main

import (
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, writeSelfSignedCert("torrtrack-test", certPath, keyPath, 24*time.Hour))

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)
}

func TestWriteSelfSignedCertRejectsUnwritableDir(t *testing.T) {
	err := writeSelfSignedCert("torrtrack-test", "/nonexistent/cert.pem", "/nonexistent/key.pem", time.Hour)
	require.Error(t, err)
}
