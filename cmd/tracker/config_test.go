package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestWriteDefaultConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torrtrack.yaml")
	require.NoError(t, writeDefaultConfig(path))

	cfgFile, err := ParseConfigFile(path)
	require.NoError(t, err)

	cfg := cfgFile.MainConfigBlock
	require.Equal(t, "memory", cfg.Storage.Type)
	require.Equal(t, "0.0.0.0:6969", cfg.HTTP.Addr)
	require.Equal(t, "0.0.0.0:6969", cfg.UDP.Addr)
	require.Equal(t, uint64(5), cfg.Throttle.MaxCount)
}

func TestParseConfigFileMissingPath(t *testing.T) {
	_, err := ParseConfigFile("")
	require.Error(t, err)
}

func TestParseConfigFileUnreadable(t *testing.T) {
	_, err := ParseConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func backendConfig(t *testing.T, v interface{}) yaml.MapSlice {
	t.Helper()

	raw, err := yaml.Marshal(v)
	require.NoError(t, err)

	var ms yaml.MapSlice
	require.NoError(t, yaml.Unmarshal(raw, &ms))
	return ms
}

func TestCreateStorageMemory(t *testing.T) {
	var cfgFile ConfigFile
	cfgFile.MainConfigBlock.Storage = Backend{
		Type: "memory",
		Config: backendConfig(t, map[string]interface{}{
			"shard_count": 8,
		}),
	}

	store, err := cfgFile.CreateStorage(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestCreateStorageDefaultsToMemory(t *testing.T) {
	var cfgFile ConfigFile

	store, err := cfgFile.CreateStorage(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestCreateStorageUnknownType(t *testing.T) {
	var cfgFile ConfigFile
	cfgFile.MainConfigBlock.Storage = Backend{Type: "bogus"}

	_, err := cfgFile.CreateStorage(nil, nil)
	require.Error(t, err)
}

func TestCreateCacheNone(t *testing.T) {
	var cfgFile ConfigFile

	c, err := cfgFile.CreateCache()
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestCreateCacheMemcache(t *testing.T) {
	var cfgFile ConfigFile
	cfgFile.MainConfigBlock.Cache = Backend{
		Type: "memcache",
		Config: backendConfig(t, map[string]interface{}{
			"addrs": []string{"127.0.0.1:11211"},
		}),
	}

	c, err := cfgFile.CreateCache()
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestCreateCacheUnknownType(t *testing.T) {
	var cfgFile ConfigFile
	cfgFile.MainConfigBlock.Cache = Backend{Type: "bogus"}

	_, err := cfgFile.CreateCache()
	require.Error(t, err)
}

func TestCreatePersistentStoreDisabled(t *testing.T) {
	var cfgFile ConfigFile

	store, err := cfgFile.CreatePersistentStore()
	require.NoError(t, err)
	require.Nil(t, store)
}

func TestWriteDefaultConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torrtrack.yaml")
	require.NoError(t, writeDefaultConfig(path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
