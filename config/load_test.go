package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CACHE_HOME", "/cache")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, StoreFS, cfg.Store.Backend)
	assert.Equal(t, "/data/dicomblob/instances", cfg.Store.Dir)
	assert.Equal(t, IndexSQLite, cfg.Index.Backend)
	assert.Equal(t, "/data/dicomblob/index.db", cfg.Index.DSN)
	assert.Equal(t, "/cache/dicomblob", cfg.Cache.Dir)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 90, cfg.Export.JPEGQuality)
	assert.GreaterOrEqual(t, cfg.Retrieve.MaxConcurrency, 4)
}

func TestLoadFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dicomblob.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
store:
  backend: oci
  registry: localhost:5000
  repository: pacs/instances
  plain_http: true
index:
  backend: memory
log:
  level: debug
`), 0o600))
	t.Setenv("DICOMBLOB_SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("DICOMBLOB_LOG_FORMAT", "json")

	v, err := New(file)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, StoreOCI, cfg.Store.Backend)
	assert.Equal(t, "pacs/instances", cfg.Store.Repository)
	assert.True(t, cfg.Store.PlainHTTP)
	assert.Equal(t, IndexMemory, cfg.Index.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadDefaultFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	dir := filepath.Join(home, "dicomblob")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  addr: :7070\n"), 0o600))

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("DICOMBLOB_STORE_BACKEND", "tape")
	v, err := New("")
	require.NoError(t, err)
	_, err = Load(v)
	require.ErrorIs(t, err, ErrInvalid)
}
