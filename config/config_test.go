package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	// The defaults were written out and load back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 5555\nmax_connections = 7\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5555, cfg.Port)
	assert.Equal(t, 7, cfg.MaxConnections)
	assert.Equal(t, Default().QueueSize, cfg.QueueSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATD_PORT", "6666")
	t.Setenv("CHATD_DB_PATH", "/tmp/override.db")
	t.Setenv("CHATD_MAX_CONNECTIONS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "chatd.toml"))
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Port)
	assert.Equal(t, "/tmp/override.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.MaxConnections)
}
