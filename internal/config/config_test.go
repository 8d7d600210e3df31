package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "passforge", cfg.Name)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 100, cfg.Queue.CompletedRetention)
	assert.Equal(t, 50, cfg.Queue.FailedRetention)
	require.NoError(t, cfg.Validate())

	timeout, err := cfg.RequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("PASSFORGE_DB_PATH", "")
	t.Setenv("PASSFORGE_APPLE_TEAM_ID", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Credentials.AppleTeamID = "TEAM123456"
	cfg.Store.DatabasePath = "/var/lib/passforge/passforge.db"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "TEAM123456", loaded.Credentials.AppleTeamID)
	assert.Equal(t, "/var/lib/passforge/passforge.db", loaded.Store.DatabasePath)
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrent)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PASSFORGE_GOOGLE_ISSUER_ID", "3388000000099999")
	t.Setenv("PASSFORGE_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "3388000000099999", cfg.Credentials.GoogleIssuerID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_ValidationFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queue.RequestTimeout = "soon"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Level = "loud"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Queue.MaxConcurrent = -1
	require.Error(t, cfg.Validate())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	var reloads atomic.Int32
	var lastTeam atomic.Value
	w, err := Watch(path, nil, func(cfg *Config) {
		lastTeam.Store(cfg.Credentials.AppleTeamID)
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer w.Close()

	cfg := DefaultConfig()
	cfg.Credentials.AppleTeamID = "TEAMROTATED"
	require.NoError(t, cfg.Save(path))

	require.Eventually(t, func() bool {
		return reloads.Load() > 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "TEAMROTATED", lastTeam.Load())
}

func TestWatcher_SkipsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	var reloads atomic.Int32
	w, err := Watch(path, nil, func(*Config) { reloads.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("queue: [broken"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, reloads.Load(), "invalid config must not reach the callback")
}
