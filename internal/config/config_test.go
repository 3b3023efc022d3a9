package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/viewcache/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 1000, cfg.Capacity)
	assert.Equal(t, "automatic", cfg.Policy)
	assert.Equal(t, 2, cfg.Sim.Processes)
	assert.Equal(t, time.Millisecond, cfg.Sim.Latency)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("VIEWCACHE_CAPACITY", "64")
	t.Setenv("VIEWCACHE_POLICY", "manual")
	t.Setenv("VIEWCACHE_SIM_THREADS", "9")
	t.Setenv("VIEWCACHE_SIM_LATENCY", "5ms")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Capacity)
	assert.Equal(t, "manual", cfg.Policy)
	assert.Equal(t, 9, cfg.Sim.Threads)
	assert.Equal(t, 5*time.Millisecond, cfg.Sim.Latency)
}

func TestLoad_Dotenv(t *testing.T) {
	// godotenv never overrides variables that are already set
	t.Setenv("VIEWCACHE_LOG_FORMAT", "json")
	os.Unsetenv("VIEWCACHE_LOG_FORMAT")
	t.Setenv("VIEWCACHE_MAX_CONCURRENT_FETCHES", "")
	os.Unsetenv("VIEWCACHE_MAX_CONCURRENT_FETCHES")

	f := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(f, []byte("VIEWCACHE_LOG_FORMAT=json\nVIEWCACHE_MAX_CONCURRENT_FETCHES=3\n"), 0o600))

	cfg, err := config.Load(f)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3, cfg.MaxConcurrentFetches)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("parse error", func(t *testing.T) {
		t.Setenv("VIEWCACHE_CAPACITY", "lots")
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
		require.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("out of range", func(t *testing.T) {
		t.Setenv("VIEWCACHE_SIM_FAIL_RATE", "1.5")
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("log format", func(t *testing.T) {
		t.Setenv("VIEWCACHE_LOG_FORMAT", "xml")
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}
