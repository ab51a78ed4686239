package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("DB_URL", "postgres://user:pw@localhost:5432/stats")

		cfg, err := load(t.TempDir())

		require.NoError(t, err)
		assert.Equal(t, "postgres://user:pw@localhost:5432/stats", cfg.DBURL)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, ":8080", cfg.ServerAddr)
		assert.Equal(t, "/tmp/rust_projects", cfg.WorkDir)
		assert.Equal(t, time.Duration(0), cfg.RefreshInterval)
		assert.Equal(t, time.Duration(0), cfg.ExtractTimeout)
		assert.Positive(t, cfg.RefreshConcurrency)
		assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.CORSAllowedOrigins)
	})

	t.Run("reads environment overrides", func(t *testing.T) {
		t.Setenv("DB_URL", "postgres://db")
		t.Setenv("REFRESH_INTERVAL", "30m")
		t.Setenv("REFRESH_CONCURRENCY", "3")
		t.Setenv("CACHE_TTL", "10m")
		t.Setenv("GITHUB_TOKEN", "token")

		cfg, err := load(t.TempDir())

		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, cfg.RefreshInterval)
		assert.Equal(t, 3, cfg.RefreshConcurrency)
		assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
		assert.Equal(t, "token", cfg.GithubToken)
	})

	t.Run("reads the .env file", func(t *testing.T) {
		dir := t.TempDir()
		content := "DB_URL=postgres://from-file\nLOG_LEVEL=debug\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644))

		cfg, err := load(dir)

		require.NoError(t, err)
		assert.Equal(t, "postgres://from-file", cfg.DBURL)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("requires DB_URL", func(t *testing.T) {
		t.Setenv("DB_URL", "")

		_, err := load(t.TempDir())

		assert.EqualError(t, err, "DB_URL is a required configuration field")
	})

	t.Run("rejects a non-positive concurrency", func(t *testing.T) {
		t.Setenv("DB_URL", "postgres://db")
		t.Setenv("REFRESH_CONCURRENCY", "0")

		_, err := load(t.TempDir())

		assert.Error(t, err)
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("bogus"))
}

func TestNewLogger_FollowsConfigFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_URL=postgres://db\nLOG_LEVEL=info\n"), 0o644))

	cfg, err := load(dir)
	require.NoError(t, err)
	logger := NewLogger(cfg, io.Discard)
	require.False(t, logger.Enabled(context.Background(), slog.LevelDebug))

	require.NoError(t, os.WriteFile(envFile, []byte("DB_URL=postgres://db\nLOG_LEVEL=debug\n"), 0o644))

	assert.Eventually(t, func() bool {
		return logger.Enabled(context.Background(), slog.LevelDebug)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "info", cfg.LogLevel, "the loaded config is not mutated by the watcher")
}
