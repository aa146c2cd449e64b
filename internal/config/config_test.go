package config_test

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/redump_downloader/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Contains(t, cfg.CatalogBaseURL, "myrient")
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 30*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 168*time.Hour, cfg.CatalogCacheTTL)
	assert.Equal(t, 2, cfg.JobRetryCycles)
	assert.Equal(t, "./ps3dec", cfg.DecryptorPath)
	assert.Equal(t, "7z", cfg.SFOToolPath)

	assert.True(t, filepath.IsAbs(cfg.WorkDir), "the tilde default must be expanded")
	assert.Equal(t, filepath.Join(cfg.WorkDir, "catalog.db"), cfg.DBPath)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("WORK_DIR", "/data/games")
	t.Setenv("DB_PATH", "/var/lib/redump/catalog.db")
	t.Setenv("MAX_RETRIES", "3")
	t.Setenv("RETRY_DELAY", "1s")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/data/games", cfg.WorkDir)
	assert.Equal(t, "/var/lib/redump/catalog.db", cfg.DBPath, "absolute DB paths are not rebased")
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero retries", "MAX_RETRIES", "0"},
		{"negative retry delay", "RETRY_DELAY", "-1s"},
		{"zero decrypt timeout", "DECRYPT_TIMEOUT", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "debug"}
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	cfg.LogLevel = "ERROR"
	assert.Equal(t, slog.LevelError, cfg.SlogLevel())

	cfg.LogLevel = "bogus"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
