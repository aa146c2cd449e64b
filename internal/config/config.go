package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	CatalogBaseURL string `envconfig:"CATALOG_BASE_URL" default:"https://myrient.erista.me/files/Redump/Sony%20-%20PlayStation%203/"`
	KeysBaseURL    string `envconfig:"KEYS_BASE_URL" default:"https://myrient.erista.me/files/Redump/Sony%20-%20PlayStation%203%20-%20Disc%20Keys%20TXT/"`

	WorkDir string `envconfig:"WORK_DIR" default:"~/PS3-Games"`
	DBPath  string `envconfig:"DB_PATH" default:"catalog.db"`

	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"5"`
	RetryDelay      time.Duration `envconfig:"RETRY_DELAY" default:"5s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30m"`
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"168h"`
	JobRetryCycles  int           `envconfig:"JOB_RETRY_CYCLES" default:"2"`

	DecryptorPath  string        `envconfig:"DECRYPTOR_PATH" default:"./ps3dec"`
	DecryptTimeout time.Duration `envconfig:"DECRYPT_TIMEOUT" default:"30m"`
	SFOToolPath    string        `envconfig:"SFO_TOOL_PATH" default:"7z"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MaxRetries <= 0 {
		return nil, fmt.Errorf("MAX_RETRIES must be greater than 0")
	}

	if cfg.RetryDelay <= 0 {
		return nil, fmt.Errorf("RETRY_DELAY must be greater than 0")
	}

	if cfg.DecryptTimeout <= 0 {
		return nil, fmt.Errorf("DECRYPT_TIMEOUT must be greater than 0")
	}

	cfg.WorkDir = expandTilde(cfg.WorkDir)
	if !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(cfg.WorkDir, cfg.DBPath)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return path
}
