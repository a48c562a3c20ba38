package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/reachbox.db"`

	// Sync pipeline
	SyncInterval    time.Duration `env:"SYNC_INTERVAL" envDefault:"2m"`
	LookbackWindow  time.Duration `env:"LOOKBACK_WINDOW" envDefault:"720h"` // 30 days
	SyncTimeout     time.Duration `env:"SYNC_TIMEOUT" envDefault:"5m"`      // Whole-account run budget
	FetchBatchLimit int           `env:"FETCH_BATCH_LIMIT" envDefault:"100"`

	// IMAP
	IMAPDialTimeout    time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"10s"`
	IMAPAuthTimeout    time.Duration `env:"IMAP_AUTH_TIMEOUT" envDefault:"3s"`
	IMAPCommandTimeout time.Duration `env:"IMAP_COMMAND_TIMEOUT" envDefault:"60s"`

	// Observability
	MetricsAddr string `env:"METRICS_ADDR"` // e.g. ":9090"; empty disables the exporter

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("SYNC_INTERVAL must be positive, got %s", cfg.SyncInterval)
	}
	if cfg.LookbackWindow <= 0 {
		return nil, fmt.Errorf("LOOKBACK_WINDOW must be positive, got %s", cfg.LookbackWindow)
	}

	return cfg, nil
}
