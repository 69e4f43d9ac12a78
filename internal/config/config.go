// Package config loads runtime configuration from the environment, an
// optional .env file, and an optional config file, in that precedence
// order. Missing required settings are construction-time errors; nothing
// in this package retries or degrades.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/civiclight/civiclight/internal/civic"
)

// Config is the resolved runtime configuration for the ingestion core.
type Config struct {
	// DatabaseURL is the Postgres DSN. Required.
	DatabaseURL string

	// DataDir holds the static vendor configuration files
	// (granicus_view_ids.json, onbase_sites.json, ...).
	DataDir string

	// SyncIntervalHours is the cadence of the full-sync loop.
	SyncIntervalHours int
	// SyncErrorBackoffHours is the sleep after a failed full sync.
	SyncErrorBackoffHours int
	// ProcessingIntervalSeconds is the idle sleep of the queue-drain loop.
	ProcessingIntervalSeconds int

	// EnabledVendors narrows the vendor set for a sync pass. Empty means
	// all registered vendors.
	EnabledVendors []civic.Vendor

	// MaxRetries is the per-city retry ceiling in the fetcher.
	MaxRetries int

	// QueueRetryLimit is the failure count after which a job moves to
	// dead_letter.
	QueueRetryLimit int

	// DetailConcurrency bounds per-meeting detail-page fan-out inside
	// adapters.
	DetailConcurrency int

	// Pool sizing for the Postgres connection pool.
	DBMinConns int32
	DBMaxConns int32

	// LegistarAPITokens maps city slugs to API tokens where the Legistar
	// API requires one (e.g. NYC).
	LegistarAPITokens map[string]string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

const envPrefix = "CIVIC"

// Load reads configuration. A .env file in the working directory is
// honored when present; explicit environment variables win.
func Load() (*Config, error) {
	// Best effort; a missing .env is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", "data")
	v.SetDefault("sync_interval_hours", 168)
	v.SetDefault("sync_error_backoff_hours", 48)
	v.SetDefault("processing_interval_seconds", 30)
	v.SetDefault("max_retries", 1)
	v.SetDefault("queue_retry_limit", 3)
	v.SetDefault("detail_concurrency", 5)
	v.SetDefault("db_min_conns", 5)
	v.SetDefault("db_max_conns", 20)
	v.SetDefault("log_level", "info")

	cfg := &Config{
		DatabaseURL:               v.GetString("database_url"),
		DataDir:                   v.GetString("data_dir"),
		SyncIntervalHours:         v.GetInt("sync_interval_hours"),
		SyncErrorBackoffHours:     v.GetInt("sync_error_backoff_hours"),
		ProcessingIntervalSeconds: v.GetInt("processing_interval_seconds"),
		MaxRetries:                v.GetInt("max_retries"),
		QueueRetryLimit:           v.GetInt("queue_retry_limit"),
		DetailConcurrency:         v.GetInt("detail_concurrency"),
		DBMinConns:                v.GetInt32("db_min_conns"),
		DBMaxConns:                v.GetInt32("db_max_conns"),
		LogLevel:                  v.GetString("log_level"),
		LegistarAPITokens:         map[string]string{},
	}

	if raw := v.GetString("enabled_vendors"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			cfg.EnabledVendors = append(cfg.EnabledVendors, civic.Vendor(tag))
		}
	}

	// CIVIC_LEGISTAR_TOKEN_<SLUG>=token for Legistar sites that gate the
	// API. Only NYC requires one today.
	if tok := v.GetString("legistar_token_nyc"); tok != "" {
		cfg.LegistarAPITokens["nyc"] = tok
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: CIVIC_DATABASE_URL is required")
	}
	if c.SyncIntervalHours <= 0 {
		return fmt.Errorf("config: sync interval must be positive, got %d", c.SyncIntervalHours)
	}
	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("config: db_max_conns (%d) < db_min_conns (%d)", c.DBMaxConns, c.DBMinConns)
	}
	return nil
}

// SyncInterval returns the full-sync cadence as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalHours) * time.Hour
}

// SyncErrorBackoff returns the post-failure sleep as a duration.
func (c *Config) SyncErrorBackoff() time.Duration {
	return time.Duration(c.SyncErrorBackoffHours) * time.Hour
}

// ProcessingInterval returns the queue-drain idle sleep.
func (c *Config) ProcessingInterval() time.Duration {
	return time.Duration(c.ProcessingIntervalSeconds) * time.Second
}

// VendorEnabled reports whether a vendor participates in sync passes.
func (c *Config) VendorEnabled(v civic.Vendor) bool {
	if len(c.EnabledVendors) == 0 {
		return true
	}
	for _, e := range c.EnabledVendors {
		if e == v {
			return true
		}
	}
	return false
}
