// Package config loads service settings from an optional .env file and
// HMTRACKER_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"hm-tracker/internal/scheduler"
	"hm-tracker/internal/valuation"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HMTRACKER"

// Config holds the settings shared by all commands.
type Config struct {
	// Storage
	UseMemory     bool   `envconfig:"USE_MEMORY" default:"false"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	ClickHouseDSN string `envconfig:"CLICKHOUSE_DSN"` // optional, serves player stats when set

	// Credential vault
	VaultKey string `envconfig:"VAULT_KEY"`

	// HTTP
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Scheduling; an empty schedule disables the job
	AutolineupSchedule string `envconfig:"AUTOLINEUP_SCHEDULE" default:"0 */2 * * *"`
	AlignSchedule      string `envconfig:"ALIGN_SCHEDULE" default:"30 5 * * *"`

	// Behavior
	ValuationStrategy  string        `envconfig:"VALUATION_STRATEGY" default:"aggregate"`
	SyncCacheWindow    time.Duration `envconfig:"SYNC_CACHE_WINDOW" default:"10m"`
	AutolineupPageSize int           `envconfig:"AUTOLINEUP_PAGE_SIZE" default:"50"`
}

// Load reads envFiles (".env" when none given) into the process
// environment without overriding variables already set, then decodes
// and validates the configuration. Missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that envconfig cannot.
func (c *Config) Validate() error {
	if _, err := valuation.ParseStrategy(c.ValuationStrategy); err != nil {
		return err
	}
	for name, expr := range map[string]string{
		"AUTOLINEUP_SCHEDULE": c.AutolineupSchedule,
		"ALIGN_SCHEDULE":      c.AlignSchedule,
	} {
		if expr == "" {
			continue
		}
		if err := scheduler.ValidateSchedule(expr); err != nil {
			return fmt.Errorf("%s_%s: %w", Prefix, name, err)
		}
	}
	if c.SyncCacheWindow < 0 {
		return fmt.Errorf("%s_SYNC_CACHE_WINDOW must not be negative", Prefix)
	}
	if c.AutolineupPageSize <= 0 {
		return fmt.Errorf("%s_AUTOLINEUP_PAGE_SIZE must be positive", Prefix)
	}
	return nil
}

// RequireStorage reports whether the storage settings are usable.
func (c *Config) RequireStorage() error {
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("%s_POSTGRES_DSN is required (or set %s_USE_MEMORY=true)", Prefix, Prefix)
	}
	return nil
}
