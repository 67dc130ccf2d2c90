// Package config provides configuration loading for projectd.
//
// Configuration is read from a YAML file and overridden by environment
// variables. Defaults are applied for anything left unset, then the
// whole configuration is validated before use.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// Storage provider names accepted in configuration. ProviderAuto engages
// capability-based selection; a concrete provider pins the backend.
const (
	ProviderAuto   = "auto"
	ProviderSQLite = "sqlite"
	ProviderNATS   = "nats"
	ProviderBadger = "badger"
	ProviderMemory = "memory"
)

// Config holds the complete projectd configuration.
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Cache   CacheConfig   `koanf:"cache"`
	Tenancy TenancyConfig `koanf:"tenancy"`
	Logging LoggingConfig `koanf:"logging"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	// Provider is auto, sqlite, nats, badger, or memory.
	Provider string `koanf:"provider"`

	SQLite SQLiteConfig `koanf:"sqlite"`
	NATS   NATSConfig   `koanf:"nats"`
	Badger BadgerConfig `koanf:"badger"`

	// ChunkThresholdBytes is the per-file content size above which
	// size-limited backends externalize content into chunk records.
	ChunkThresholdBytes int `koanf:"chunk_threshold_bytes"`
}

// SQLiteConfig configures the relational backend.
type SQLiteConfig struct {
	// Path is the database file. A leading ~ is expanded at open time.
	Path string `koanf:"path"`
}

// NATSConfig configures the remote key-value backend.
type NATSConfig struct {
	// URL of the NATS server. Empty means the capability is absent.
	URL string `koanf:"url"`

	// Bucket is the JetStream key-value bucket name.
	Bucket string `koanf:"bucket"`
}

// BadgerConfig configures the local persistent backend.
type BadgerConfig struct {
	// Path is the database directory. A leading ~ is expanded at open time.
	Path string `koanf:"path"`
}

// CacheConfig configures the read-through project cache.
type CacheConfig struct {
	Enabled    bool     `koanf:"enabled"`
	TTL        Duration `koanf:"ttl"`
	MaxEntries int      `koanf:"max_entries"`
}

// TenancyConfig selects the tenant access policy.
type TenancyConfig struct {
	// Mode is "open" or "strict".
	Mode string `koanf:"mode"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// Duration wraps time.Duration so YAML and environment values like "30s"
// parse cleanly.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case ProviderAuto, ProviderSQLite, ProviderNATS, ProviderBadger, ProviderMemory:
	default:
		return fmt.Errorf("storage.provider must be one of auto, sqlite, nats, badger, memory; got %q", c.Storage.Provider)
	}

	if c.Storage.Provider == ProviderSQLite && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required when provider is sqlite")
	}
	if c.Storage.Provider == ProviderNATS && c.Storage.NATS.URL == "" {
		return fmt.Errorf("storage.nats.url is required when provider is nats")
	}
	if c.Storage.Provider == ProviderBadger && c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage.badger.path is required when provider is badger")
	}
	if c.Storage.ChunkThresholdBytes <= 0 {
		return fmt.Errorf("storage.chunk_threshold_bytes must be > 0, got %d", c.Storage.ChunkThresholdBytes)
	}

	if c.Cache.Enabled {
		if c.Cache.TTL.Duration() <= 0 {
			return fmt.Errorf("cache.ttl must be > 0 when cache enabled")
		}
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache.max_entries must be > 0 when cache enabled")
		}
	}

	switch c.Tenancy.Mode {
	case "open", "strict":
	default:
		return fmt.Errorf("tenancy.mode must be open or strict, got %q", c.Tenancy.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
// cacheEnabledSet reports whether cache.enabled was given explicitly;
// when absent the cache defaults to on.
func applyDefaults(cfg *Config, cacheEnabledSet bool) {
	// Storage defaults
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = ProviderAuto
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "~/.local/share/projectd/projects.db"
	}
	if cfg.Storage.NATS.Bucket == "" {
		cfg.Storage.NATS.Bucket = "projectd_projects"
	}
	if cfg.Storage.Badger.Path == "" {
		cfg.Storage.Badger.Path = "~/.local/share/projectd/store"
	}
	if cfg.Storage.ChunkThresholdBytes == 0 {
		cfg.Storage.ChunkThresholdBytes = project.DefaultChunkThreshold
	}

	// Cache defaults (on unless explicitly disabled)
	if !cacheEnabledSet {
		cfg.Cache.Enabled = true
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(30 * time.Second)
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 256
	}

	// Tenancy defaults
	if cfg.Tenancy.Mode == "" {
		cfg.Tenancy.Mode = "open"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}
