// Package config holds all passforge configuration: store location, queue
// tuning, and the per-platform signing credential material. Credentials are
// injected here and never fetched at request time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Store       StoreConfig       `yaml:"store"`
	Queue       QueueConfig       `yaml:"queue"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StoreConfig locates the SQLite database. An empty path selects the
// in-memory store (demo mode).
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// QueueConfig tunes the generation orchestrator. Durations are strings
// ("30s", "250ms") parsed on demand.
type QueueConfig struct {
	MaxConcurrent      int    `yaml:"max_concurrent"`
	CompletedRetention int    `yaml:"completed_retention"`
	FailedRetention    int    `yaml:"failed_retention"`
	RequestTimeout     string `yaml:"request_timeout"`
	RetryAttempts      int    `yaml:"retry_attempts"`
	RetryBaseDelay     string `yaml:"retry_base_delay"`
}

// CredentialsConfig carries the opaque signing/issuer identifiers per
// platform.
type CredentialsConfig struct {
	AppleTeamID     string `yaml:"apple_team_id"`
	ApplePassTypeID string `yaml:"apple_pass_type_id"`
	GoogleIssuerID  string `yaml:"google_issuer_id"`
	GoogleClassID   string `yaml:"google_class_id"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	JSONFormat bool   `yaml:"json_format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Name:    "passforge",
		Version: "1.0.0",
		Store: StoreConfig{
			DatabasePath: "passforge.db",
		},
		Queue: QueueConfig{
			MaxConcurrent:      3,
			CompletedRetention: 100,
			FailedRetention:    50,
			RequestTimeout:     "30s",
			RetryAttempts:      3,
			RetryBaseDelay:     "200ms",
		},
		Credentials: CredentialsConfig{
			GoogleClassID: "passforge_loyalty",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the yaml file at path, applies env overrides, and validates.
// A missing file yields defaults plus overrides, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as yaml, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets deployment environments inject paths and
// credentials without touching the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PASSFORGE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("PASSFORGE_APPLE_TEAM_ID"); v != "" {
		c.Credentials.AppleTeamID = v
	}
	if v := os.Getenv("PASSFORGE_APPLE_PASS_TYPE_ID"); v != "" {
		c.Credentials.ApplePassTypeID = v
	}
	if v := os.Getenv("PASSFORGE_GOOGLE_ISSUER_ID"); v != "" {
		c.Credentials.GoogleIssuerID = v
	}
	if v := os.Getenv("PASSFORGE_GOOGLE_CLASS_ID"); v != "" {
		c.Credentials.GoogleClassID = v
	}
	if v := os.Getenv("PASSFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrent < 0 {
		return fmt.Errorf("queue.max_concurrent must not be negative")
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if _, err := c.RetryBaseDelay(); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	return nil
}

// RequestTimeout parses the per-request deadline; empty means none.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return parseDuration("queue.request_timeout", c.Queue.RequestTimeout)
}

// RetryBaseDelay parses the first retry backoff step.
func (c *Config) RetryBaseDelay() (time.Duration, error) {
	return parseDuration("queue.retry_base_delay", c.Queue.RetryBaseDelay)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
