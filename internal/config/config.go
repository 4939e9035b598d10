package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultRetryInterval    = 2 * time.Second
	DefaultMaxWriteAttempts = 5
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string                   `toml:"default_session"`
	Store          StoreConfig              `toml:"store"`
	Sessions       map[string]SessionConfig `toml:"sessions"`
}

// StoreConfig locates the shared document store.
type StoreConfig struct {
	Path           string `toml:"path"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
}

// SessionConfig holds per-session settings.
type SessionConfig struct {
	UserID           string `toml:"user_id"`
	RetryIntervalMS  int    `toml:"retry_interval_ms"`
	MaxWriteAttempts int    `toml:"max_write_attempts"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrEmpty reads config from path, treating a missing file as an empty config.
func LoadOrEmpty(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// StorePath returns the configured store path, or fallback when unset.
func (c *Config) StorePath(fallback string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return fallback
}

// PollInterval returns the change-feed polling interval.
func (c *Config) PollInterval() time.Duration {
	if c.Store.PollIntervalMS > 0 {
		return time.Duration(c.Store.PollIntervalMS) * time.Millisecond
	}
	return DefaultPollInterval
}

// Session returns the settings for name; missing sessions get zero values.
func (c *Config) Session(name string) SessionConfig {
	return c.Sessions[name]
}

// SetSession stores the settings for name.
func (c *Config) SetSession(name string, s SessionConfig) {
	if c.Sessions == nil {
		c.Sessions = make(map[string]SessionConfig)
	}
	c.Sessions[name] = s
}

// RetryInterval returns how often failed writes are retried.
func (s SessionConfig) RetryInterval() time.Duration {
	if s.RetryIntervalMS > 0 {
		return time.Duration(s.RetryIntervalMS) * time.Millisecond
	}
	return DefaultRetryInterval
}

// WriteAttempts returns how many times a write is tried before it is abandoned.
func (s SessionConfig) WriteAttempts() int {
	if s.MaxWriteAttempts > 0 {
		return s.MaxWriteAttempts
	}
	return DefaultMaxWriteAttempts
}
