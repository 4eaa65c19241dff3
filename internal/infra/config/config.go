// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/freetime/internal/domain/session"
)

// AppName is used for the default data directory.
const AppName = "freetime"

// Config represents the daemon configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Session session.Config `yaml:"session"`
	Timer   TimerConfig    `yaml:"timer"`
	Store   StoreConfig    `yaml:"store"`
	Hooks   HooksConfig    `yaml:"hooks"`
	Log     LogConfig      `yaml:"log"`
}

// ServerConfig represents the control API server configuration.
type ServerConfig struct {
	Addr  string `yaml:"addr" default:"127.0.0.1:7425" validate:"required"`
	Token string `yaml:"token"` // Empty disables authentication
}

// TimerConfig represents timer loop tuning.
type TimerConfig struct {
	TickIntervalMs    int `yaml:"tick_interval_ms" default:"1000" validate:"gte=10,lte=60000"`
	RetryIntervalMs   int `yaml:"retry_interval_ms" default:"5000" validate:"gte=100"`
	ObserverTimeoutMs int `yaml:"observer_timeout_ms" default:"500" validate:"gte=1,lte=10000"`
}

// StoreConfig represents the checkpoint store configuration.
type StoreConfig struct {
	Type     string         `yaml:"type" default:"sqlite" validate:"oneof=memory file sqlite"`
	Settings map[string]any `yaml:"settings"`
}

// HooksConfig represents shell commands run on lifecycle events.
type HooksConfig struct {
	OnStarted  []string `yaml:"on_started"`
	OnStopped  []string `yaml:"on_stopped"`
	OnComplete []string `yaml:"on_complete"`
}

// LogConfig represents logging configuration.
// Command-line flags take precedence.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File  string `yaml:"file"` // Empty logs to stderr
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults. Environment variables take
// precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.applyStoreDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("FREETIME_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FREETIME_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("FREETIME_STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("FREETIME_STORE_PATH"); v != "" {
		if c.Store.Settings == nil {
			c.Store.Settings = make(map[string]any)
		}
		c.Store.Settings["path"] = v
	}
}

// applyStoreDefaults points file-backed stores at the user config directory
// when no path is configured.
func (c *Config) applyStoreDefaults() error {
	var name string
	switch c.Store.Type {
	case "file":
		name = "checkpoint.yaml"
	case "sqlite":
		name = "checkpoint.db"
	default:
		return nil
	}

	if c.Store.Settings == nil {
		c.Store.Settings = make(map[string]any)
	}
	if p, ok := c.Store.Settings["path"].(string); ok && p != "" {
		return nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return errors.Wrap(err, "failed to resolve user config dir")
	}
	c.Store.Settings["path"] = filepath.Join(dir, AppName, name)
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// TickInterval returns the clock tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMs) * time.Millisecond
}

// RetryInterval returns the checkpoint retry interval used while idle.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Timer.RetryIntervalMs) * time.Millisecond
}

// ObserverTimeout returns the per-observer send timeout.
func (c *Config) ObserverTimeout() time.Duration {
	return time.Duration(c.Timer.ObserverTimeoutMs) * time.Millisecond
}
