// Package config loads chatlink configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML fields like "30s" or "5m".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config is the top-level client configuration.
type Config struct {
	// ServerURL is the websocket endpoint of the support backend.
	ServerURL string `yaml:"server_url"`

	Reconnect     ReconnectConfig     `yaml:"reconnect,omitempty"`
	Guard         GuardConfig         `yaml:"guard,omitempty"`
	Correlation   CorrelationConfig   `yaml:"correlation,omitempty"`
	History       HistoryConfig       `yaml:"history,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// ReconnectConfig tunes the transport backoff.
type ReconnectConfig struct {
	BaseDelay Duration `yaml:"base_delay,omitempty"`
	MaxDelay  Duration `yaml:"max_delay,omitempty"`
	// MaxAttempts caps attempts per outage; 0 retries forever.
	MaxAttempts int `yaml:"max_attempts,omitempty"`
}

// GuardConfig tunes duplicate/throttle windows.
type GuardConfig struct {
	Cooldown   Duration `yaml:"cooldown,omitempty"`
	SendWindow Duration `yaml:"send_window,omitempty"`
}

// CorrelationConfig tunes the correlation projection.
type CorrelationConfig struct {
	PaletteSize int `yaml:"palette_size,omitempty"`
	// ExcludeAgents lists agent tags that never consume a reply slot.
	ExcludeAgents []string `yaml:"exclude_agents,omitempty"`
}

// HistoryConfig selects conversation persistence.
type HistoryConfig struct {
	// Store is "redis", "file" or "none" (default).
	Store            string      `yaml:"store,omitempty"`
	BaseDir          string      `yaml:"base_dir,omitempty"`
	AutosaveInterval Duration    `yaml:"autosave_interval,omitempty"`
	Redis            RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection settings for history storage.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db,omitempty"`
	Prefix   string   `yaml:"prefix,omitempty"`
	TTL      Duration `yaml:"ttl,omitempty"`
}

// ObservabilityConfig controls the metrics server and tracing.
type ObservabilityConfig struct {
	// MetricsPort serves /metrics and /health when > 0.
	MetricsPort int `yaml:"metrics_port,omitempty"`
	// Tracing enables OpenTelemetry trace export.
	Tracing bool `yaml:"tracing,omitempty"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-field consistency.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	switch c.History.Store {
	case "", "none", "file":
	case "redis":
		if c.History.Redis.Addr == "" {
			return fmt.Errorf("history.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown history store %q", c.History.Store)
	}
	return nil
}
