// Package server provides configuration loading with runtime defaults, an
// optional YAML file, environment overrides, and a sanitize pass.
package server

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable that points at an optional
// YAML configuration file.
const ConfigFileEnv = "CHATWIRE_CONFIG"

// RateLimitConfig defines the parameters for per-session inbound throttling.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst" env:"CHATWIRE_RATE_LIMIT_BURST"`
	RefillInterval time.Duration `yaml:"refill_interval" env:"CHATWIRE_RATE_LIMIT_REFILL_INTERVAL"`
}

// Config holds the relay's runtime settings.
type Config struct {
	// TCPAddr is the chat listener address. The chat protocol's default port
	// is 1500.
	TCPAddr string `yaml:"tcp_addr" env:"CHATWIRE_TCP_ADDR"`

	// HTTPAddr serves the health endpoint and the WebSocket upgrade.
	HTTPAddr string `yaml:"http_addr" env:"CHATWIRE_HTTP_ADDR"`

	// AllowedOrigins lists origins accepted for WebSocket upgrades; "*"
	// allows all.
	AllowedOrigins []string `yaml:"allowed_origins" env:"CHATWIRE_ALLOWED_ORIGINS" envSeparator:","`

	// MaxMessageSize caps the length of one encoded message frame in bytes.
	MaxMessageSize int64 `yaml:"max_message_size" env:"CHATWIRE_MAX_MESSAGE_SIZE"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CHATWIRE_SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		TCPAddr:        ":1500",
		HTTPAddr:       ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig builds the runtime configuration: defaults first, then the YAML
// file named by CHATWIRE_CONFIG if set, then environment overrides, then a
// sanitize pass that back-fills invalid values.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg.sanitize(), nil
}

func (c Config) sanitize() Config {
	def := DefaultConfig()

	if c.TCPAddr == "" {
		c.TCPAddr = def.TCPAddr
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = def.HTTPAddr
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}

	return c
}
