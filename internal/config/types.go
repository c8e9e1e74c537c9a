package config

import (
	"time"

	"github.com/veilhq/veil/internal/catalog"
	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/engine"
	"github.com/veilhq/veil/internal/events"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/vault"
)

// Config represents the main configuration structure.
type Config struct {
	Server    ServerConfig      `yaml:"server" mapstructure:"server"`
	Detection detect.Config     `yaml:"detection" mapstructure:"detection"`
	Engine    engine.Config     `yaml:"engine" mapstructure:"engine"`
	Vault     vault.Config      `yaml:"vault" mapstructure:"vault"`
	Catalog   catalog.Config    `yaml:"catalog" mapstructure:"catalog"`
	Events    events.Config     `yaml:"events" mapstructure:"events"`
	Logging   LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	RateLimit RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Patterns  []pattern.Pattern `yaml:"patterns" mapstructure:"patterns"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// RateLimitConfig contains API rate limiting configuration.
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// GetDefaults returns a configuration with sensible defaults. The vault
// encryption key has no default on purpose: it must come from the config
// file or the VEIL_VAULT_ENCRYPTION_KEY environment variable.
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Detection: detect.Config{
			MinMatchLength: 4,
			MaxDetections:  10000,
			MinConfidence:  0.5,
			ContextWindow:  32,
		},
		Engine: engine.Config{
			SweepInterval: time.Minute,
			EvictionGrace: time.Hour,
		},
		Vault: vault.Config{
			Backend:    "memory",
			OpTimeout:  250 * time.Millisecond,
			DefaultTTL: 15 * time.Minute,
			MaxTTL:     2 * time.Hour,
			Redis: vault.RedisConfig{
				URL:            "redis://localhost:6379/0",
				KeyPrefix:      "veil",
				MaxConnections: 10,
			},
		},
		Events: events.Config{
			Enabled:            true,
			BroadcastScrambles: true,
			BroadcastRestores:  true,
			BroadcastExpiries:  true,
			MaxConnections:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerSec: 50,
			Burst:          100,
		},
	}
}
