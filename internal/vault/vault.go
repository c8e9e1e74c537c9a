// Package vault is the secure mapping store: the only place original values
// live once scrambling begins. Values are sealed with AES-256-GCM before
// they reach any backend, entries are scoped to a session, and every entry
// expires on a short operational TTL independent of regulatory retention.
package vault

import (
	"context"
	"fmt"
	"time"
)

// Entry is one token→value mapping owned by the store for the lifetime of a
// scramble→restore round trip.
type Entry struct {
	Token     string
	Value     string
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// StoreError wraps backend failures. Scramble fails closed on a StoreError;
// restore reports every token unresolved instead of guessing.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("mapping store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store persists token↔value mappings with expiry and session scoping.
//
// Implementations must support concurrent put/get/delete across sessions,
// serialize the collision check + insert per token, and bound every
// operation with the configured timeout. PutBatch is all-or-nothing: a
// cancelled or failed batch leaves no partial entries behind.
type Store interface {
	PutBatch(ctx context.Context, sessionID string, entries []Entry, ttl time.Duration) error
	Get(ctx context.Context, sessionID, token string) (value string, ok bool, err error)
	HasToken(ctx context.Context, sessionID, token string) (bool, error)
	Delete(ctx context.Context, sessionID, token string) error
	DeleteSession(ctx context.Context, sessionID string) (int, error)
	PurgeExpired(ctx context.Context) (int, error)
	Close() error
}

// Config selects and tunes the store backend.
type Config struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // memory or redis
	EncryptionKey string        `yaml:"encryption_key" mapstructure:"encryption_key"`
	OpTimeout     time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
	DefaultTTL    time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxTTL        time.Duration `yaml:"max_ttl" mapstructure:"max_ttl"`

	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig tunes the Redis backend connection.
type RedisConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 250 * time.Millisecond
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 15 * time.Minute
	}
	if c.MaxTTL == 0 {
		c.MaxTTL = 2 * time.Hour
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "veil"
	}
	if c.Redis.MaxConnections == 0 {
		c.Redis.MaxConnections = 10
	}
	return c
}

// ClampTTL bounds a profile-derived TTL to the store's operational maximum.
// The mapping store TTL governs only the scramble/restore round trip, never
// long-term retention.
func (c Config) ClampTTL(ttl time.Duration) time.Duration {
	c = c.withDefaults()
	if ttl <= 0 {
		ttl = c.DefaultTTL
	}
	if ttl > c.MaxTTL {
		ttl = c.MaxTTL
	}
	return ttl
}
