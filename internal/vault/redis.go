package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStore is the shared mapping store backend for multi-process
// deployments. Entry expiry rides on Redis key TTLs.
type RedisStore struct {
	client    *redis.Client
	sealer    *sealer
	keyPrefix string
	opTimeout time.Duration
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg Config, logger *zap.Logger) (*RedisStore, error) {
	cfg = cfg.withDefaults()

	s, err := newSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.Redis.MaxConnections
	opts.MinIdleConns = cfg.Redis.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &RedisStore{
		client:    client,
		sealer:    s,
		keyPrefix: cfg.Redis.KeyPrefix,
		opTimeout: cfg.OpTimeout,
		logger:    logger,
	}

	logger.Info("Redis mapping store initialized",
		zap.String("redis_url", maskRedisURL(cfg.Redis.URL)),
		zap.Duration("op_timeout", cfg.OpTimeout),
	)
	return store, nil
}

func (r *RedisStore) key(sessionID, token string) string {
	return fmt.Sprintf("%s:map:%s:%s", r.keyPrefix, sessionID, token)
}

// PutBatch seals and writes all entries with SETNX semantics. If any token
// already exists, every key written by this batch is rolled back so a failed
// or cancelled scramble leaves no partial mappings.
func (r *RedisStore) PutBatch(ctx context.Context, sessionID string, entries []Entry, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	sealed := make(map[string]string, len(entries))
	for _, e := range entries {
		v, err := r.sealer.seal(sessionID, e.Token, e.Value)
		if err != nil {
			return &StoreError{Op: "put", Err: err}
		}
		sealed[e.Token] = v
	}

	pipe := r.client.TxPipeline()
	cmds := make(map[string]*redis.BoolCmd, len(sealed))
	for token, v := range sealed {
		cmds[token] = pipe.SetNX(ctx, r.key(sessionID, token), v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &StoreError{Op: "put", Err: err}
	}

	var clobbered []string
	var written []string
	for token, cmd := range cmds {
		if cmd.Val() {
			written = append(written, r.key(sessionID, token))
		} else {
			clobbered = append(clobbered, token)
		}
	}
	if len(clobbered) > 0 {
		// Roll back our own writes; the pre-existing keys stay untouched.
		if len(written) > 0 {
			rollbackCtx, rollbackCancel := context.WithTimeout(context.Background(), r.opTimeout)
			defer rollbackCancel()
			if err := r.client.Del(rollbackCtx, written...).Err(); err != nil {
				r.logger.Error("Failed to roll back partial batch", zap.Error(err))
			}
		}
		return &StoreError{Op: "put", Err: &tokenExistsError{token: clobbered[0]}}
	}
	return nil
}

// Get fetches and opens one entry. The returned value is never logged.
func (r *RedisStore) Get(ctx context.Context, sessionID, token string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	sealed, err := r.client.Get(ctx, r.key(sessionID, token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Op: "get", Err: err}
	}
	value, err := r.sealer.open(sessionID, token, sealed)
	if err != nil {
		return "", false, &StoreError{Op: "get", Err: err}
	}
	return value, true, nil
}

// HasToken reports whether the token is mapped in the session.
func (r *RedisStore) HasToken(ctx context.Context, sessionID, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	n, err := r.client.Exists(ctx, r.key(sessionID, token)).Result()
	if err != nil {
		return false, &StoreError{Op: "exists", Err: err}
	}
	return n > 0, nil
}

// Delete removes one entry.
func (r *RedisStore) Delete(ctx context.Context, sessionID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(sessionID, token)).Err(); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteSession removes every entry for the session via SCAN and returns the
// count. Uses a longer bound than single-key ops since it walks the keyspace.
func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*r.opTimeout)
	defer cancel()

	pattern := fmt.Sprintf("%s:map:%s:*", r.keyPrefix, sessionID)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, &StoreError{Op: "delete_session", Err: err}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, &StoreError{Op: "delete_session", Err: err}
	}
	return len(keys), nil
}

// PurgeExpired is a no-op for Redis: key TTLs expire entries server-side.
func (r *RedisStore) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// maskRedisURL hides credentials in a Redis URL before it is logged.
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := ""
	rest := url
	if i := strings.Index(url, "://"); i >= 0 {
		scheme = url[:i+3]
		rest = url[i+3:]
		at = strings.LastIndex(rest, "@")
		if at < 0 {
			return url
		}
	}
	return scheme + "***" + rest[at:]
}
