package vault

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is the in-process mapping store backend. Values are sealed
// exactly as in the Redis backend; expiry is enforced lazily on read and by
// PurgeExpired sweeps.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]memEntry
	sealer   *sealer
	logger   *zap.Logger
}

type memEntry struct {
	sealed    string
	createdAt time.Time
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory mapping store.
func NewMemoryStore(cfg Config, logger *zap.Logger) (*MemoryStore, error) {
	cfg = cfg.withDefaults()
	s, err := newSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		sessions: make(map[string]map[string]memEntry),
		sealer:   s,
		logger:   logger,
	}, nil
}

// PutBatch seals and inserts all entries or none. A token already present
// in the session fails the whole batch.
func (m *MemoryStore) PutBatch(ctx context.Context, sessionID string, entries []Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "put", Err: err}
	}

	now := time.Now()
	staged := make(map[string]memEntry, len(entries))
	for _, e := range entries {
		sealed, err := m.sealer.seal(sessionID, e.Token, e.Value)
		if err != nil {
			return &StoreError{Op: "put", Err: err}
		}
		staged[e.Token] = memEntry{sealed: sealed, createdAt: now, expiresAt: now.Add(ttl)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.sessions[sessionID]
	if bucket == nil {
		bucket = make(map[string]memEntry, len(staged))
		m.sessions[sessionID] = bucket
	}
	for token := range staged {
		if existing, ok := bucket[token]; ok && existing.expiresAt.After(now) {
			return &StoreError{Op: "put", Err: &tokenExistsError{token: token}}
		}
	}
	for token, e := range staged {
		bucket[token] = e
	}
	return nil
}

// Get returns the original value for a live token in the session.
func (m *MemoryStore) Get(ctx context.Context, sessionID, token string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, &StoreError{Op: "get", Err: err}
	}
	m.mu.RLock()
	entry, ok := m.sessions[sessionID][token]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	value, err := m.sealer.open(sessionID, token, entry.sealed)
	if err != nil {
		return "", false, &StoreError{Op: "get", Err: err}
	}
	return value, true, nil
}

// HasToken reports whether a live entry exists for the token.
func (m *MemoryStore) HasToken(ctx context.Context, sessionID, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &StoreError{Op: "exists", Err: err}
	}
	m.mu.RLock()
	entry, ok := m.sessions[sessionID][token]
	m.mu.RUnlock()
	return ok && time.Now().Before(entry.expiresAt), nil
}

// Delete removes one entry.
func (m *MemoryStore) Delete(ctx context.Context, sessionID, token string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.sessions[sessionID]; ok {
		delete(bucket, token)
		if len(bucket) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	return nil
}

// DeleteSession removes every entry for the session and returns the count.
func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &StoreError{Op: "delete_session", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions[sessionID])
	delete(m.sessions, sessionID)
	return n, nil
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (m *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &StoreError{Op: "purge", Err: err}
	}
	now := time.Now()
	purged := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	for sessionID, bucket := range m.sessions {
		for token, entry := range bucket {
			if now.After(entry.expiresAt) {
				delete(bucket, token)
				purged++
			}
		}
		if len(bucket) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	if purged > 0 {
		m.logger.Debug("Expired mapping entries purged", zap.Int("count", purged))
	}
	return purged, nil
}

// Close releases nothing for the memory backend.
func (m *MemoryStore) Close() error {
	return nil
}

type tokenExistsError struct {
	token string
}

func (e *tokenExistsError) Error() string {
	return "token already mapped in session"
}
