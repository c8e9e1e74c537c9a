package engine

import (
	"sync"
	"time"

	"github.com/veilhq/veil/internal/profile"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusRestored Status = "restored"
	StatusExpired  Status = "expired"
)

// Session binds one scramble call to its eventual restore call. The profile
// is a snapshot taken at scramble time: later profile edits never affect an
// in-flight round trip.
type Session struct {
	ID        string           `json:"session_id"`
	ProfileID string           `json:"profile_id"`
	Profile   *profile.Profile `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Status    Status           `json:"status"`
	Mappings  int              `json:"mappings"`
}

// sessionTable tracks live sessions. Terminal sessions stay listed until the
// sweeper evicts them so a late restore gets a meaningful answer instead of
// "unknown session".
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*Session)}
}

func (t *sessionTable) put(s *Session) {
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
}

// get returns a copy of the record. Status transitions happen under the
// table lock, so callers never hold a pointer into the live table.
func (t *sessionTable) get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	out := *s
	return &out, true
}

func (t *sessionTable) setStatus(id string, status Status) {
	t.mu.Lock()
	if s, ok := t.sessions[id]; ok {
		s.Status = status
	}
	t.mu.Unlock()
}

// expireDue transitions every active session past its deadline to expired
// and returns them for entry purging.
func (t *sessionTable) expireDue(now time.Time) []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []*Session
	for _, s := range t.sessions {
		if s.Status == StatusActive && now.After(s.ExpiresAt) {
			s.Status = StatusExpired
			due = append(due, s)
		}
	}
	return due
}

// evictTerminal drops restored/expired sessions whose deadline passed long
// enough ago that no caller should still reference them.
func (t *sessionTable) evictTerminal(now time.Time, grace time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, s := range t.sessions {
		if s.Status != StatusActive && now.Sub(s.ExpiresAt) > grace {
			delete(t.sessions, id)
			n++
		}
	}
	return n
}

func (t *sessionTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
