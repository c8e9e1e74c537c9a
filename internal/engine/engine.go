// Package engine orchestrates the scramble→restore round trip: detection,
// risk filtering, tokenization, mapping storage, session lifecycle, and
// rehydration. Scramble fails closed; restore fails open but flagged.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/classify"
	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
	"github.com/veilhq/veil/internal/stitch"
	"github.com/veilhq/veil/internal/token"
	"github.com/veilhq/veil/internal/vault"
)

// Config tunes engine housekeeping.
type Config struct {
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	EvictionGrace time.Duration `yaml:"eviction_grace" mapstructure:"eviction_grace"`
}

func (c Config) withDefaults() Config {
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.EvictionGrace == 0 {
		c.EvictionGrace = time.Hour
	}
	return c
}

// Auditor records session lifecycle facts: ids, counts, and statuses, never
// values. The catalog implements it; a nil auditor disables auditing.
type Auditor interface {
	RecordScramble(ctx context.Context, s *Session, findings []detect.Finding) error
	RecordRestore(ctx context.Context, s *Session, restored, unresolved int) error
}

// EventSink receives lifecycle events for the dashboard feed. A nil sink
// disables events.
type EventSink interface {
	Publish(evt Event)
}

// Event is one lifecycle notification. It carries summaries only.
type Event struct {
	Type       string           `json:"type"` // scrambled, restored, expired
	SessionID  string           `json:"session_id"`
	ProfileID  string           `json:"profile_id"`
	Findings   []detect.Finding `json:"findings,omitempty"`
	Restored   int              `json:"restored,omitempty"`
	Unresolved int              `json:"unresolved,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ScrambleResult is what leaves the trust boundary.
type ScrambleResult struct {
	Scrambled string           `json:"scrambled_text"`
	SessionID string           `json:"session_id"`
	Findings  []detect.Finding `json:"findings"`
}

// Engine wires the pipeline components together.
type Engine struct {
	cfg        Config
	registry   *pattern.Registry
	profiles   *profile.Manager
	detector   *detect.Detector
	classifier *classify.Classifier
	tokenizer  *token.Tokenizer
	restorer   *stitch.Restorer
	store      vault.Store
	storeCfg   vault.Config
	sessions   *sessionTable
	auditor    Auditor
	events     EventSink
	logger     *zap.Logger
	stop       chan struct{}
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithAuditor attaches a session audit recorder.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithEventSink attaches a lifecycle event sink.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

// New assembles an engine from its components.
func New(cfg Config, detectCfg detect.Config, storeCfg vault.Config, registry *pattern.Registry, profiles *profile.Manager, store vault.Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		registry:   registry,
		profiles:   profiles,
		detector:   detect.New(detectCfg, logger.With(zap.String("component", "detect"))),
		classifier: classify.New(logger.With(zap.String("component", "classify"))),
		tokenizer:  token.New(store, logger.With(zap.String("component", "token"))),
		restorer:   stitch.New(store, logger.With(zap.String("component", "stitch"))),
		store:      store,
		storeCfg:   storeCfg,
		sessions:   newSessionTable(),
		logger:     logger,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.sweep()
	return e
}

// Scramble runs detection, risk filtering, and tokenization for raw text
// under the named compliance profile. Any failure returns no scrambled text
// at all so unscrubbed content can never be forwarded by mistake.
func (e *Engine) Scramble(ctx context.Context, text, profileID string) (*ScrambleResult, error) {
	prof, err := e.profiles.Snapshot(profileID)
	if err != nil {
		return nil, err
	}

	patterns := e.registry.Snapshot().Active(prof)
	detections, err := e.detector.Detect(text, patterns)
	if err != nil {
		return nil, err
	}
	detections = e.classifier.Filter(detections, prof)

	sessionID := uuid.NewString()
	ttl := e.storeCfg.ClampTTL(prof.MappingTTL)

	res, err := e.tokenizer.Scramble(ctx, text, detections, sessionID, ttl)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        sessionID,
		ProfileID: profileID,
		Profile:   prof,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    StatusActive,
		Mappings:  len(res.Entries),
	}
	e.sessions.put(session)

	findings := detect.Summarize(detections)
	e.logger.Info("Text scrambled",
		zap.String("session_id", sessionID),
		zap.String("profile", profileID),
		zap.Int("detections", len(detections)),
		zap.Int("tokens", len(res.Entries)),
	)

	if e.auditor != nil {
		if err := e.auditor.RecordScramble(ctx, session, findings); err != nil {
			e.logger.Warn("Session audit write failed", zap.Error(err))
		}
	}
	e.publish(Event{Type: "scrambled", SessionID: sessionID, ProfileID: profileID, Findings: findings, Timestamp: now})

	return &ScrambleResult{Scrambled: res.Scrambled, SessionID: sessionID, Findings: findings}, nil
}

// Restore rehydrates processed text for the session. Unknown or already
// restored sessions are not errors: every token simply comes back
// unresolved, and the quality gate downstream decides what that means.
// On full success the session's mappings are deleted immediately.
func (e *Engine) Restore(ctx context.Context, processed, sessionID string) (*stitch.Result, error) {
	res, err := e.restorer.Restore(ctx, processed, sessionID)
	if err != nil {
		// Fail open but flagged: best-effort text plus the full unresolved
		// list already populated by the restorer.
		return res, nil
	}

	session, known := e.sessions.get(sessionID)
	if known && session.Status == StatusActive && len(res.Unresolved) == 0 {
		e.sessions.setStatus(sessionID, StatusRestored)
		// Do not wait for TTL: shrink the retrievability window now.
		if _, err := e.store.DeleteSession(ctx, sessionID); err != nil {
			e.logger.Warn("Failed to delete session mappings after restore",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("Text restored",
		zap.String("session_id", sessionID),
		zap.Int("restored", res.Restored),
		zap.Int("unresolved", len(res.Unresolved)),
	)

	if e.auditor != nil && known {
		if err := e.auditor.RecordRestore(ctx, session, res.Restored, len(res.Unresolved)); err != nil {
			e.logger.Warn("Session audit write failed", zap.Error(err))
		}
	}
	e.publish(Event{
		Type:       "restored",
		SessionID:  sessionID,
		Restored:   res.Restored,
		Unresolved: len(res.Unresolved),
		Timestamp:  time.Now(),
	})
	return res, nil
}

// Session returns the session record, if tracked.
func (e *Engine) Session(id string) (*Session, bool) {
	return e.sessions.get(id)
}

// SessionCount returns the number of tracked sessions.
func (e *Engine) SessionCount() int {
	return e.sessions.count()
}

// sweep expires overdue sessions, purges their mappings, and evicts
// long-terminal session records.
func (e *Engine) sweep() {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for _, s := range e.sessions.expireDue(now) {
				if _, err := e.store.DeleteSession(ctx, s.ID); err != nil {
					e.logger.Warn("Failed to purge expired session",
						zap.String("session_id", s.ID),
						zap.Error(err),
					)
				}
				e.publish(Event{Type: "expired", SessionID: s.ID, ProfileID: s.ProfileID, Timestamp: now})
			}
			if n, err := e.store.PurgeExpired(ctx); err == nil && n > 0 {
				e.logger.Debug("Store purge complete", zap.Int("entries", n))
			}
			e.sessions.evictTerminal(now, e.cfg.EvictionGrace)
			cancel()
		}
	}
}

func (e *Engine) publish(evt Event) {
	if e.events != nil {
		e.events.Publish(evt)
	}
}

// Close stops housekeeping. The store is owned by the caller.
func (e *Engine) Close() {
	close(e.stop)
}
