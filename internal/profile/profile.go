package profile

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Profile binds a pattern subset, risk threshold, and retention rules to a
// named compliance configuration. A profile referenced by an in-flight
// scramble/restore pair is snapshotted at scramble time; edits only affect
// new sessions.
type Profile struct {
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	PatternSubset      []string      `json:"pattern_subset"`
	RiskThreshold      string        `json:"risk_threshold"`
	RetentionDays      int           `json:"retention_days"`
	MappingTTL         time.Duration `json:"mapping_ttl"`
	EncryptionRequired bool          `json:"encryption_required"`
	ComplianceTags     []string      `json:"compliance_tags,omitempty"`

	subset map[string]struct{}
}

// IncludesPattern reports whether the profile's subset admits the pattern.
// An empty subset admits every pattern.
func (p *Profile) IncludesPattern(id string) bool {
	if len(p.PatternSubset) == 0 {
		return true
	}
	if p.subset == nil {
		p.subset = make(map[string]struct{}, len(p.PatternSubset))
		for _, s := range p.PatternSubset {
			p.subset[s] = struct{}{}
		}
	}
	_, ok := p.subset[id]
	return ok
}

// clone returns a deep copy safe to hand to a session.
func (p *Profile) clone() *Profile {
	cp := *p
	cp.PatternSubset = append([]string(nil), p.PatternSubset...)
	cp.ComplianceTags = append([]string(nil), p.ComplianceTags...)
	cp.subset = nil
	return &cp
}

// Manager holds the named compliance profiles.
type Manager struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	logger   *zap.Logger
}

// NewManager creates a manager pre-loaded with the built-in profiles.
func NewManager(logger *zap.Logger) *Manager {
	m := &Manager{
		profiles: make(map[string]*Profile),
		logger:   logger,
	}
	for _, p := range BuiltinProfiles() {
		m.profiles[p.Name] = p.clone()
	}
	logger.Info("Compliance profiles loaded", zap.Int("profiles", len(m.profiles)))
	return m
}

// Snapshot returns an immutable copy of the named profile for binding to a
// session. Later edits to the profile do not affect the returned copy.
func (m *Manager) Snapshot(name string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown compliance profile: %q", name)
	}
	return p.clone(), nil
}

// List returns copies of all profiles.
func (m *Manager) List() []*Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p.clone())
	}
	return out
}

// Put validates and stores a profile under its name.
func (m *Manager) Put(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	switch p.RiskThreshold {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid risk threshold %q (must be low, medium, or high)", p.RiskThreshold)
	}
	if p.MappingTTL < 0 {
		return fmt.Errorf("mapping TTL cannot be negative")
	}
	m.mu.Lock()
	m.profiles[p.Name] = p.clone()
	m.mu.Unlock()
	m.logger.Info("Compliance profile stored",
		zap.String("profile", p.Name),
		zap.String("risk_threshold", p.RiskThreshold),
		zap.Int("subset_size", len(p.PatternSubset)),
	)
	return nil
}

// Delete removes a profile. Built-in profiles can be overwritten but stay
// deletable like any other; sessions holding a snapshot are unaffected.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[name]; !ok {
		return fmt.Errorf("unknown compliance profile: %q", name)
	}
	delete(m.profiles, name)
	return nil
}
