package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/profile"
)

// PatternError reports a pattern that failed validation during load.
// The registry keeps the previously active set when a load fails.
type PatternError struct {
	PatternID string
	Reason    string
	Err       error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %q rejected: %s", e.PatternID, e.Reason)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Set is an immutable snapshot of compiled patterns. Detection passes hold
// a *Set for their whole run; Registry.Load swaps in a new snapshot without
// touching sets already handed out.
type Set struct {
	patterns []Pattern
	byID     map[string]*Pattern
	version  uint64
}

// Version identifies the snapshot for logging and cache invalidation.
func (s *Set) Version() uint64 {
	return s.version
}

// All returns every pattern in the set, in priority order.
func (s *Set) All() []Pattern {
	out := make([]Pattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Get returns the pattern with the given id.
func (s *Set) Get(id string) (*Pattern, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Active returns the enabled patterns included in the profile's subset,
// ordered by priority (specific patterns before general ones). An empty
// subset means the profile accepts every enabled pattern.
func (s *Set) Active(prof *profile.Profile) []Pattern {
	var out []Pattern
	for _, p := range s.patterns {
		if !p.Enabled {
			continue
		}
		if prof != nil && !prof.IncludesPattern(p.ID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Registry holds the process-wide pattern set. Reads go through an atomic
// snapshot so detection never observes a half-loaded set.
type Registry struct {
	current atomic.Value // *Set
	version atomic.Uint64
	logger  *zap.Logger
}

// NewRegistry creates a registry pre-loaded with the built-in patterns.
func NewRegistry(logger *zap.Logger) (*Registry, error) {
	r := &Registry{logger: logger}
	if err := r.Load(BuiltinPatterns()); err != nil {
		return nil, err
	}
	return r, nil
}

// Load validates and atomically installs a full pattern set. The whole
// batch is rejected on the first invalid pattern and the previous set
// stays active.
func (r *Registry) Load(patterns []Pattern) error {
	compiled := make([]Pattern, 0, len(patterns))
	byID := make(map[string]*Pattern, len(patterns))

	for _, p := range patterns {
		if p.ID == "" {
			return &PatternError{PatternID: p.ID, Reason: "missing id"}
		}
		if _, dup := byID[p.ID]; dup {
			return &PatternError{PatternID: p.ID, Reason: "duplicate id"}
		}
		if !p.RiskLevel.Valid() {
			return &PatternError{PatternID: p.ID, Reason: fmt.Sprintf("unknown risk level %q", p.RiskLevel)}
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return &PatternError{PatternID: p.ID, Reason: "regex does not compile", Err: err}
		}
		if p.BaseConfidence == 0 {
			p.BaseConfidence = 0.7
		}
		p.compiled = re
		compiled = append(compiled, p)
		byID[p.ID] = &compiled[len(compiled)-1]
	}

	// Stable priority order: higher priority first, longer (more specific)
	// regex breaking ties, then id so the order never depends on input order.
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		if len(compiled[i].Regex) != len(compiled[j].Regex) {
			return len(compiled[i].Regex) > len(compiled[j].Regex)
		}
		return compiled[i].ID < compiled[j].ID
	})

	// Rebuild the index after sorting moved entries around.
	byID = make(map[string]*Pattern, len(compiled))
	for i := range compiled {
		byID[compiled[i].ID] = &compiled[i]
	}

	set := &Set{
		patterns: compiled,
		byID:     byID,
		version:  r.version.Add(1),
	}
	r.current.Store(set)

	r.logger.Info("Pattern set loaded",
		zap.Uint64("version", set.version),
		zap.Int("patterns", len(compiled)),
		zap.Int("enabled", countEnabled(compiled)),
	)
	return nil
}

// Snapshot returns the currently active pattern set.
func (r *Registry) Snapshot() *Set {
	return r.current.Load().(*Set)
}

// SetEnabled toggles a single pattern and installs the updated set.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	set := r.Snapshot()
	if _, ok := set.byID[id]; !ok {
		return &PatternError{PatternID: id, Reason: "unknown pattern"}
	}
	next := set.All()
	for i := range next {
		if next[i].ID == id {
			next[i].Enabled = enabled
		}
	}
	return r.Load(next)
}

// Upsert adds or replaces a custom pattern and installs the updated set.
func (r *Registry) Upsert(p Pattern) error {
	p.Custom = true
	next := r.Snapshot().All()
	replaced := false
	for i := range next {
		if next[i].ID == p.ID {
			next[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, p)
	}
	return r.Load(next)
}

// Remove deletes a custom pattern. Built-in patterns can only be disabled.
func (r *Registry) Remove(id string) error {
	set := r.Snapshot()
	existing, ok := set.byID[id]
	if !ok {
		return &PatternError{PatternID: id, Reason: "unknown pattern"}
	}
	if !existing.Custom {
		return &PatternError{PatternID: id, Reason: "built-in patterns cannot be removed"}
	}
	next := make([]Pattern, 0, len(set.patterns)-1)
	for _, p := range set.patterns {
		if p.ID != id {
			next = append(next, p)
		}
	}
	return r.Load(next)
}

func countEnabled(patterns []Pattern) int {
	n := 0
	for _, p := range patterns {
		if p.Enabled {
			n++
		}
	}
	return n
}
