// Package stitch rehydrates externally-processed text: every placeholder
// token that still resolves in the mapping store is replaced with its
// original value, and anything unresolvable is reported for the quality
// gate to act on.
package stitch

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/vault"
)

// tokenWire is the ASCII wire form tokens take inside processed text.
var tokenWire = regexp.MustCompile(`\[PII_[A-Z_]+_[a-f0-9]{8,}\]`)

// Restorer substitutes original values back into processed text.
type Restorer struct {
	store  vault.Store
	logger *zap.Logger
}

// New creates a restorer backed by the given mapping store.
func New(store vault.Store, logger *zap.Logger) *Restorer {
	return &Restorer{store: store, logger: logger}
}

// Result holds the rehydrated text plus every token that could not be
// resolved (expired, wrong session, or fabricated upstream). A non-empty
// Unresolved list is the hard-fail signal for the delivery gate.
type Result struct {
	Text       string   `json:"text"`
	Unresolved []string `json:"unresolved_tokens"`
	Restored   int      `json:"restored"`
}

// Restore scans processed text for tokens scoped to the session and swaps
// originals back in. Unresolved tokens are left in place. Restore is
// fail-open-but-flagged: on a store failure it returns the input text with
// every token reported unresolved together with the error, and the caller
// decides whether delivery is blocked.
func (r *Restorer) Restore(ctx context.Context, processed, sessionID string) (*Result, error) {
	tokens := tokenWire.FindAllString(processed, -1)
	if len(tokens) == 0 {
		return &Result{Text: processed, Unresolved: []string{}}, nil
	}

	unique := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		unique = append(unique, tok)
	}

	values := make(map[string]string, len(unique))
	unresolved := make([]string, 0)
	for _, tok := range unique {
		value, ok, err := r.store.Get(ctx, sessionID, tok)
		if err != nil {
			// Store failure: do not guess. Everything is unresolved and the
			// original input goes back untouched.
			r.logger.Error("Mapping store read failed during restore",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return &Result{Text: processed, Unresolved: unique}, err
		}
		if !ok {
			unresolved = append(unresolved, tok)
			continue
		}
		values[tok] = value
	}

	out := tokenWire.ReplaceAllStringFunc(processed, func(tok string) string {
		if v, ok := values[tok]; ok {
			return v
		}
		return tok
	})

	r.logger.Debug("Restore pass complete",
		zap.String("session_id", sessionID),
		zap.Int("tokens", len(unique)),
		zap.Int("restored", len(values)),
		zap.Int("unresolved", len(unresolved)),
	)
	return &Result{Text: out, Unresolved: unresolved, Restored: len(values)}, nil
}

// ContainsToken reports whether text still carries any placeholder token.
func ContainsToken(text string) bool {
	return strings.Contains(text, "[PII_") && tokenWire.MatchString(text)
}
