// Package token converts accepted detections into placeholder tokens and
// owns the forward value→token mapping for one scramble call. Tokens are
// [PII_<LABEL>_<hex>] with a cryptographically random suffix, unique within
// a session.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/vault"
)

// SuffixBytes is the random suffix length in bytes; its hex form is twice
// this. The wire contract requires at least 8 hex characters.
const SuffixBytes = 8

// maxCollisionRetries bounds regeneration before the call surfaces a
// StoreError, per the error taxonomy.
const maxCollisionRetries = 8

// Tokenizer assigns tokens and writes mapping entries through the vault.
type Tokenizer struct {
	store  vault.Store
	logger *zap.Logger
}

// New creates a tokenizer backed by the given mapping store.
func New(store vault.Store, logger *zap.Logger) *Tokenizer {
	return &Tokenizer{store: store, logger: logger}
}

// Result is the outcome of one scramble pass.
type Result struct {
	Scrambled string
	Entries   []vault.Entry
}

// Scramble replaces every detection span with a token and durably writes the
// mappings before returning. All-or-nothing: a store failure or collision
// exhaustion returns an error and no scrambled text.
//
// Identical values of the same pattern within one call share a token, so a
// phrase repeated through a document collapses to a single placeholder.
// Separate calls generate independent tokens even for identical input.
func (t *Tokenizer) Scramble(ctx context.Context, text string, detections []detect.Detection, sessionID string, ttl time.Duration) (*Result, error) {
	if len(detections) == 0 {
		return &Result{Scrambled: text}, nil
	}

	// Descending start order keeps earlier offsets valid while substituting.
	ordered := make([]detect.Detection, len(detections))
	copy(ordered, detections)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	var (
		issued  = make(map[string]struct{})         // tokens issued in this call
		reuse   = make(map[string]string)           // (pattern, value) -> token
		entries = make([]vault.Entry, 0, len(ordered))
		out     = text
		now     = time.Now()
	)

	for _, d := range ordered {
		reuseKey := d.PatternID + "\x00" + d.Matched
		tok, ok := reuse[reuseKey]
		if !ok {
			var err error
			tok, err = t.newToken(ctx, sessionID, Label(d.PatternID), issued)
			if err != nil {
				return nil, err
			}
			issued[tok] = struct{}{}
			reuse[reuseKey] = tok
			entries = append(entries, vault.Entry{
				Token:     tok,
				Value:     d.Matched,
				SessionID: sessionID,
				CreatedAt: now,
				ExpiresAt: now.Add(ttl),
			})
		}
		out = out[:d.Start] + tok + out[d.End:]
	}

	if err := t.store.PutBatch(ctx, sessionID, entries, ttl); err != nil {
		// Fail closed: no scrambled text leaves without its mappings written.
		return nil, err
	}

	t.logger.Debug("Detections tokenized",
		zap.String("session_id", sessionID),
		zap.Int("detections", len(ordered)),
		zap.Int("tokens", len(entries)),
	)
	return &Result{Scrambled: out, Entries: entries}, nil
}

// newToken draws random suffixes until the token is unused both in this call
// and in the session's stored entries.
func (t *Tokenizer) newToken(ctx context.Context, sessionID, label string, issued map[string]struct{}) (string, error) {
	for attempt := 0; attempt < maxCollisionRetries; attempt++ {
		buf := make([]byte, SuffixBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", &vault.StoreError{Op: "token", Err: err}
		}
		tok := fmt.Sprintf("[PII_%s_%s]", label, hex.EncodeToString(buf))
		if _, dup := issued[tok]; dup {
			continue
		}
		exists, err := t.store.HasToken(ctx, sessionID, tok)
		if err != nil {
			return "", err
		}
		if exists {
			t.logger.Warn("Token collision, regenerating",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return tok, nil
	}
	return "", &vault.StoreError{Op: "token", Err: fmt.Errorf("collision retries exhausted")}
}

// Label maps a pattern id to the token's category label. The wire format
// only admits [A-Z_], so anything else collapses to an underscore:
// "credit_card" becomes CREDIT_CARD, "icd10_code" becomes ICD_CODE.
func Label(patternID string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToUpper(patternID) {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	label := strings.TrimSuffix(b.String(), "_")
	if label == "" {
		label = "CUSTOM"
	}
	return label
}
