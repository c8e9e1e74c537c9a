package token

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/vault"
)

var wireForm = regexp.MustCompile(`\[PII_[A-Z_]+_[a-f0-9]{8,}\]`)

func newTestTokenizer(t *testing.T) (*Tokenizer, vault.Store) {
	t.Helper()
	store, err := vault.NewMemoryStore(vault.Config{EncryptionKey: "test-secret"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return New(store, zap.NewNop()), store
}

func TestScramble(t *testing.T) {
	ctx := context.Background()

	t.Run("substitutes every detection", func(t *testing.T) {
		tok, _ := newTestTokenizer(t)
		text := "SSN 123-45-6789 and email jane@example.com"
		detections := []detect.Detection{
			{PatternID: "ssn", Start: 4, End: 15, Matched: "123-45-6789"},
			{PatternID: "email", Start: 26, End: 42, Matched: "jane@example.com"},
		}

		res, err := tok.Scramble(ctx, text, detections, "s1", time.Minute)
		if err != nil {
			t.Fatalf("Scramble failed: %v", err)
		}
		if strings.Contains(res.Scrambled, "123-45-6789") {
			t.Error("SSN value leaked into scrambled text")
		}
		if strings.Contains(res.Scrambled, "jane@example.com") {
			t.Error("Email value leaked into scrambled text")
		}
		tokens := wireForm.FindAllString(res.Scrambled, -1)
		if len(tokens) != 2 {
			t.Fatalf("Expected 2 tokens, got %d in %q", len(tokens), res.Scrambled)
		}
		if !strings.Contains(tokens[0], "_SSN_") {
			t.Errorf("First token missing SSN label: %s", tokens[0])
		}
		if !strings.Contains(tokens[1], "_EMAIL_") {
			t.Errorf("Second token missing EMAIL label: %s", tokens[1])
		}
		if len(res.Entries) != 2 {
			t.Fatalf("Expected 2 mapping entries, got %d", len(res.Entries))
		}
	})

	t.Run("mappings written before return", func(t *testing.T) {
		tok, store := newTestTokenizer(t)
		detections := []detect.Detection{{PatternID: "ssn", Start: 0, End: 11, Matched: "123-45-6789"}}

		res, err := tok.Scramble(ctx, "123-45-6789", detections, "s1", time.Minute)
		if err != nil {
			t.Fatalf("Scramble failed: %v", err)
		}
		value, ok, err := store.Get(ctx, "s1", res.Entries[0].Token)
		if err != nil || !ok {
			t.Fatalf("Mapping not readable after scramble: ok=%v err=%v", ok, err)
		}
		if value != "123-45-6789" {
			t.Errorf("Stored value mismatch: %s", value)
		}
	})

	t.Run("identical values share a token within one call", func(t *testing.T) {
		tok, _ := newTestTokenizer(t)
		text := "call 555-867-5309 or 555-867-5309"
		detections := []detect.Detection{
			{PatternID: "phone", Start: 5, End: 17, Matched: "555-867-5309"},
			{PatternID: "phone", Start: 21, End: 33, Matched: "555-867-5309"},
		}

		res, err := tok.Scramble(ctx, text, detections, "s1", time.Minute)
		if err != nil {
			t.Fatalf("Scramble failed: %v", err)
		}
		tokens := wireForm.FindAllString(res.Scrambled, -1)
		if len(tokens) != 2 {
			t.Fatalf("Expected 2 token occurrences, got %d", len(tokens))
		}
		if tokens[0] != tokens[1] {
			t.Errorf("Repeated value got distinct tokens: %s vs %s", tokens[0], tokens[1])
		}
		if len(res.Entries) != 1 {
			t.Errorf("Expected 1 mapping entry for the shared token, got %d", len(res.Entries))
		}
	})

	t.Run("separate calls issue independent tokens", func(t *testing.T) {
		tok, _ := newTestTokenizer(t)
		detections := []detect.Detection{{PatternID: "ssn", Start: 0, End: 11, Matched: "123-45-6789"}}

		first, err := tok.Scramble(ctx, "123-45-6789", detections, "s1", time.Minute)
		if err != nil {
			t.Fatalf("First scramble failed: %v", err)
		}
		second, err := tok.Scramble(ctx, "123-45-6789", detections, "s2", time.Minute)
		if err != nil {
			t.Fatalf("Second scramble failed: %v", err)
		}
		if first.Entries[0].Token == second.Entries[0].Token {
			t.Error("Distinct calls reused a token for the same value")
		}
	})

	t.Run("no detections passes text through", func(t *testing.T) {
		tok, store := newTestTokenizer(t)
		res, err := tok.Scramble(ctx, "nothing sensitive here", nil, "s1", time.Minute)
		if err != nil {
			t.Fatalf("Scramble failed: %v", err)
		}
		if res.Scrambled != "nothing sensitive here" {
			t.Errorf("Text altered without detections: %q", res.Scrambled)
		}
		if n, _ := store.DeleteSession(ctx, "s1"); n != 0 {
			t.Errorf("Entries written without detections: %d", n)
		}
	})

	t.Run("token uniqueness across many detections", func(t *testing.T) {
		tok, _ := newTestTokenizer(t)
		var sb strings.Builder
		var detections []detect.Detection
		for i := 0; i < 200; i++ {
			start := sb.Len()
			value := strings.Repeat("x", 5) + string(rune('a'+i%26)) + "=" + strings.Repeat("9", i%7+4)
			sb.WriteString(value)
			sb.WriteString(" ")
			detections = append(detections, detect.Detection{
				PatternID: "api_key",
				Start:     start,
				End:       start + len(value),
				Matched:   value,
			})
		}

		res, err := tok.Scramble(ctx, sb.String(), detections, "s1", time.Minute)
		if err != nil {
			t.Fatalf("Scramble failed: %v", err)
		}
		seen := make(map[string]struct{})
		for _, e := range res.Entries {
			if _, dup := seen[e.Token]; dup {
				t.Fatalf("Duplicate token issued: %s", e.Token)
			}
			seen[e.Token] = struct{}{}
		}
	})
}

func TestLabel(t *testing.T) {
	tests := []struct {
		patternID string
		want      string
	}{
		{"ssn", "SSN"},
		{"credit_card", "CREDIT_CARD"},
		{"icd10_code", "ICD_CODE"},
		{"mrn", "MRN"},
		{"9lives", "LIVES"},
		{"", "CUSTOM"},
		{"1234", "CUSTOM"},
	}
	for _, tc := range tests {
		t.Run(tc.patternID, func(t *testing.T) {
			got := Label(tc.patternID)
			if got != tc.want {
				t.Errorf("Label(%q) = %q, want %q", tc.patternID, got, tc.want)
			}
			if got != "" && !regexp.MustCompile(`^[A-Z_]+$`).MatchString(got) {
				t.Errorf("Label %q violates the wire alphabet", got)
			}
		})
	}
}
