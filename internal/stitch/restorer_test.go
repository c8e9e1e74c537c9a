package stitch

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/vault"
)

func newTestRestorer(t *testing.T) (*Restorer, vault.Store) {
	t.Helper()
	store, err := vault.NewMemoryStore(vault.Config{EncryptionKey: "test-secret"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return New(store, zap.NewNop()), store
}

func seedMapping(t *testing.T, store vault.Store, sessionID, token, value string) {
	t.Helper()
	err := store.PutBatch(context.Background(), sessionID, []vault.Entry{{Token: token, Value: value}}, time.Minute)
	if err != nil {
		t.Fatalf("Failed to seed mapping: %v", err)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("substitutes known tokens", func(t *testing.T) {
		r, store := newTestRestorer(t)
		seedMapping(t, store, "s1", "[PII_SSN_aabbccdd00112233]", "123-45-6789")
		seedMapping(t, store, "s1", "[PII_EMAIL_bbccddee11223344]", "jane@example.com")

		processed := "Claimant [PII_SSN_aabbccdd00112233] reachable at [PII_EMAIL_bbccddee11223344]."
		res, err := r.Restore(ctx, processed, "s1")
		if err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		want := "Claimant 123-45-6789 reachable at jane@example.com."
		if res.Text != want {
			t.Errorf("Restored text mismatch:\n got %q\nwant %q", res.Text, want)
		}
		if res.Restored != 2 {
			t.Errorf("Restored count = %d, want 2", res.Restored)
		}
		if len(res.Unresolved) != 0 {
			t.Errorf("Unexpected unresolved tokens: %v", res.Unresolved)
		}
	})

	t.Run("repeated token restores every occurrence", func(t *testing.T) {
		r, store := newTestRestorer(t)
		seedMapping(t, store, "s1", "[PII_PHONE_ccddeeff22334455]", "555-867-5309")

		processed := "[PII_PHONE_ccddeeff22334455] or [PII_PHONE_ccddeeff22334455]"
		res, err := r.Restore(ctx, processed, "s1")
		if err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if res.Text != "555-867-5309 or 555-867-5309" {
			t.Errorf("Restored text mismatch: %q", res.Text)
		}
		if res.Restored != 1 {
			t.Errorf("Restored counts unique tokens, got %d", res.Restored)
		}
	})

	t.Run("unknown tokens reported and left in place", func(t *testing.T) {
		r, store := newTestRestorer(t)
		seedMapping(t, store, "s1", "[PII_SSN_aabbccdd00112233]", "123-45-6789")

		processed := "[PII_SSN_aabbccdd00112233] and [PII_MRN_ffeeddcc99887766]"
		res, err := r.Restore(ctx, processed, "s1")
		if err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if res.Text != "123-45-6789 and [PII_MRN_ffeeddcc99887766]" {
			t.Errorf("Restored text mismatch: %q", res.Text)
		}
		if len(res.Unresolved) != 1 || res.Unresolved[0] != "[PII_MRN_ffeeddcc99887766]" {
			t.Errorf("Unresolved mismatch: %v", res.Unresolved)
		}
	})

	t.Run("wrong session resolves nothing", func(t *testing.T) {
		r, store := newTestRestorer(t)
		seedMapping(t, store, "s1", "[PII_SSN_aabbccdd00112233]", "123-45-6789")

		res, err := r.Restore(ctx, "[PII_SSN_aabbccdd00112233]", "s2")
		if err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if res.Text != "[PII_SSN_aabbccdd00112233]" {
			t.Errorf("Token resolved across sessions: %q", res.Text)
		}
		if len(res.Unresolved) != 1 {
			t.Errorf("Expected 1 unresolved token, got %d", len(res.Unresolved))
		}
	})

	t.Run("no tokens passes text through", func(t *testing.T) {
		r, _ := newTestRestorer(t)
		res, err := r.Restore(ctx, "plain text without placeholders", "s1")
		if err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if res.Text != "plain text without placeholders" {
			t.Errorf("Text altered: %q", res.Text)
		}
		if res.Unresolved == nil {
			t.Error("Unresolved should be an empty slice, not nil")
		}
	})

	t.Run("store failure returns input with everything unresolved", func(t *testing.T) {
		r := New(failingStore{}, zap.NewNop())
		processed := "[PII_SSN_aabbccdd00112233] stays put"
		res, err := r.Restore(context.Background(), processed, "s1")
		if err == nil {
			t.Fatal("Expected store error to surface")
		}
		if res.Text != processed {
			t.Errorf("Text altered on store failure: %q", res.Text)
		}
		if len(res.Unresolved) != 1 {
			t.Errorf("Expected all tokens unresolved, got %v", res.Unresolved)
		}
	})
}

func TestContainsToken(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"[PII_SSN_aabbccdd00112233]", true},
		{"prefix [PII_CREDIT_CARD_00112233aabbccdd] suffix", true},
		{"[PII_SSN_SHORT]", false},
		{"[pii_ssn_aabbccdd00112233]", false},
		{"no tokens here", false},
	}
	for _, tc := range tests {
		if got := ContainsToken(tc.text); got != tc.want {
			t.Errorf("ContainsToken(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

type failingStore struct{}

func (failingStore) PutBatch(ctx context.Context, sessionID string, entries []vault.Entry, ttl time.Duration) error {
	return &vault.StoreError{Op: "put", Err: errors.New("backend down")}
}

func (failingStore) Get(ctx context.Context, sessionID, token string) (string, bool, error) {
	return "", false, &vault.StoreError{Op: "get", Err: errors.New("backend down")}
}

func (failingStore) HasToken(ctx context.Context, sessionID, token string) (bool, error) {
	return false, &vault.StoreError{Op: "exists", Err: errors.New("backend down")}
}

func (failingStore) Delete(ctx context.Context, sessionID, token string) error {
	return &vault.StoreError{Op: "delete", Err: errors.New("backend down")}
}

func (failingStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	return 0, &vault.StoreError{Op: "delete_session", Err: errors.New("backend down")}
}

func (failingStore) PurgeExpired(ctx context.Context) (int, error) {
	return 0, &vault.StoreError{Op: "purge", Err: errors.New("backend down")}
}

func (failingStore) Close() error { return nil }
