package profile

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestManager(t *testing.T) {
	logger := zap.NewNop()

	t.Run("built-ins loaded", func(t *testing.T) {
		m := NewManager(logger)
		for _, name := range []string{"hipaa", "gdpr", "pci-dss", "ccpa", "attorney-client", "strict"} {
			if _, err := m.Snapshot(name); err != nil {
				t.Errorf("Built-in profile %q missing: %v", name, err)
			}
		}
	})

	t.Run("unknown profile", func(t *testing.T) {
		m := NewManager(logger)
		if _, err := m.Snapshot("no-such"); err == nil {
			t.Fatal("Expected error for unknown profile")
		}
	})

	t.Run("snapshot is isolated from later edits", func(t *testing.T) {
		m := NewManager(logger)
		snap, err := m.Snapshot("hipaa")
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		before := snap.RiskThreshold

		edited := *snap
		edited.RiskThreshold = "high"
		if err := m.Put(&edited); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		if snap.RiskThreshold != before {
			t.Error("Edit leaked into an existing snapshot")
		}
		updated, _ := m.Snapshot("hipaa")
		if updated.RiskThreshold != "high" {
			t.Error("Edit not visible in a fresh snapshot")
		}
	})

	t.Run("put validation", func(t *testing.T) {
		m := NewManager(logger)
		if err := m.Put(&Profile{Name: "", RiskThreshold: "low"}); err == nil {
			t.Error("Empty name accepted")
		}
		if err := m.Put(&Profile{Name: "x", RiskThreshold: "extreme"}); err == nil {
			t.Error("Invalid risk threshold accepted")
		}
		if err := m.Put(&Profile{Name: "x", RiskThreshold: "low", MappingTTL: -time.Minute}); err == nil {
			t.Error("Negative TTL accepted")
		}
	})

	t.Run("delete", func(t *testing.T) {
		m := NewManager(logger)
		if err := m.Put(&Profile{Name: "temp", RiskThreshold: "low"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := m.Delete("temp"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := m.Snapshot("temp"); err == nil {
			t.Error("Deleted profile still resolvable")
		}
		if err := m.Delete("temp"); err == nil {
			t.Error("Expected error deleting a missing profile")
		}
	})
}

func TestIncludesPattern(t *testing.T) {
	t.Run("empty subset admits all", func(t *testing.T) {
		p := &Profile{Name: "open"}
		if !p.IncludesPattern("anything") {
			t.Error("Empty subset rejected a pattern")
		}
	})

	t.Run("subset filters", func(t *testing.T) {
		p := &Profile{Name: "narrow", PatternSubset: []string{"ssn", "mrn"}}
		if !p.IncludesPattern("ssn") {
			t.Error("Listed pattern rejected")
		}
		if p.IncludesPattern("email") {
			t.Error("Unlisted pattern admitted")
		}
	})
}
