package classify

import (
	"testing"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
)

func sampleDetections() []detect.Detection {
	return []detect.Detection{
		{PatternID: "ssn", RiskLevel: pattern.RiskHigh, ComplianceTags: []string{pattern.TagHIPAA, pattern.TagGDPR, pattern.TagCCPA}},
		{PatternID: "email", RiskLevel: pattern.RiskMedium, ComplianceTags: []string{pattern.TagGDPR, pattern.TagCCPA}},
		{PatternID: "ip_address", RiskLevel: pattern.RiskLow, ComplianceTags: []string{pattern.TagGDPR}},
	}
}

func TestFilter(t *testing.T) {
	c := New(zap.NewNop())

	t.Run("threshold drops lower risk levels", func(t *testing.T) {
		prof := &profile.Profile{Name: "test", RiskThreshold: "medium"}
		kept := c.Filter(sampleDetections(), prof)
		if len(kept) != 2 {
			t.Fatalf("Expected 2 detections, got %d", len(kept))
		}
		for _, d := range kept {
			if d.RiskLevel == pattern.RiskLow {
				t.Errorf("Low-risk detection %s survived medium threshold", d.PatternID)
			}
		}
	})

	t.Run("high threshold keeps only high", func(t *testing.T) {
		prof := &profile.Profile{Name: "test", RiskThreshold: "high"}
		kept := c.Filter(sampleDetections(), prof)
		if len(kept) != 1 || kept[0].PatternID != "ssn" {
			t.Fatalf("Expected only ssn, got %v", kept)
		}
	})

	t.Run("low threshold keeps everything", func(t *testing.T) {
		prof := &profile.Profile{Name: "test", RiskThreshold: "low"}
		kept := c.Filter(sampleDetections(), prof)
		if len(kept) != 3 {
			t.Fatalf("Expected 3 detections, got %d", len(kept))
		}
	})

	t.Run("tags narrowed to profile frameworks", func(t *testing.T) {
		prof := &profile.Profile{
			Name:           "hipaa",
			RiskThreshold:  "low",
			ComplianceTags: []string{pattern.TagHIPAA},
		}
		kept := c.Filter(sampleDetections(), prof)
		for _, d := range kept {
			for _, tag := range d.ComplianceTags {
				if tag != pattern.TagHIPAA {
					t.Errorf("Detection %s carries out-of-profile tag %s", d.PatternID, tag)
				}
			}
		}
	})

	t.Run("profile without tags keeps detection tags", func(t *testing.T) {
		prof := &profile.Profile{Name: "test", RiskThreshold: "low"}
		kept := c.Filter(sampleDetections(), prof)
		if len(kept[0].ComplianceTags) != 3 {
			t.Errorf("Tags narrowed by an untagged profile: %v", kept[0].ComplianceTags)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		prof := &profile.Profile{Name: "test", RiskThreshold: "high"}
		if kept := c.Filter(nil, prof); len(kept) != 0 {
			t.Fatalf("Expected no detections, got %d", len(kept))
		}
	})
}
