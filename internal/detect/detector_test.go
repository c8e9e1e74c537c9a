package detect

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/pattern"
)

func testPatterns(t *testing.T) []pattern.Pattern {
	t.Helper()
	r, err := pattern.NewRegistry(zap.NewNop())
	require.NoError(t, err)
	return r.Snapshot().Active(nil)
}

func newTestDetector(cfg Config) *Detector {
	return New(cfg, zap.NewNop())
}

func TestDetectCommonIdentifiers(t *testing.T) {
	d := newTestDetector(Config{})
	patterns := testPatterns(t)

	tests := []struct {
		name      string
		text      string
		patternID string
	}{
		{"ssn with label", "Patient SSN: 123-45-6789 on file", "ssn"},
		{"email", "Reach me at jane.doe@example.com for details", "email"},
		{"credit card", "Card number 4111 1111 1111 1111 was charged", "credit_card"},
		{"phone", "Call the office at (555) 867-5309 today", "phone"},
		{"ip address", "Login from 192.168.10.45 at midnight", "ip_address"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			detections, err := d.Detect(tc.text, patterns)
			require.NoError(t, err)
			require.NotEmpty(t, detections, "no detections in %q", tc.text)

			found := false
			for _, det := range detections {
				if det.PatternID == tc.patternID {
					found = true
					assert.Equal(t, tc.text[det.Start:det.End], det.Matched)
					assert.GreaterOrEqual(t, det.Confidence, 0.5)
				}
			}
			assert.True(t, found, "pattern %s not detected", tc.patternID)
		})
	}
}

func TestDetectOverlapHigherPriorityWins(t *testing.T) {
	d := newTestDetector(Config{})
	// A bare 9-digit run is both a routing number candidate and part of
	// larger identifiers. With an SSN present in dashed form only the ssn
	// pattern should claim the span.
	text := "SSN 123-45-6789 belongs to the claimant"
	detections, err := d.Detect(text, testPatterns(t))
	require.NoError(t, err)

	spans := map[string][]int{}
	for _, det := range detections {
		for other, s := range spans {
			if det.Start < s[1] && det.End > s[0] {
				t.Fatalf("Overlapping detections: %s and %s", det.PatternID, other)
			}
		}
		spans[det.PatternID] = []int{det.Start, det.End}
	}
	_, ok := spans["ssn"]
	assert.True(t, ok, "ssn should win its span")
}

func TestDetectUnicodeCaseFolding(t *testing.T) {
	d := newTestDetector(Config{})
	// U+212A (KELVIN SIGN) is three bytes but lowercases to a one-byte
	// ASCII k, so byte offsets into a lowercased copy of the text would
	// drift out of range. The keyword window must stay anchored to the
	// original text.
	text := strings.Repeat("K", 40) + " SSN: 123-45-6789"
	detections, err := d.Detect(text, testPatterns(t))
	require.NoError(t, err)

	found := false
	for _, det := range detections {
		if det.PatternID == "ssn" {
			found = true
			assert.Equal(t, text[det.Start:det.End], det.Matched)
			assert.GreaterOrEqual(t, det.Confidence, 0.5, "label keyword should still boost")
		}
	}
	assert.True(t, found, "ssn not detected after multibyte prefix")
}

func TestDetectSkipsExistingTokens(t *testing.T) {
	d := newTestDetector(Config{})
	text := "Forward [PII_SSN_a1b2c3d4e5f60718] to billing, phone (555) 867-5309"
	detections, err := d.Detect(text, testPatterns(t))
	require.NoError(t, err)

	for _, det := range detections {
		assert.NotContains(t, det.Matched, "[PII_", "matched inside a token span")
	}
}

func TestDetectMinMatchLength(t *testing.T) {
	d := newTestDetector(Config{MinMatchLength: 10})
	detections, err := d.Detect("code 123-45-6789 end", testPatterns(t))
	require.NoError(t, err)
	for _, det := range detections {
		assert.GreaterOrEqual(t, det.End-det.Start, 10)
	}
}

func TestDetectCapReturnsError(t *testing.T) {
	d := newTestDetector(Config{MaxDetections: 3})
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "contact user%d@example.com please. ", i)
	}
	_, err := d.Detect(sb.String(), testPatterns(t))
	require.Error(t, err)

	limitErr, ok := err.(*ErrDetectionLimit)
	require.True(t, ok, "expected *ErrDetectionLimit, got %T", err)
	assert.Equal(t, 3, limitErr.Limit)
}

func TestKeywordBoostRaisesConfidence(t *testing.T) {
	d := newTestDetector(Config{})
	patterns := testPatterns(t)

	withKeyword, err := d.Detect("patient MRN: 12345678", patterns)
	require.NoError(t, err)
	bare, err := d.Detect("value field 12345678 noted", patterns)
	require.NoError(t, err)

	confFor := func(dets []Detection, id string) (float64, bool) {
		for _, det := range dets {
			if det.PatternID == id {
				return det.Confidence, true
			}
		}
		return 0, false
	}

	boosted, ok := confFor(withKeyword, "mrn")
	require.True(t, ok, "mrn not detected near its keyword")
	if plain, ok := confFor(bare, "mrn"); ok {
		assert.Greater(t, boosted, plain)
	}
}

func TestCodeBlockPenalty(t *testing.T) {
	d := newTestDetector(Config{})
	patterns := testPatterns(t)

	inCode := "```\nuser = \"jane.doe@example.com\"\n```"
	plain := "email jane.doe@example.com please"

	codeDets, err := d.Detect(inCode, patterns)
	require.NoError(t, err)
	plainDets, err := d.Detect(plain, patterns)
	require.NoError(t, err)

	var codeConf, plainConf float64
	for _, det := range codeDets {
		if det.PatternID == "email" {
			codeConf = det.Confidence
		}
	}
	for _, det := range plainDets {
		if det.PatternID == "email" {
			plainConf = det.Confidence
		}
	}
	require.NotZero(t, plainConf, "email not detected in plain text")
	if codeConf > 0 {
		assert.Less(t, codeConf, plainConf)
	}
}

func TestValidSSN(t *testing.T) {
	tests := []struct {
		ssn   string
		valid bool
	}{
		{"123-45-6789", true},
		{"000-45-6789", false},
		{"666-45-6789", false},
		{"923-45-6789", false},
		{"123-00-6789", false},
		{"123-45-0000", false},
		{"12-34-5678", false},
	}
	for _, tc := range tests {
		t.Run(tc.ssn, func(t *testing.T) {
			assert.Equal(t, tc.valid, validSSN(tc.ssn))
		})
	}
}

func TestLuhnValid(t *testing.T) {
	tests := []struct {
		card  string
		valid bool
	}{
		{"4111 1111 1111 1111", true},
		{"5500-0000-0000-0004", true},
		{"4111 1111 1111 1112", false},
		{"1234", false},
	}
	for _, tc := range tests {
		t.Run(tc.card, func(t *testing.T) {
			assert.Equal(t, tc.valid, luhnValid(tc.card))
		})
	}
}

func TestSummarizeGroupsWithoutValues(t *testing.T) {
	d := newTestDetector(Config{})
	text := "emails a@example.com b@example.com and SSN 123-45-6789"
	detections, err := d.Detect(text, testPatterns(t))
	require.NoError(t, err)

	findings := Summarize(detections)
	total := 0
	for _, f := range findings {
		total += f.Count
		assert.NotEmpty(t, f.PatternID)
	}
	assert.Equal(t, len(detections), total)
}

func TestDetectionsSortedByStart(t *testing.T) {
	d := newTestDetector(Config{})
	text := "SSN 123-45-6789, email jane@example.com, card 4111 1111 1111 1111"
	detections, err := d.Detect(text, testPatterns(t))
	require.NoError(t, err)
	for i := 1; i < len(detections); i++ {
		assert.LessOrEqual(t, detections[i-1].Start, detections[i].Start)
	}
}
