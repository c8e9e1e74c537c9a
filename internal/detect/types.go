package detect

import "github.com/veilhq/veil/internal/pattern"

// Detection is a single accepted match of a pattern against the input text.
// Detections live only for the duration of one scramble call; the matched
// text is never persisted outside the mapping store entry it produces.
type Detection struct {
	PatternID      string            `json:"pattern_id"`
	Category       pattern.Category  `json:"category"`
	Start          int               `json:"start"`
	End            int               `json:"end"`
	Matched        string            `json:"-"` // never serialized
	Confidence     float64           `json:"confidence"`
	RiskLevel      pattern.RiskLevel `json:"risk_level"`
	ComplianceTags []string          `json:"compliance_tags,omitempty"`
}

// Finding is the externally visible summary of detections, safe to log and
// broadcast: it carries counts per pattern, never matched text.
type Finding struct {
	PatternID string            `json:"pattern_id"`
	Category  pattern.Category  `json:"category"`
	RiskLevel pattern.RiskLevel `json:"risk_level"`
	Count     int               `json:"count"`
}

// Summarize folds detections into loggable findings.
func Summarize(detections []Detection) []Finding {
	index := make(map[string]int)
	var findings []Finding
	for _, d := range detections {
		if i, ok := index[d.PatternID]; ok {
			findings[i].Count++
			continue
		}
		index[d.PatternID] = len(findings)
		findings = append(findings, Finding{
			PatternID: d.PatternID,
			Category:  d.Category,
			RiskLevel: d.RiskLevel,
			Count:     1,
		})
	}
	return findings
}
