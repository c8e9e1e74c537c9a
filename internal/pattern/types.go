package pattern

import "regexp"

// Category groups patterns by the kind of data they detect.
type Category string

const (
	CategoryPersonal  Category = "personal"
	CategoryMedical   Category = "medical"
	CategoryLegal     Category = "legal"
	CategoryFinancial Category = "financial"
)

// RiskLevel represents the risk level assigned to a pattern's matches.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank returns a comparable ordering for risk levels.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the risk level is one of the known values.
func (r RiskLevel) Valid() bool {
	return r.Rank() > 0
}

// Compliance framework names used in pattern and profile tags.
const (
	TagHIPAA          = "HIPAA"
	TagGDPR           = "GDPR"
	TagPCIDSS         = "PCI-DSS"
	TagCCPA           = "CCPA"
	TagAttorneyClient = "ATTORNEY-CLIENT"
)

// Pattern is a single PII detection rule.
type Pattern struct {
	ID             string    `json:"id" mapstructure:"id"`
	Category       Category  `json:"category" mapstructure:"category"`
	Regex          string    `json:"regex" mapstructure:"regex"`
	RiskLevel      RiskLevel `json:"risk_level" mapstructure:"risk_level"`
	ComplianceTags []string  `json:"compliance_tags" mapstructure:"compliance_tags"`
	Enabled        bool      `json:"enabled" mapstructure:"enabled"`
	Custom         bool      `json:"custom,omitempty" mapstructure:"custom"`

	// BaseConfidence is the starting confidence for matches of this
	// pattern before context adjustment. Zero means the default (0.7).
	BaseConfidence float64 `json:"base_confidence,omitempty" mapstructure:"base_confidence"`

	// Priority orders patterns during detection: higher-priority patterns
	// win overlapping matches. Specific patterns (credit card) carry higher
	// priority than broad ones (generic number).
	Priority int `json:"priority,omitempty" mapstructure:"priority"`

	compiled *regexp.Regexp
}

// Compiled returns the compiled regular expression for the pattern.
// Only valid after the pattern has passed through Registry.Load.
func (p *Pattern) Compiled() *regexp.Regexp {
	return p.compiled
}

// HasTag reports whether the pattern carries the given compliance tag.
func (p *Pattern) HasTag(tag string) bool {
	for _, t := range p.ComplianceTags {
		if t == tag {
			return true
		}
	}
	return false
}
