package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/pattern"
)

// ErrDetectionLimit fails the whole scramble call when input produces more
// detections than the configured cap. Failing beats silent truncation, which
// would forward unscrubbed values past the boundary.
type ErrDetectionLimit struct {
	Limit int
}

func (e *ErrDetectionLimit) Error() string {
	return fmt.Sprintf("detection limit exceeded (cap %d)", e.Limit)
}

// Config tunes the detector. Zero values fall back to defaults.
type Config struct {
	MinMatchLength   int                 `yaml:"min_match_length" mapstructure:"min_match_length"`
	MaxDetections    int                 `yaml:"max_detections" mapstructure:"max_detections"`
	MinConfidence    float64             `yaml:"min_confidence" mapstructure:"min_confidence"`
	ContextWindow    int                 `yaml:"context_window" mapstructure:"context_window"`
	ContextKeywords  map[string][]string `yaml:"context_keywords" mapstructure:"context_keywords"`
	KeywordBoost     float64             `yaml:"keyword_boost" mapstructure:"keyword_boost"`
	CodeBlockPenalty float64             `yaml:"code_block_penalty" mapstructure:"code_block_penalty"`
}

func (c Config) withDefaults() Config {
	if c.MinMatchLength == 0 {
		c.MinMatchLength = 4
	}
	if c.MaxDetections == 0 {
		c.MaxDetections = 10000
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.5
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 32
	}
	if c.KeywordBoost == 0 {
		c.KeywordBoost = 0.2
	}
	if c.CodeBlockPenalty == 0 {
		c.CodeBlockPenalty = 0.4
	}
	if c.ContextKeywords == nil {
		c.ContextKeywords = defaultContextKeywords()
	}
	return c
}

// defaultContextKeywords maps pattern ids to labelling keywords that, found
// near a match, raise its confidence. Tunable via configuration.
func defaultContextKeywords() map[string][]string {
	return map[string][]string{
		"ssn":               {"ssn", "social security", "soc sec"},
		"credit_card":       {"card", "visa", "mastercard", "amex", "cc#", "pan"},
		"mrn":               {"mrn", "medical record", "record number", "patient"},
		"npi":               {"npi", "provider"},
		"medicare_id":       {"medicare", "mbi"},
		"icd10_code":        {"diagnosis", "icd"},
		"phone":             {"phone", "tel", "mobile", "cell", "fax", "contact"},
		"date_of_birth":     {"dob", "birth", "born"},
		"bank_account":      {"account", "acct", "checking", "savings"},
		"routing_number":    {"routing", "aba"},
		"iban":              {"iban"},
		"tax_id":            {"ein", "tax id", "tin"},
		"passport":          {"passport"},
		"drivers_license":   {"license", "licence", "dl#"},
		"case_number":       {"case", "docket", "matter"},
		"settlement_amount": {"settlement", "damages", "award", "judgment"},
		"street_address":    {"address", "residence", "residing"},
	}
}

var codeFence = regexp.MustCompile("(?s)```.*?```")

// Detector scans text against an immutable pattern snapshot.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a detector.
func New(cfg Config, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg.withDefaults(), logger: logger}
}

// Detect finds all accepted matches of the given patterns in text. Patterns
// must arrive in registry priority order: when two spans overlap, the match
// from the earlier (higher-priority) pattern wins and the other is dropped
// entirely, so overlapping text never yields two tokens.
func (d *Detector) Detect(text string, patterns []pattern.Pattern) ([]Detection, error) {
	var (
		accepted  []Detection
		taken     []span
		codeSpans = findSpans(codeFence, text)
		// Spans already holding a token are off limits: re-detecting
		// inside a token would corrupt the restore round trip.
		tokenSpans = findSpans(tokenPattern, text)
	)

	for _, p := range patterns {
		indices := p.Compiled().FindAllStringIndex(text, -1)
		for _, idx := range indices {
			start, end := idx[0], idx[1]
			if end <= start {
				continue // zero-length matches are meaningless here
			}
			if end-start < d.cfg.MinMatchLength {
				continue
			}
			if overlapsAny(start, end, tokenSpans) {
				continue
			}
			if overlapsAny(start, end, taken) {
				continue
			}

			conf := d.score(text, text[start:end], start, end, &p, codeSpans)
			if conf < d.cfg.MinConfidence {
				continue
			}

			accepted = append(accepted, Detection{
				PatternID:      p.ID,
				Category:       p.Category,
				Start:          start,
				End:            end,
				Matched:        text[start:end],
				Confidence:     conf,
				RiskLevel:      p.RiskLevel,
				ComplianceTags: append([]string(nil), p.ComplianceTags...),
			})
			taken = append(taken, span{start, end})

			if len(accepted) > d.cfg.MaxDetections {
				d.logger.Warn("Detection cap exceeded",
					zap.Int("cap", d.cfg.MaxDetections),
					zap.String("pattern", p.ID),
				)
				return nil, &ErrDetectionLimit{Limit: d.cfg.MaxDetections}
			}
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted, nil
}

// score computes the confidence for one match: the pattern's base confidence
// adjusted by labelling keywords in the surrounding window, code-block
// context, and checksum validation for patterns that support it.
func (d *Detector) score(text, matched string, start, end int, p *pattern.Pattern, codeSpans []span) float64 {
	conf := p.BaseConfidence

	if keywords, ok := d.cfg.ContextKeywords[p.ID]; ok {
		winStart := start - d.cfg.ContextWindow
		if winStart < 0 {
			winStart = 0
		}
		winEnd := end + d.cfg.ContextWindow
		if winEnd > len(text) {
			winEnd = len(text)
		}
		// Lowercasing can change byte lengths for some Unicode code
		// points, so the window is sliced from the original text and
		// folded afterwards to keep the offsets valid.
		window := strings.ToLower(text[winStart:winEnd])
		for _, kw := range keywords {
			if strings.Contains(window, kw) {
				conf += d.cfg.KeywordBoost
				break
			}
		}
	}

	if overlapsAny(start, end, codeSpans) {
		conf -= d.cfg.CodeBlockPenalty
	}

	switch p.ID {
	case "ssn":
		if !validSSN(matched) {
			conf *= 0.3
		}
	case "credit_card":
		if !luhnValid(matched) {
			conf *= 0.2
		} else {
			conf += 0.1
		}
	case "ip_address":
		// The regex already range-checks octets; formatted quads with all
		// four parts present get no extra adjustment.
	}

	if conf > 1.0 {
		conf = 1.0
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

type span struct{ start, end int }

func overlapsAny(start, end int, spans []span) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func findSpans(re *regexp.Regexp, text string) []span {
	var out []span
	for _, idx := range re.FindAllStringIndex(text, -1) {
		out = append(out, span{idx[0], idx[1]})
	}
	return out
}

// tokenPattern recognizes the wire form of placeholder tokens so a second
// detection pass never matches inside an already-scrambled span.
var tokenPattern = regexp.MustCompile(`\[PII_[A-Z_]+_[a-f0-9]{8,}\]`)

// TokenSpans exposes existing token locations, used by tests and the
// tokenizer's re-detection guard.
func TokenSpans(text string) [][]int {
	return tokenPattern.FindAllStringIndex(text, -1)
}

// validSSN applies the structural rules for US social security numbers:
// no 000/666/9xx area, no 00 group, no 0000 serial.
func validSSN(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) != 9 {
		return false
	}
	area := digits[:3]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if digits[3:5] == "00" || digits[5:] == "0000" {
		return false
	}
	return true
}

// luhnValid runs the Luhn checksum over the digits of a candidate card number.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return sum%10 == 0
}
