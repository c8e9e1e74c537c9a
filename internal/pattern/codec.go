package pattern

import (
	"encoding/json"
	"fmt"
)

// Export serializes the set's patterns as a JSON array in the interchange
// format used by the admin UI (id, category, regex, risk_level,
// compliance_tags, enabled).
func Export(set *Set) ([]byte, error) {
	return json.MarshalIndent(set.All(), "", "  ")
}

// Import parses a JSON array of patterns. Imported patterns are marked
// custom; validation happens in Registry.Load.
func Import(data []byte) ([]Pattern, error) {
	var patterns []Pattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return nil, fmt.Errorf("invalid pattern document: %w", err)
	}
	for i := range patterns {
		patterns[i].Custom = true
	}
	return patterns, nil
}
