package pattern

// BuiltinPatterns returns the default detection rule set. Custom rules
// loaded from the catalog are layered on top via Registry.Load.
func BuiltinPatterns() []Pattern {
	return []Pattern{
		{
			ID:             "ssn",
			Category:       CategoryPersonal,
			Regex:          `\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagHIPAA, TagGDPR, TagCCPA},
			Enabled:        true,
			BaseConfidence: 0.75,
			Priority:       80,
		},
		{
			ID:             "credit_card",
			Category:       CategoryFinancial,
			Regex:          `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b|\b(?:\d{4}[-\s]){3}\d{4}\b`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagPCIDSS, TagGDPR},
			Enabled:        true,
			BaseConfidence: 0.8,
			Priority:       90,
		},
		{
			ID:             "iban",
			Category:       CategoryFinancial,
			Regex:          `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagGDPR, TagPCIDSS},
			Enabled:        true,
			BaseConfidence: 0.8,
			Priority:       85,
		},
		{
			ID:             "bank_account",
			Category:       CategoryFinancial,
			Regex:          `\b\d{9,18}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagPCIDSS, TagGDPR},
			Enabled:        true,
			BaseConfidence: 0.4,
			Priority:       20,
		},
		{
			ID:             "routing_number",
			Category:       CategoryFinancial,
			Regex:          `\b\d{9}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagPCIDSS},
			Enabled:        true,
			BaseConfidence: 0.35,
			Priority:       15,
		},
		{
			ID:             "email",
			Category:       CategoryPersonal,
			Regex:          `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagGDPR, TagCCPA},
			Enabled:        true,
			BaseConfidence: 0.9,
			Priority:       70,
		},
		{
			ID:             "phone",
			Category:       CategoryPersonal,
			Regex:          `\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagGDPR, TagCCPA, TagHIPAA},
			Enabled:        true,
			BaseConfidence: 0.6,
			Priority:       50,
		},
		{
			ID:             "ip_address",
			Category:       CategoryPersonal,
			Regex:          `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`,
			RiskLevel:      RiskLow,
			ComplianceTags: []string{TagGDPR},
			Enabled:        true,
			BaseConfidence: 0.8,
			Priority:       60,
		},
		{
			ID:             "date_of_birth",
			Category:       CategoryPersonal,
			Regex:          `\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12][0-9]|3[01])[/-](?:19|20)\d{2}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagHIPAA, TagGDPR, TagCCPA},
			Enabled:        true,
			BaseConfidence: 0.45,
			Priority:       40,
		},
		{
			ID:             "passport",
			Category:       CategoryPersonal,
			Regex:          `\b[A-Z]{1,2}[0-9]{6,9}\b`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagGDPR, TagCCPA},
			Enabled:        true,
			BaseConfidence: 0.4,
			Priority:       45,
		},
		{
			ID:             "drivers_license",
			Category:       CategoryPersonal,
			Regex:          `\b[A-Z]{1,2}[-\s]?\d{5,8}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagCCPA, TagGDPR},
			Enabled:        true,
			BaseConfidence: 0.35,
			Priority:       35,
		},
		{
			ID:             "mrn",
			Category:       CategoryMedical,
			Regex:          `\b(?:MRN[:\s#-]*)?\d{6,10}\b`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagHIPAA},
			Enabled:        true,
			BaseConfidence: 0.3,
			Priority:       30,
		},
		{
			ID:             "npi",
			Category:       CategoryMedical,
			Regex:          `\b[12]\d{9}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagHIPAA},
			Enabled:        true,
			BaseConfidence: 0.35,
			Priority:       25,
		},
		{
			ID:             "medicare_id",
			Category:       CategoryMedical,
			Regex:          `\b[1-9][A-Z][A-Z0-9]\d-?[A-Z][A-Z0-9]\d-?[A-Z]{2}\d{2}\b`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagHIPAA},
			Enabled:        true,
			BaseConfidence: 0.75,
			Priority:       75,
		},
		{
			ID:             "icd10_code",
			Category:       CategoryMedical,
			Regex:          `\b[A-TV-Z][0-9][0-9A-Z]\.?[0-9A-Z]{0,4}\b`,
			RiskLevel:      RiskLow,
			ComplianceTags: []string{TagHIPAA},
			Enabled:        false,
			BaseConfidence: 0.3,
			Priority:       10,
		},
		{
			ID:             "case_number",
			Category:       CategoryLegal,
			Regex:          `\b\d{1,2}:\d{2}-[a-z]{2}-\d{3,6}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagAttorneyClient},
			Enabled:        true,
			BaseConfidence: 0.7,
			Priority:       65,
		},
		{
			ID:             "settlement_amount",
			Category:       CategoryLegal,
			Regex:          `\$\s?\d{1,3}(?:,\d{3})+(?:\.\d{2})?\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagAttorneyClient},
			Enabled:        true,
			BaseConfidence: 0.4,
			Priority:       55,
		},
		{
			ID:             "api_key",
			Category:       CategoryPersonal,
			Regex:          `(?i)\b(?:api[_-]?key|access[_-]?key|secret[_-]?key)\s*[=:]\s*\S{8,}`,
			RiskLevel:      RiskHigh,
			ComplianceTags: []string{TagGDPR},
			Enabled:        true,
			BaseConfidence: 0.85,
			Priority:       88,
		},
		{
			ID:             "tax_id",
			Category:       CategoryFinancial,
			Regex:          `\b\d{2}-\d{7}\b`,
			RiskLevel:      RiskMedium,
			ComplianceTags: []string{TagGDPR, TagCCPA},
			Enabled:        true,
			BaseConfidence: 0.55,
			Priority:       42,
		},
		{
			ID:             "street_address",
			Category:       CategoryPersonal,
			Regex:          `\b\d{1,5}\s+[A-Z][A-Za-z]+(?:\s[A-Z][A-Za-z]+)*\s+(?:St|Street|Ave|Avenue|Blvd|Boulevard|Dr|Drive|Ln|Lane|Rd|Road|Ct|Court|Way)\.?\b`,
			RiskLevel:      RiskLow,
			ComplianceTags: []string{TagGDPR, TagCCPA, TagHIPAA},
			Enabled:        true,
			BaseConfidence: 0.6,
			Priority:       48,
		},
	}
}
