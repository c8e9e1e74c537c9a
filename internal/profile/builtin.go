package profile

import "time"

// BuiltinProfiles returns the standard compliance configurations. These are
// starting points: administrators typically clone and tune them.
func BuiltinProfiles() []*Profile {
	return []*Profile{
		{
			Name:        "hipaa",
			Description: "PHI handling for healthcare content",
			PatternSubset: []string{
				"ssn", "mrn", "npi", "medicare_id", "icd10_code",
				"date_of_birth", "phone", "street_address",
			},
			RiskThreshold:      "medium",
			RetentionDays:      7,
			MappingTTL:         15 * time.Minute,
			EncryptionRequired: true,
			ComplianceTags:     []string{"HIPAA"},
		},
		{
			Name:        "gdpr",
			Description: "EU personal data, broad subset",
			PatternSubset: []string{
				"ssn", "email", "phone", "ip_address", "passport",
				"drivers_license", "iban", "date_of_birth", "street_address",
				"tax_id", "api_key",
			},
			RiskThreshold:      "low",
			RetentionDays:      30,
			MappingTTL:         15 * time.Minute,
			EncryptionRequired: true,
			ComplianceTags:     []string{"GDPR"},
		},
		{
			Name:        "pci-dss",
			Description: "Cardholder and account data",
			PatternSubset: []string{
				"credit_card", "iban", "bank_account", "routing_number", "tax_id",
			},
			RiskThreshold:      "medium",
			RetentionDays:      1,
			MappingTTL:         10 * time.Minute,
			EncryptionRequired: true,
			ComplianceTags:     []string{"PCI-DSS"},
		},
		{
			Name:        "ccpa",
			Description: "California consumer personal information",
			PatternSubset: []string{
				"ssn", "email", "phone", "drivers_license", "passport",
				"date_of_birth", "street_address", "ip_address", "tax_id",
			},
			RiskThreshold:      "low",
			RetentionDays:      30,
			MappingTTL:         15 * time.Minute,
			EncryptionRequired: true,
			ComplianceTags:     []string{"CCPA"},
		},
		{
			Name:        "attorney-client",
			Description: "Privileged legal material",
			PatternSubset: []string{
				"ssn", "email", "phone", "case_number", "settlement_amount",
				"street_address",
			},
			RiskThreshold:      "medium",
			RetentionDays:      14,
			MappingTTL:         30 * time.Minute,
			EncryptionRequired: true,
			ComplianceTags:     []string{"ATTORNEY-CLIENT"},
		},
		{
			Name:               "strict",
			Description:        "Every enabled pattern, lowest threshold",
			PatternSubset:      nil,
			RiskThreshold:      "low",
			RetentionDays:      1,
			MappingTTL:         15 * time.Minute,
			EncryptionRequired: true,
		},
	}
}
