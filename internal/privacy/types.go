package privacy

import "regexp"

// DetectionRule represents a single PII detection rule
type DetectionRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Finding represents a detection result
type Finding struct {
	EntityType string `json:"entityType"`
	Masked     string `json:"masked"`
	Count      int    `json:"count"`
	Positions  []int  `json:"positions,omitempty"`
}

// ProcessResult contains the result of processing text through the detector
type ProcessResult struct {
	MaskedText string    `json:"maskedText"`
	Findings   []Finding `json:"findings"`
	Original   string    `json:"-"` // Never serialize original text
}

// HasPII reports whether any rule matched
func (r ProcessResult) HasPII() bool {
	return len(r.Findings) > 0
}

// EntityTypes returns the matched entity types in rule order
func (r ProcessResult) EntityTypes() []string {
	types := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		types = append(types, f.EntityType)
	}
	return types
}

// GetDefaultRules returns the fixed rule set in evaluation order.
// The patterns are literal: spelled-out or "at"/"dot" obfuscations do not match.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			Replacement: "[EMAIL]",
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
			Replacement: "[PHONE]",
		},
		{
			Name:        "ssn",
			Pattern:     regexp.MustCompile(`\b\d{3}[-.\s]?\d{2}[-.\s]?\d{4}\b`),
			Replacement: "[SSN]",
		},
		{
			Name:        "credit_card",
			Pattern:     regexp.MustCompile(`\b(?:\d{4}[-.\s]?){3}\d{4}\b`),
			Replacement: "[CARD]",
		},
	}
}
