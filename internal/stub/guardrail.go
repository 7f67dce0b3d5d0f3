package stub

import (
	"regexp"
	"strings"

	"github.com/raaihank/guardbench/internal/privacy"
)

// entityNames maps regex rule names to the guardrail's PII entity types
var entityNames = map[string]string{
	"email":       "EMAIL",
	"phone":       "PHONE",
	"ssn":         "US_SOCIAL_SECURITY_NUMBER",
	"credit_card": "CREDIT_DEBIT_CARD_NUMBER",
}

var (
	dotWord     = regexp.MustCompile(`\s+dot\s+`)
	atWord      = regexp.MustCompile(`\s+at\s+(\S+\.\S+)`)
	numberWord  = regexp.MustCompile(`\b(zero|oh|one|two|three|four|five|six|seven|eight|nine)\b`)
	spacedDigit = regexp.MustCompile(`(\d)\s+(\d)`)
	commaDigit  = regexp.MustCompile(`(\d),\s*(\d)`)
)

var digits = map[string]string{
	"zero": "0", "oh": "0", "one": "1", "two": "2", "three": "3",
	"four": "4", "five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// Guardrail simulates a context-aware PII filter: it reads spelled-out
// numbers and "at"/"dot" email obfuscations before matching.
type Guardrail struct {
	detector *privacy.Detector
}

// NewGuardrail creates a simulated guardrail over every regex rule
func NewGuardrail() (*Guardrail, error) {
	detector, err := privacy.New(nil, nil)
	if err != nil {
		return nil, err
	}
	return &Guardrail{detector: detector}, nil
}

// Assess returns the PII entity types found in text, in rule order
func (g *Guardrail) Assess(text string) []string {
	found := g.detector.Entities(text)
	for name, ok := range g.detector.Entities(Normalize(text)) {
		found[name] = found[name] || ok
	}

	var types []string
	for _, name := range g.detector.EnabledRules() {
		if found[name] {
			types = append(types, entityNames[name])
		}
	}
	return types
}

// Normalize rewrites common spoken obfuscations into their literal form
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = dotWord.ReplaceAllString(s, ".")
	s = atWord.ReplaceAllString(s, "@$1")
	s = numberWord.ReplaceAllStringFunc(s, func(w string) string {
		return digits[w]
	})

	// Matches cannot overlap, so repeat until every digit run is joined
	for {
		joined := spacedDigit.ReplaceAllString(s, "$1$2")
		if joined == s {
			break
		}
		s = joined
	}
	return commaDigit.ReplaceAllString(s, "$1-$2")
}
