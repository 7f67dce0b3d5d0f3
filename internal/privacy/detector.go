package privacy

import (
	"fmt"

	"github.com/raaihank/guardbench/internal/logger"
	"go.uber.org/zap"
)

// Detector applies an ordered list of regex rules to text.
// It holds no mutable state after construction and is safe for concurrent use.
type Detector struct {
	rules   []DetectionRule
	enabled map[string]bool
	logger  *logger.Logger
}

// New creates a new PII detector instance
func New(detectors []string, log *logger.Logger) (*Detector, error) {
	if log == nil {
		log = logger.NewNop()
	}

	detector := &Detector{
		rules:   GetDefaultRules(),
		enabled: make(map[string]bool),
		logger:  log,
	}

	if err := detector.configureDetectors(detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Debug("Privacy detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Strings("enabled_rules", detector.EnabledRules()),
	)

	return detector, nil
}

// configureDetectors enables detectors based on configuration.
// An empty list enables every rule.
func (d *Detector) configureDetectors(detectors []string) error {
	for _, rule := range d.rules {
		d.enabled[rule.Name] = len(detectors) == 0
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range d.rules {
				d.enabled[rule.Name] = true
			}
			continue
		}

		if _, ok := d.enabled[detector]; !ok {
			return fmt.Errorf("unknown detector: %s", detector)
		}
		d.enabled[detector] = true
	}

	return nil
}

// Detect returns one finding per matching rule, in rule order.
// Matching runs against the original text so overlapping rules are all reported.
func (d *Detector) Detect(text string) []Finding {
	findings := make([]Finding, 0)

	for _, rule := range d.rules {
		if !d.enabled[rule.Name] {
			continue
		}

		matches := rule.Pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}

		positions := make([]int, 0, len(matches))
		for _, m := range matches {
			positions = append(positions, m[0])
		}

		findings = append(findings, Finding{
			EntityType: rule.Name,
			Masked:     rule.Replacement,
			Count:      len(matches),
			Positions:  positions,
		})
	}

	return findings
}

// HasPII reports whether any enabled rule matches text
func (d *Detector) HasPII(text string) bool {
	for _, rule := range d.rules {
		if d.enabled[rule.Name] && rule.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Entities reports, for every enabled rule, whether it matched
func (d *Detector) Entities(text string) map[string]bool {
	entities := make(map[string]bool, len(d.rules))
	for _, rule := range d.rules {
		if d.enabled[rule.Name] {
			entities[rule.Name] = rule.Pattern.MatchString(text)
		}
	}
	return entities
}

// ProcessText detects PII and masks it rule by rule
func (d *Detector) ProcessText(text string) ProcessResult {
	findings := d.Detect(text)
	if len(findings) == 0 {
		return ProcessResult{
			MaskedText: text,
			Findings:   findings,
			Original:   text,
		}
	}

	maskedText := text
	for _, rule := range d.rules {
		if !d.enabled[rule.Name] {
			continue
		}
		maskedText = rule.Pattern.ReplaceAllString(maskedText, rule.Replacement)
	}

	d.logger.Debug("PII detected and masked",
		zap.Int("findings", len(findings)),
	)

	return ProcessResult{
		MaskedText: maskedText,
		Findings:   findings,
		Original:   text,
	}
}

// EnabledRules returns the enabled rule names in evaluation order
func (d *Detector) EnabledRules() []string {
	enabled := make([]string, 0, len(d.rules))
	for _, rule := range d.rules {
		if d.enabled[rule.Name] {
			enabled = append(enabled, rule.Name)
		}
	}
	return enabled
}
