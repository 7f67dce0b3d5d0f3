package privacy

import (
	"reflect"
	"strings"
	"testing"
)

func newDetector(t *testing.T, detectors ...string) *Detector {
	t.Helper()
	d, err := New(detectors, nil)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	return d
}

func TestDetector(t *testing.T) {
	d := newDetector(t, "all")

	t.Run("LiteralPII", func(t *testing.T) {
		cases := map[string]string{
			"My email is john.doe@example.com, can you help?": "email",
			"Call me at 555-123-4567 to discuss the project.": "phone",
			"My office number is (800) 555-0199.":             "phone",
			"My SSN is 123-45-6789.":                          "ssn",
			"Card number 4111 1111 1111 1111 expires soon.":   "credit_card",
		}

		for text, entity := range cases {
			if !d.HasPII(text) {
				t.Errorf("Expected PII in %q", text)
			}
			if !d.Entities(text)[entity] {
				t.Errorf("Expected %s entity in %q, got %v", entity, text, d.Entities(text))
			}
		}
	})

	t.Run("ObfuscatedPIIIsMissed", func(t *testing.T) {
		for _, text := range []string{
			"john dot doe at example dot com",
			"one two three, four five, six seven eight nine",
			"call five five five, one two three, four five six seven",
		} {
			if d.HasPII(text) {
				t.Errorf("Regex detector should not flag obfuscated text %q, got %v", text, d.Detect(text))
			}
		}
	})

	t.Run("Controls", func(t *testing.T) {
		for _, text := range []string{
			"What is the capital of France?",
			"Explain quantum computing in simple terms.",
			"The IP address 192.168.1.1 is not a phone number.",
		} {
			if d.HasPII(text) {
				t.Errorf("Unexpected PII in control %q: %v", text, d.Detect(text))
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		text := "Send the report to alice@corp.com or call 555-987-6543."
		first := d.Detect(text)
		for i := 0; i < 50; i++ {
			if got := d.Detect(text); !reflect.DeepEqual(first, got) {
				t.Fatalf("Detection changed on call %d: %v vs %v", i, first, got)
			}
		}
	})

	t.Run("RuleOrder", func(t *testing.T) {
		findings := d.Detect("Reach out to bob@test.io at 555-000-1111 for details.")
		if len(findings) < 2 {
			t.Fatalf("Expected at least two findings, got %v", findings)
		}
		if findings[0].EntityType != "email" || findings[1].EntityType != "phone" {
			t.Errorf("Expected email before phone, got %v", findings)
		}
	})

	t.Run("ProcessTextMasks", func(t *testing.T) {
		result := d.ProcessText("Contact help@company.org or 555-123-4567.")
		if !result.HasPII() {
			t.Fatal("Expected findings")
		}
		if strings.Contains(result.MaskedText, "help@company.org") || strings.Contains(result.MaskedText, "555-123-4567") {
			t.Errorf("PII left in masked text: %q", result.MaskedText)
		}
		if !strings.Contains(result.MaskedText, "[EMAIL]") || !strings.Contains(result.MaskedText, "[PHONE]") {
			t.Errorf("Expected replacement tokens in %q", result.MaskedText)
		}
		if result.Original != "Contact help@company.org or 555-123-4567." {
			t.Error("Original text should be preserved")
		}
	})

	t.Run("ProcessTextClean", func(t *testing.T) {
		text := "Describe the water cycle."
		result := d.ProcessText(text)
		if result.HasPII() || result.MaskedText != text {
			t.Errorf("Clean text should pass through unchanged, got %+v", result)
		}
	})
}

func TestConfigureDetectors(t *testing.T) {
	t.Run("Subset", func(t *testing.T) {
		d := newDetector(t, "email")
		if got := d.EnabledRules(); !reflect.DeepEqual(got, []string{"email"}) {
			t.Errorf("Expected only email enabled, got %v", got)
		}
		if d.HasPII("Call me at 555-123-4567") {
			t.Error("Phone rule should be disabled")
		}
	})

	t.Run("EmptyEnablesAll", func(t *testing.T) {
		d := newDetector(t)
		if got := d.EnabledRules(); len(got) != len(GetDefaultRules()) {
			t.Errorf("Expected all rules enabled, got %v", got)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := New([]string{"passport"}, nil); err == nil {
			t.Error("Expected error for unknown detector")
		}
	})
}
