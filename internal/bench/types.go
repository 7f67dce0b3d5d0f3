package bench

import (
	"fmt"
	"strings"
	"time"
)

// Configuration identifies one protection setup under comparison
type Configuration string

const (
	// ConfigBaseline calls the generation service with no protection
	ConfigBaseline Configuration = "baseline"
	// ConfigGuardrail calls the generation service through the managed guardrail
	ConfigGuardrail Configuration = "guardrail"
	// ConfigRegex runs the local regex detector around an unprotected call
	ConfigRegex Configuration = "regex"
)

// AllConfigurations is the fixed report order
var AllConfigurations = []Configuration{ConfigBaseline, ConfigGuardrail, ConfigRegex}

// ParseConfiguration converts a label into a Configuration
func ParseConfiguration(label string) (Configuration, error) {
	switch c := Configuration(strings.ToLower(strings.TrimSpace(label))); c {
	case ConfigBaseline, ConfigGuardrail, ConfigRegex:
		return c, nil
	default:
		return "", fmt.Errorf("unknown configuration: %q (must be baseline, guardrail, or regex)", label)
	}
}

// Mode is the scheduling model a trial was collected under
type Mode string

const (
	// ModeSequential measures per-request latency, one call at a time
	ModeSequential Mode = "sequential"
	// ModeThroughput issues calls concurrently and measures throughput
	ModeThroughput Mode = "throughput"
)

// Outcome classifies how a trial ended
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeServiceError    Outcome = "service_error"
	OutcomeValidationError Outcome = "validation_error"
)

// Trial is one timed invocation against a configuration.
// Start and End bracket the network call only.
type Trial struct {
	Seq           int           `json:"seq"`
	Configuration Configuration `json:"configuration"`
	Mode          Mode          `json:"mode"`
	Prompt        string        `json:"prompt"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	CheckDuration time.Duration `json:"check_duration"`
	Outcome       Outcome       `json:"outcome"`
	Error         string        `json:"error,omitempty"`
	PIIDetected   bool          `json:"pii_detected"`
	PIITypes      []string      `json:"pii_types,omitempty"`
	InputTokens   int           `json:"input_tokens,omitempty"`
	OutputTokens  int           `json:"output_tokens,omitempty"`
}

// Duration is the wall-clock time of the network call
func (t Trial) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Latency is the time the caller waited: the call plus any local detection work
func (t Trial) Latency() time.Duration {
	return t.Duration() + t.CheckDuration
}

// Succeeded reports whether the trial counts towards latency statistics.
// A guardrail block is a valid answer from the service.
func (t Trial) Succeeded() bool {
	return t.Outcome == OutcomeSuccess || t.Outcome == OutcomeBlocked
}

// Blocked reports whether the guardrail declined the request
func (t Trial) Blocked() bool {
	return t.Outcome == OutcomeBlocked
}

// Method is a PII detection strategy compared by the corpus evaluator
type Method string

const (
	MethodRegex     Method = "regex"
	MethodGuardrail Method = "guardrail"
)

// ParseMethod converts a label into a Method
func ParseMethod(label string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(label))); m {
	case MethodRegex, MethodGuardrail:
		return m, nil
	default:
		return "", fmt.Errorf("unknown detection method: %q (must be regex or guardrail)", label)
	}
}
