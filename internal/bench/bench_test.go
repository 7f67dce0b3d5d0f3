package bench

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"Nil", nil, OutcomeSuccess},
		{"Blocked", &BlockedByPolicy{GuardrailID: "gr-1", Reason: "PII"}, OutcomeBlocked},
		{"Validation", &ValidationError{Field: "input", Reason: "empty"}, OutcomeValidationError},
		{"Timeout", &TimeoutError{Configuration: ConfigBaseline, Timeout: time.Second}, OutcomeTimeout},
		{"Deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), OutcomeTimeout},
		{"Service", &ServiceError{StatusCode: 503, Err: errors.New("unavailable")}, OutcomeServiceError},
		{"Other", errors.New("connection reset"), OutcomeServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrBlocked(t *testing.T) {
	err := fmt.Errorf("invoke: %w", &BlockedByPolicy{GuardrailID: "gr-1"})
	if !errors.Is(err, ErrBlocked) {
		t.Error("BlockedByPolicy must match ErrBlocked")
	}
	if errors.Is(&ValidationError{}, ErrBlocked) {
		t.Error("ValidationError must not match ErrBlocked")
	}
}

func TestValidateInput(t *testing.T) {
	if err := ValidateInput("hello", 10); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	var validation *ValidationError
	if err := ValidateInput("   ", 10); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for blank input, got %v", err)
	}
	if err := ValidateInput(strings.Repeat("é", 11), 10); !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for long input, got %v", err)
	}
	if err := ValidateInput(strings.Repeat("é", 10), 10); err != nil {
		t.Errorf("Limit counts characters, not bytes: %v", err)
	}
	if err := ValidateInput(strings.Repeat("a", 100), 0); err != nil {
		t.Errorf("Zero limit disables the check: %v", err)
	}
}

func TestTrialLatency(t *testing.T) {
	start := time.Now()
	trial := Trial{
		Start:         start,
		End:           start.Add(100 * time.Millisecond),
		CheckDuration: 2 * time.Millisecond,
		Outcome:       OutcomeBlocked,
	}

	if trial.Duration() != 100*time.Millisecond {
		t.Errorf("Unexpected duration %v", trial.Duration())
	}
	if trial.Latency() != 102*time.Millisecond {
		t.Errorf("Unexpected latency %v", trial.Latency())
	}
	if !trial.Succeeded() || !trial.Blocked() {
		t.Error("A blocked trial is a successful one")
	}
}

func TestParse(t *testing.T) {
	if c, err := ParseConfiguration(" Guardrail "); err != nil || c != ConfigGuardrail {
		t.Errorf("ParseConfiguration = %q, %v", c, err)
	}
	if _, err := ParseConfiguration("waf"); err == nil {
		t.Error("Expected error for unknown configuration")
	}
	if m, err := ParseMethod("REGEX"); err != nil || m != MethodRegex {
		t.Errorf("ParseMethod = %q, %v", m, err)
	}
	if _, err := ParseMethod("ml"); err == nil {
		t.Error("Expected error for unknown method")
	}
}
