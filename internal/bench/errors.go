package bench

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError reports input the downstream service would reject.
// It is fatal to a single trial.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TimeoutError reports a call that exceeded its deadline
type TimeoutError struct {
	Configuration Configuration
	Timeout       time.Duration
	Err           error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call exceeded %s deadline", e.Configuration, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ServiceError reports a transport, auth or non-2xx failure from the service
type ServiceError struct {
	Configuration Configuration
	StatusCode    int
	Code          string
	Err           error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Code != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s call failed (%d %s): %v", e.Configuration, e.StatusCode, e.Code, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s call failed (HTTP %d): %v", e.Configuration, e.StatusCode, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s call failed (%s): %v", e.Configuration, e.Code, e.Err)
	default:
		return fmt.Sprintf("%s call failed: %v", e.Configuration, e.Err)
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// BlockedByPolicy is returned when the guardrail declines a request by
// rejecting the call rather than answering with an intervention.
// Callers must treat it as a successful outcome.
type BlockedByPolicy struct {
	GuardrailID string
	Reason      string
}

func (e *BlockedByPolicy) Error() string {
	return fmt.Sprintf("guardrail %s blocked request: %s", e.GuardrailID, e.Reason)
}

// Is matches ErrBlocked so transports can map any policy block to one status
func (e *BlockedByPolicy) Is(target error) bool {
	return target == ErrBlocked
}

// ErrBlocked is the sentinel every BlockedByPolicy matches
var ErrBlocked = errors.New("blocked by guardrail policy")

// InsufficientDataError flags a configuration whose successful trials are
// too few to aggregate meaningfully
type InsufficientDataError struct {
	Configuration Configuration
	Successful    int
	Total         int
	Reason        string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %d/%d successful trials (%s)",
		e.Configuration, e.Successful, e.Total, e.Reason)
}

// SetupError is fatal to the whole run: a missing identifier, credential or
// unreachable dependency detected before any trial is issued
type SetupError struct {
	Component string
	Detail    string
	Err       error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s setup failed: %s: %v", e.Component, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s setup failed: %s", e.Component, e.Detail)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Classify maps an invocation error to a trial outcome
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var (
		blocked    *BlockedByPolicy
		validation *ValidationError
		timeout    *TimeoutError
	)
	switch {
	case errors.As(err, &blocked):
		return OutcomeBlocked
	case errors.As(err, &validation):
		return OutcomeValidationError
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeServiceError
	}
}

// ValidateInput enforces the non-empty, bounded-length contract shared by
// every invoker. maxChars <= 0 disables the length check.
func ValidateInput(text string, maxChars int) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "input", Reason: "text is empty"}
	}
	if maxChars > 0 {
		if n := len([]rune(text)); n > maxChars {
			return &ValidationError{
				Field:  "input",
				Reason: fmt.Sprintf("text is %d characters, limit is %d", n, maxChars),
			}
		}
	}
	return nil
}
