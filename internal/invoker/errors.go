package invoker

import (
	"context"
	"errors"
	"strings"

	"github.com/raaihank/guardbench/internal/bench"
)

const validationException = "ValidationException"

// serviceFailure describes a rejected call in transport-neutral terms
type serviceFailure struct {
	status  int
	code    string
	message string
	err     error
}

// translate maps a service rejection onto the benchmark error taxonomy.
// A validation rejection that names the guardrail on a guarded call is a block.
func translate(f serviceFailure, guarded bool, guardrailID string) error {
	if errors.Is(f.err, context.DeadlineExceeded) || errors.Is(f.err, context.Canceled) {
		return f.err
	}

	if f.code == validationException {
		if guarded && strings.Contains(strings.ToLower(f.message), "guardrail") {
			return &bench.BlockedByPolicy{GuardrailID: guardrailID, Reason: f.message}
		}
		return &bench.ValidationError{Field: "request", Reason: f.message}
	}

	return &bench.ServiceError{StatusCode: f.status, Code: f.code, Err: f.err}
}
