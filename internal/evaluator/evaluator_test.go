package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/corpus"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/privacy"
)

type constantDetector struct {
	method bench.Method
	answer bool
	err    error
}

func (c constantDetector) Method() bench.Method { return c.method }

func (c constantDetector) Detect(context.Context, string) (bool, []string, error) {
	return c.answer, nil, c.err
}

type fakeChecker struct {
	detected map[string]bool
	err      error
}

func (f fakeChecker) CheckPII(_ context.Context, text string) (invoker.Verdict, error) {
	if f.err != nil {
		return invoker.Verdict{}, f.err
	}
	if f.detected[text] {
		return invoker.Verdict{Detected: true, EntityTypes: []string{"EMAIL"}}, nil
	}
	return invoker.Verdict{}, nil
}

func regexDetector(t *testing.T) *RegexDetector {
	t.Helper()
	d, err := privacy.New(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	return NewRegexDetector(d)
}

func TestRecallExtremes(t *testing.T) {
	cases := []corpus.Case{
		{Text: "a", Expected: true, Category: "pii"},
		{Text: "b", Expected: true, Category: "pii"},
		{Text: "c", Expected: false, Category: "control"},
	}

	result, err := New(nil).Evaluate(context.Background(), cases, []Detector{
		constantDetector{method: "never", answer: false},
		constantDetector{method: "always", answer: true},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	never, _ := result.Summary("never")
	if never.Recall != 0 || !never.RecallDefined || len(never.Missed) != 2 {
		t.Errorf("Never-positive detector must have recall 0: %+v", never)
	}
	if never.PrecisionDefined {
		t.Error("Precision is undefined when nothing is flagged")
	}

	always, _ := result.Summary("always")
	if always.Recall != 1 || len(always.Missed) != 0 {
		t.Errorf("Always-positive detector must have recall 1: %+v", always)
	}
	if always.Precision != 2.0/3.0 || len(always.FalseAlarms) != 1 {
		t.Errorf("Unexpected precision: %+v", always)
	}
}

func TestRegexOnBuiltinCorpus(t *testing.T) {
	result, err := New(nil).Evaluate(context.Background(), corpus.Builtin(), []Detector{regexDetector(t)})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	s, ok := result.Summary(bench.MethodRegex)
	if !ok {
		t.Fatal("Missing regex summary")
	}

	missed := make(map[string]bool)
	for _, c := range s.Missed {
		missed[c.Text] = true
		if !strings.HasPrefix(c.Category, "obfuscated") {
			t.Errorf("Regex should only miss obfuscated cases, missed %q", c.Text)
		}
	}
	for _, text := range []string{
		"john dot doe at example dot com",
		"one two three, four five, six seven eight nine",
	} {
		if !missed[text] {
			t.Errorf("Expected regex to miss %q", text)
		}
	}

	if s.FalsePositives != 0 {
		t.Errorf("Regex flagged controls: %+v", s.FalseAlarms)
	}
	if s.Recall <= 0 || s.Recall >= 1 {
		t.Errorf("Expected partial recall, got %v", s.Recall)
	}
	if s.Precision != 1 {
		t.Errorf("Expected perfect precision, got %v", s.Precision)
	}
}

func TestGuardrailDetector(t *testing.T) {
	cases := []corpus.Case{
		{Text: "john dot doe at example dot com", Expected: true, Category: "obfuscated_email"},
		{Text: "What is the capital of France?", Expected: false, Category: "control"},
	}
	checker := fakeChecker{detected: map[string]bool{"john dot doe at example dot com": true}}

	result, err := New(nil).Evaluate(context.Background(), cases, []Detector{
		regexDetector(t),
		NewGuardrailDetector(checker),
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(result.Summaries) != 2 || result.Summaries[0].Method != bench.MethodRegex {
		t.Fatalf("Summaries must follow method order: %+v", result.Summaries)
	}

	g, _ := result.Summary(bench.MethodGuardrail)
	if g.Recall != 1 || g.Precision != 1 {
		t.Errorf("Unexpected guardrail summary: %+v", g)
	}
	r, _ := result.Summary(bench.MethodRegex)
	if r.Recall != 0 {
		t.Errorf("Regex should miss the obfuscated email: %+v", r)
	}
}

func TestCheckErrors(t *testing.T) {
	cases := []corpus.Case{
		{Text: "a", Expected: true, Category: "pii"},
		{Text: "b", Expected: false, Category: "control"},
	}
	failing := NewGuardrailDetector(fakeChecker{err: &bench.ServiceError{StatusCode: 503, Err: errors.New("down")}})

	result, err := New(nil).Evaluate(context.Background(), cases, []Detector{failing})
	if err != nil {
		t.Fatalf("Per-case errors must not fail the run: %v", err)
	}

	s, _ := result.Summary(bench.MethodGuardrail)
	if s.Errors != 2 || s.RecallDefined || s.PrecisionDefined {
		t.Errorf("Errored cases must be excluded from metrics: %+v", s)
	}
	for _, o := range result.Outcomes {
		if o.Class != Errored || o.Error == "" {
			t.Errorf("Expected errored outcome, got %+v", o)
		}
	}
}

func TestUndefinedRecall(t *testing.T) {
	cases := []corpus.Case{{Text: "clean", Expected: false, Category: "control"}}

	result, _ := New(nil).Evaluate(context.Background(), cases, []Detector{regexDetector(t)})
	s, _ := result.Summary(bench.MethodRegex)
	if s.RecallDefined {
		t.Error("Recall is undefined without positive cases")
	}
}

func TestEvaluateValidation(t *testing.T) {
	e := New(nil)
	if _, err := e.Evaluate(context.Background(), nil, []Detector{regexDetector(t)}); err == nil {
		t.Error("Expected error for empty corpus")
	}
	if _, err := e.Evaluate(context.Background(), corpus.Builtin(), nil); err == nil {
		t.Error("Expected error without methods")
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(nil).Evaluate(ctx, corpus.Builtin(), []Detector{regexDetector(t)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(result.Outcomes) != 0 {
		t.Errorf("Expected no outcomes, got %d", len(result.Outcomes))
	}
}

// slowChecker blocks for delay unless its context is cancelled first
type slowChecker struct {
	started chan struct{}
	delay   time.Duration
}

func (s slowChecker) CheckPII(ctx context.Context, _ string) (invoker.Verdict, error) {
	close(s.started)
	select {
	case <-time.After(s.delay):
		return invoker.Verdict{Detected: true, EntityTypes: []string{"EMAIL"}}, nil
	case <-ctx.Done():
		return invoker.Verdict{}, ctx.Err()
	}
}

func TestCancellationDuringCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := slowChecker{started: make(chan struct{}), delay: 100 * time.Millisecond}
	go func() {
		<-checker.started
		cancel()
	}()

	cases := []corpus.Case{
		{Text: "reach me at jane@example.com", Expected: true, Category: "email"},
		{Text: "the weather is nice", Expected: false, Category: "control"},
	}
	result, err := New(nil).Evaluate(ctx, cases, []Detector{NewGuardrailDetector(checker)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("Expected the in-flight check to be recorded, got %d outcomes", len(result.Outcomes))
	}
	if o := result.Outcomes[0]; o.Class != TruePositive || o.Error != "" {
		t.Errorf("In-flight check must complete normally: %+v", o)
	}
	if s, _ := result.Summary(bench.MethodGuardrail); s.Errors != 0 {
		t.Errorf("Expected no errors, got %d", s.Errors)
	}
}
