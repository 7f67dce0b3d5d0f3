// Package evaluator measures how well each PII detection method recognizes the
// labeled corpus, keeping the literal misses for qualitative reporting.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/corpus"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/privacy"
	"go.uber.org/zap"
)

// Detector is one PII detection method under evaluation
type Detector interface {
	Method() bench.Method
	Detect(ctx context.Context, text string) (bool, []string, error)
}

// RegexDetector adapts the local rule set
type RegexDetector struct {
	detector *privacy.Detector
}

// NewRegexDetector wraps a privacy detector
func NewRegexDetector(d *privacy.Detector) *RegexDetector {
	return &RegexDetector{detector: d}
}

func (r *RegexDetector) Method() bench.Method { return bench.MethodRegex }

func (r *RegexDetector) Detect(_ context.Context, text string) (bool, []string, error) {
	findings := r.detector.Detect(text)
	types := make([]string, 0, len(findings))
	for _, f := range findings {
		types = append(types, f.EntityType)
	}
	return len(findings) > 0, types, nil
}

// GuardrailDetector adapts the guardrail's standalone PII check
type GuardrailDetector struct {
	checker invoker.PIIChecker
}

// NewGuardrailDetector wraps a PII checker
func NewGuardrailDetector(c invoker.PIIChecker) *GuardrailDetector {
	return &GuardrailDetector{checker: c}
}

func (g *GuardrailDetector) Method() bench.Method { return bench.MethodGuardrail }

func (g *GuardrailDetector) Detect(ctx context.Context, text string) (bool, []string, error) {
	verdict, err := g.checker.CheckPII(ctx, text)
	if err != nil {
		return false, nil, err
	}
	return verdict.Detected, verdict.EntityTypes, nil
}

// Class is the confusion-matrix cell of one outcome
type Class string

const (
	TruePositive  Class = "TP"
	FalsePositive Class = "FP"
	TrueNegative  Class = "TN"
	FalseNegative Class = "FN"
	Errored       Class = "ERR"
)

// Outcome is one method's verdict on one case
type Outcome struct {
	Case     corpus.Case   `json:"case"`
	Method   bench.Method  `json:"method"`
	Detected bool          `json:"detected"`
	Entities []string      `json:"entities,omitempty"`
	Class    Class         `json:"class"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// Summary aggregates one method's outcomes
type Summary struct {
	Method         bench.Method `json:"method"`
	Cases          int          `json:"cases"`
	TruePositives  int          `json:"true_positives"`
	FalsePositives int          `json:"false_positives"`
	TrueNegatives  int          `json:"true_negatives"`
	FalseNegatives int          `json:"false_negatives"`
	Errors         int          `json:"errors"`
	Recall         float64      `json:"recall"`
	Precision      float64      `json:"precision"`
	// RecallDefined is false when the corpus holds no positive cases
	RecallDefined bool `json:"recall_defined"`
	// PrecisionDefined is false when the method flagged nothing
	PrecisionDefined bool          `json:"precision_defined"`
	MeanLatency      time.Duration `json:"mean_latency"`
	Missed           []corpus.Case `json:"missed"`
	FalseAlarms      []corpus.Case `json:"false_alarms"`
}

// Result holds every outcome and the per-method summaries, in method order
type Result struct {
	Outcomes  []Outcome `json:"outcomes"`
	Summaries []Summary `json:"summaries"`
}

// Summary returns the summary for a method
func (r Result) Summary(method bench.Method) (Summary, bool) {
	for _, s := range r.Summaries {
		if s.Method == method {
			return s, true
		}
	}
	return Summary{}, false
}

// Evaluator runs detection methods over a corpus
type Evaluator struct {
	logger *logger.Logger
}

// New creates an evaluator
func New(log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Evaluator{logger: log.WithComponent("evaluator")}
}

// Evaluate runs every method against every case. A failing check is recorded
// against that case and excluded from recall and precision. Cancelling ctx
// stops between cases and returns the partial result with ctx.Err().
func (e *Evaluator) Evaluate(ctx context.Context, cases []corpus.Case, methods []Detector) (Result, error) {
	if len(cases) == 0 {
		return Result{}, &bench.ValidationError{Field: "corpus", Reason: "no cases to evaluate"}
	}
	if len(methods) == 0 {
		return Result{}, &bench.ValidationError{Field: "methods", Reason: "at least one detection method is required"}
	}

	e.logger.Info("Starting detection evaluation",
		zap.Int("cases", len(cases)),
		zap.Int("methods", len(methods)),
	)

	var result Result
	var stopErr error

loop:
	for _, c := range cases {
		for _, m := range methods {
			if err := ctx.Err(); err != nil {
				stopErr = err
				break loop
			}
			result.Outcomes = append(result.Outcomes, e.evaluate(ctx, c, m))
		}
	}

	for _, m := range methods {
		result.Summaries = append(result.Summaries, Summarize(m.Method(), result.Outcomes))
	}

	for _, s := range result.Summaries {
		e.logger.Info("Detection summary",
			zap.String("method", string(s.Method)),
			zap.String("recall", formatRatio(s.Recall, s.RecallDefined)),
			zap.String("precision", formatRatio(s.Precision, s.PrecisionDefined)),
			zap.Int("missed", len(s.Missed)),
			zap.Int("errors", s.Errors),
		)
	}

	return result, stopErr
}

// evaluate runs one check. The check is detached from run cancellation so an
// in-flight call always completes or times out.
func (e *Evaluator) evaluate(ctx context.Context, c corpus.Case, m Detector) Outcome {
	start := time.Now()
	detected, entities, err := m.Detect(context.WithoutCancel(ctx), c.Text)
	outcome := Outcome{
		Case:     c,
		Method:   m.Method(),
		Detected: detected,
		Entities: entities,
		Latency:  time.Since(start),
	}

	if err != nil {
		outcome.Class = Errored
		outcome.Error = err.Error()
		e.logger.Warn("Detection check failed",
			zap.String("method", string(m.Method())),
			zap.String("category", c.Category),
			zap.Error(err),
		)
		return outcome
	}

	outcome.Class = classify(c.Expected, detected)
	return outcome
}

func classify(expected, detected bool) Class {
	switch {
	case expected && detected:
		return TruePositive
	case expected:
		return FalseNegative
	case detected:
		return FalsePositive
	default:
		return TrueNegative
	}
}

// Summarize aggregates the outcomes of one method
func Summarize(method bench.Method, outcomes []Outcome) Summary {
	s := Summary{Method: method, Missed: []corpus.Case{}, FalseAlarms: []corpus.Case{}}

	var latency time.Duration
	var timed int
	for _, o := range outcomes {
		if o.Method != method {
			continue
		}
		s.Cases++

		switch o.Class {
		case TruePositive:
			s.TruePositives++
		case FalsePositive:
			s.FalsePositives++
			s.FalseAlarms = append(s.FalseAlarms, o.Case)
		case TrueNegative:
			s.TrueNegatives++
		case FalseNegative:
			s.FalseNegatives++
			s.Missed = append(s.Missed, o.Case)
		case Errored:
			s.Errors++
			continue
		}
		latency += o.Latency
		timed++
	}

	if positives := s.TruePositives + s.FalseNegatives; positives > 0 {
		s.Recall = float64(s.TruePositives) / float64(positives)
		s.RecallDefined = true
	}
	if flagged := s.TruePositives + s.FalsePositives; flagged > 0 {
		s.Precision = float64(s.TruePositives) / float64(flagged)
		s.PrecisionDefined = true
	}
	if timed > 0 {
		s.MeanLatency = latency / time.Duration(timed)
	}

	return s
}

func formatRatio(v float64, defined bool) string {
	if !defined {
		return "undefined"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}
