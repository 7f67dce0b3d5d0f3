package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/privacy"
	"go.uber.org/zap"
)

// Call is the result of one wire call. Start and End bracket the transport
// round trip only, not request encoding or response decoding.
type Call struct {
	Output       string
	Blocked      bool
	Start        time.Time
	End          time.Time
	InputTokens  int
	OutputTokens int
}

// Verdict is the guardrail's answer to a standalone PII check
type Verdict struct {
	Detected    bool
	EntityTypes []string
	Action      string
	Start       time.Time
	End         time.Time
}

// Client is the transport to the generation and guardrail service
type Client interface {
	// Generate issues one generation request, applying the guardrail when guarded is set
	Generate(ctx context.Context, text string, guarded bool) (Call, error)
	// ApplyGuardrail evaluates text with the guardrail alone, without generation
	ApplyGuardrail(ctx context.Context, text string) (Verdict, error)
	// GuardrailID returns the configured guardrail identifier, empty when none
	GuardrailID() string
}

// Response is what an Invoker hands back for one request
type Response struct {
	Output        string
	Blocked       bool
	Start         time.Time
	End           time.Time
	CheckDuration time.Duration
	PIIDetected   bool
	PIITypes      []string
	InputTokens   int
	OutputTokens  int
}

// Invoker sends one generation request under a single protection configuration
type Invoker interface {
	Configuration() bench.Configuration
	Invoke(ctx context.Context, text string) (Response, error)
}

// PIIChecker asks the guardrail alone whether text contains PII
type PIIChecker interface {
	CheckPII(ctx context.Context, text string) (Verdict, error)
}

// Options apply to every invoker
type Options struct {
	Timeout       time.Duration
	MaxInputChars int
}

type base struct {
	client  Client
	opts    Options
	logger  *logger.Logger
	config  bench.Configuration
	guarded bool
}

func (b *base) Configuration() bench.Configuration {
	return b.config
}

// call runs one Generate under the per-call deadline and normalizes its error
func (b *base) call(ctx context.Context, text string) (Call, error) {
	callCtx := ctx
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	result, err := b.client.Generate(callCtx, text, b.guarded)
	if err == nil {
		return result, nil
	}

	if result.Start.IsZero() {
		result.Start = time.Now()
		result.End = result.Start
	}

	var blocked *bench.BlockedByPolicy
	if errors.As(err, &blocked) {
		b.logger.Debug("Guardrail rejected request", zap.String("reason", blocked.Reason))
		result.Blocked = true
		return result, nil
	}

	return result, b.normalize(callCtx, err)
}

func (b *base) normalize(ctx context.Context, err error) error {
	var (
		validation *bench.ValidationError
		service    *bench.ServiceError
		timeout    *bench.TimeoutError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &timeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &bench.TimeoutError{Configuration: b.config, Timeout: b.opts.Timeout, Err: err}
	case errors.As(err, &service):
		service.Configuration = b.config
		return service
	default:
		return &bench.ServiceError{Configuration: b.config, Err: err}
	}
}

func rejected(err error) (Response, error) {
	now := time.Now()
	return Response{Start: now, End: now}, err
}

// Protected calls the generation service with the managed guardrail applied
type Protected struct {
	base
}

// NewProtected creates the guardrail configuration invoker
func NewProtected(client Client, opts Options, log *logger.Logger) (*Protected, error) {
	if client.GuardrailID() == "" {
		return nil, &bench.SetupError{Component: "guardrail", Detail: "guardrail identifier is not configured"}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Protected{base: base{
		client:  client,
		opts:    opts,
		logger:  log.WithConfiguration(string(bench.ConfigGuardrail)),
		config:  bench.ConfigGuardrail,
		guarded: true,
	}}, nil
}

// Invoke sends text through the guardrail. An intervention is a successful
// response with Blocked set.
func (p *Protected) Invoke(ctx context.Context, text string) (Response, error) {
	if err := bench.ValidateInput(text, p.opts.MaxInputChars); err != nil {
		return rejected(err)
	}

	result, err := p.call(ctx, text)
	return Response{
		Output:       result.Output,
		Blocked:      result.Blocked,
		Start:        result.Start,
		End:          result.End,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, err
}

// CheckPII runs the guardrail without generation
func (p *Protected) CheckPII(ctx context.Context, text string) (Verdict, error) {
	if err := bench.ValidateInput(text, p.opts.MaxInputChars); err != nil {
		return Verdict{}, err
	}

	callCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	verdict, err := p.client.ApplyGuardrail(callCtx, text)
	if err != nil {
		return verdict, p.normalize(callCtx, err)
	}
	return verdict, nil
}

// Unprotected calls the generation service with no protection
type Unprotected struct {
	base
}

// NewUnprotected creates the baseline configuration invoker
func NewUnprotected(client Client, opts Options, log *logger.Logger) *Unprotected {
	if log == nil {
		log = logger.NewNop()
	}

	return &Unprotected{base: base{
		client: client,
		opts:   opts,
		logger: log.WithConfiguration(string(bench.ConfigBaseline)),
		config: bench.ConfigBaseline,
	}}
}

// Invoke sends text straight to the model
func (u *Unprotected) Invoke(ctx context.Context, text string) (Response, error) {
	if err := bench.ValidateInput(text, u.opts.MaxInputChars); err != nil {
		return rejected(err)
	}

	result, err := u.call(ctx, text)
	return Response{
		Output:       result.Output,
		Start:        result.Start,
		End:          result.End,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, err
}

// Regex wraps an unprotected call with the local regex detector: the input is
// checked and masked before the call and the output is checked after it.
type Regex struct {
	base
	detector *privacy.Detector
}

// NewRegex creates the regex configuration invoker
func NewRegex(client Client, detector *privacy.Detector, opts Options, log *logger.Logger) (*Regex, error) {
	if detector == nil {
		return nil, &bench.SetupError{Component: "regex", Detail: "detector is required"}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Regex{
		base: base{
			client: client,
			opts:   opts,
			logger: log.WithConfiguration(string(bench.ConfigRegex)),
			config: bench.ConfigRegex,
		},
		detector: detector,
	}, nil
}

// Invoke masks PII in text, sends it unprotected and scans the answer.
// CheckDuration holds the local detection time only.
func (r *Regex) Invoke(ctx context.Context, text string) (Response, error) {
	if err := bench.ValidateInput(text, r.opts.MaxInputChars); err != nil {
		return rejected(err)
	}

	checkStart := time.Now()
	input := r.detector.ProcessText(text)
	check := time.Since(checkStart)

	types := input.EntityTypes()
	if input.HasPII() {
		r.logger.Debug("Masked PII before call", zap.Strings("types", types))
	}

	result, err := r.call(ctx, input.MaskedText)
	resp := Response{
		Start:        result.Start,
		End:          result.End,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}
	if err != nil {
		resp.CheckDuration = check
		resp.PIIDetected = input.HasPII()
		resp.PIITypes = types
		return resp, err
	}

	checkStart = time.Now()
	output := r.detector.ProcessText(result.Output)
	check += time.Since(checkStart)

	resp.Output = output.MaskedText
	resp.CheckDuration = check
	resp.PIIDetected = input.HasPII() || output.HasPII()
	resp.PIITypes = mergeTypes(types, output.EntityTypes())
	return resp, nil
}

func mergeTypes(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string(nil), a...), b...) {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	return merged
}

// Build creates one invoker per configuration, in the order given.
// The regex configuration requires a detector.
func Build(configs []bench.Configuration, client Client, detector *privacy.Detector, opts Options, log *logger.Logger) ([]Invoker, error) {
	invokers := make([]Invoker, 0, len(configs))
	for _, c := range configs {
		switch c {
		case bench.ConfigBaseline:
			invokers = append(invokers, NewUnprotected(client, opts, log))
		case bench.ConfigGuardrail:
			p, err := NewProtected(client, opts, log)
			if err != nil {
				return nil, err
			}
			invokers = append(invokers, p)
		case bench.ConfigRegex:
			r, err := NewRegex(client, detector, opts, log)
			if err != nil {
				return nil, err
			}
			invokers = append(invokers, r)
		default:
			return nil, fmt.Errorf("unknown configuration: %q", c)
		}
	}
	return invokers, nil
}
