package collector

import (
	"context"
	"fmt"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WarmupPrompt is sent, untimed, before a configuration's trials
const WarmupPrompt = "Hello"

// Config controls how trials are scheduled
type Config struct {
	Trials      int
	Warmup      int
	Mode        bench.Mode
	Concurrency int
	// RateLimit caps requests per second across the run; 0 disables it
	RateLimit float64
	// Interleave alternates configurations trial by trial instead of running
	// each configuration's trials as one block
	Interleave bool
}

// Recorder observes the run as it progresses
type Recorder interface {
	ConfigurationStarted(configuration bench.Configuration, trials int)
	TrialCompleted(trial bench.Trial)
	RunFinished(trials []bench.Trial)
}

type nopRecorder struct{}

func (nopRecorder) ConfigurationStarted(bench.Configuration, int) {}
func (nopRecorder) TrialCompleted(bench.Trial)                    {}
func (nopRecorder) RunFinished([]bench.Trial)                     {}

// Collector runs repeated timed invocations per configuration
type Collector struct {
	config   Config
	logger   *logger.Logger
	limiter  *rate.Limiter
	recorder Recorder
}

// Option configures a Collector
type Option func(*Collector)

// WithRecorder attaches a progress recorder
func WithRecorder(r Recorder) Option {
	return func(c *Collector) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates a collector
func New(cfg Config, log *logger.Logger, opts ...Option) (*Collector, error) {
	if cfg.Trials <= 0 {
		return nil, &bench.ValidationError{Field: "trials", Reason: fmt.Sprintf("must be positive, got %d", cfg.Trials)}
	}
	if cfg.Warmup < 0 {
		return nil, &bench.ValidationError{Field: "warmup", Reason: fmt.Sprintf("must not be negative, got %d", cfg.Warmup)}
	}
	if cfg.Mode == "" {
		cfg.Mode = bench.ModeSequential
	}
	if cfg.Mode != bench.ModeSequential && cfg.Mode != bench.ModeThroughput {
		return nil, &bench.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", cfg.Mode)}
	}
	if cfg.Mode == bench.ModeThroughput && cfg.Concurrency < 1 {
		return nil, &bench.ValidationError{Field: "concurrency", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Concurrency)}
	}
	if log == nil {
		log = logger.NewNop()
	}

	c := &Collector{
		config:   cfg,
		logger:   log.WithComponent("collector"),
		recorder: nopRecorder{},
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run executes the configured number of trials against every invoker, cycling
// through prompts. Cancelling ctx stops the run between trials; the trials
// recorded so far are returned together with ctx.Err().
func (c *Collector) Run(ctx context.Context, invokers []invoker.Invoker, prompts []string) ([]bench.Trial, error) {
	if len(invokers) == 0 {
		return nil, &bench.ValidationError{Field: "configurations", Reason: "at least one configuration is required"}
	}
	if len(prompts) == 0 {
		return nil, &bench.ValidationError{Field: "prompts", Reason: "at least one prompt is required"}
	}

	c.logger.Info("Starting benchmark run",
		zap.Int("configurations", len(invokers)),
		zap.Int("trials", c.config.Trials),
		zap.String("mode", string(c.config.Mode)),
		zap.Bool("interleave", c.config.Interleave),
	)

	for _, inv := range invokers {
		c.warmup(ctx, inv)
	}

	var (
		trials []bench.Trial
		err    error
	)
	switch {
	case c.config.Mode == bench.ModeThroughput:
		trials, err = c.runThroughput(ctx, invokers, prompts)
	case c.config.Interleave:
		trials, err = c.runInterleaved(ctx, invokers, prompts)
	default:
		trials, err = c.runSequential(ctx, invokers, prompts)
	}

	c.recorder.RunFinished(trials)

	if err != nil {
		c.logger.Warn("Benchmark run stopped early",
			zap.Int("completed_trials", len(trials)),
			zap.Error(err),
		)
		return trials, err
	}

	c.logger.Info("Benchmark run complete", zap.Int("trials", len(trials)))
	return trials, nil
}

// warmup sends untimed requests so connection setup does not skew the first trial
func (c *Collector) warmup(ctx context.Context, inv invoker.Invoker) {
	for i := 0; i < c.config.Warmup; i++ {
		if ctx.Err() != nil {
			return
		}
		if _, err := inv.Invoke(context.WithoutCancel(ctx), WarmupPrompt); err != nil {
			c.logger.Debug("Warm-up call failed",
				zap.String("configuration", string(inv.Configuration())),
				zap.Error(err),
			)
		}
	}
}

func (c *Collector) runSequential(ctx context.Context, invokers []invoker.Invoker, prompts []string) ([]bench.Trial, error) {
	trials := make([]bench.Trial, 0, len(invokers)*c.config.Trials)
	for _, inv := range invokers {
		c.recorder.ConfigurationStarted(inv.Configuration(), c.config.Trials)

		for i := 0; i < c.config.Trials; i++ {
			if err := c.wait(ctx); err != nil {
				return trials, err
			}
			trials = append(trials, c.trial(ctx, inv, i, prompts[i%len(prompts)]))
		}
	}
	return trials, nil
}

func (c *Collector) runInterleaved(ctx context.Context, invokers []invoker.Invoker, prompts []string) ([]bench.Trial, error) {
	for _, inv := range invokers {
		c.recorder.ConfigurationStarted(inv.Configuration(), c.config.Trials)
	}

	trials := make([]bench.Trial, 0, len(invokers)*c.config.Trials)
	for i := 0; i < c.config.Trials; i++ {
		for _, inv := range invokers {
			if err := c.wait(ctx); err != nil {
				return trials, err
			}
			trials = append(trials, c.trial(ctx, inv, i, prompts[i%len(prompts)]))
		}
	}
	return trials, nil
}

// runThroughput issues each configuration's trials concurrently, up to
// Concurrency calls in flight. Configurations still run one after another.
func (c *Collector) runThroughput(ctx context.Context, invokers []invoker.Invoker, prompts []string) ([]bench.Trial, error) {
	var trials []bench.Trial
	for _, inv := range invokers {
		c.recorder.ConfigurationStarted(inv.Configuration(), c.config.Trials)

		results := make([]bench.Trial, c.config.Trials)
		done := make([]bool, c.config.Trials)

		g := new(errgroup.Group)
		g.SetLimit(c.config.Concurrency)

		var stopErr error
		for i := 0; i < c.config.Trials; i++ {
			if err := c.wait(ctx); err != nil {
				stopErr = err
				break
			}

			i := i
			g.Go(func() error {
				results[i] = c.trial(ctx, inv, i, prompts[i%len(prompts)])
				done[i] = true
				return nil
			})
		}
		_ = g.Wait()

		for i := range results {
			if done[i] {
				trials = append(trials, results[i])
			}
		}
		if stopErr != nil {
			return trials, stopErr
		}
	}
	return trials, nil
}

// wait enforces cancellation and the rate limit before a trial starts
func (c *Collector) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// trial performs one timed invocation. The call itself is detached from run
// cancellation so an in-flight request always completes or times out.
func (c *Collector) trial(ctx context.Context, inv invoker.Invoker, seq int, prompt string) bench.Trial {
	resp, err := inv.Invoke(context.WithoutCancel(ctx), prompt)

	t := bench.Trial{
		Seq:           seq,
		Configuration: inv.Configuration(),
		Mode:          c.config.Mode,
		Prompt:        prompt,
		Start:         resp.Start,
		End:           resp.End,
		CheckDuration: resp.CheckDuration,
		PIIDetected:   resp.PIIDetected,
		PIITypes:      resp.PIITypes,
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
	}

	switch {
	case err != nil:
		t.Outcome = bench.Classify(err)
		t.Error = err.Error()
	case resp.Blocked:
		t.Outcome = bench.OutcomeBlocked
	default:
		t.Outcome = bench.OutcomeSuccess
	}

	if t.End.Before(t.Start) {
		t.End = t.Start
	}

	log := c.logger.With(
		zap.String("configuration", string(t.Configuration)),
		zap.Int("seq", seq),
		zap.String("outcome", string(t.Outcome)),
		zap.Duration("latency", t.Latency()),
	)
	if !t.Succeeded() {
		log.Warn("Trial failed", zap.Error(err))
	} else {
		log.Debug("Trial complete")
	}

	c.recorder.TrialCompleted(t)
	return t
}
