package main

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/collector"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/monitor"
	"github.com/raaihank/guardbench/internal/privacy"
	"github.com/raaihank/guardbench/internal/report"
	"github.com/raaihank/guardbench/internal/stats"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type latencyFlags struct {
	configurations []string
	trials         int
	mode           string
	concurrency    int
	interleave     bool
	monitor        bool
	format         string
	output         string
	jsonExport     string
}

// apply copies explicitly set flags over the loaded configuration
func (f *latencyFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("configurations") {
		cfg.Benchmark.Configurations = f.configurations
	}
	if flags.Changed("trials") {
		cfg.Benchmark.Trials = f.trials
	}
	if flags.Changed("mode") {
		cfg.Benchmark.Mode = f.mode
	}
	if flags.Changed("concurrency") {
		cfg.Benchmark.Concurrency = f.concurrency
	}
	if flags.Changed("interleave") {
		cfg.Benchmark.Interleave = f.interleave
	}
	if flags.Changed("monitor") {
		cfg.Monitor.Enabled = f.monitor
	}
	if flags.Changed("format") {
		cfg.Report.Format = f.format
	}
	if flags.Changed("output") {
		cfg.Report.Output = f.output
	}
	if flags.Changed("json") {
		cfg.Report.JSONExport = f.jsonExport
	}
}

func newLatencyCmd(a *app) *cobra.Command {
	f := &latencyFlags{}

	cmd := &cobra.Command{
		Use:   "latency",
		Short: "Measure guardrail latency overhead against an unprotected baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a.cfg)
			if err := config.Validate(a.cfg); err != nil {
				return &bench.SetupError{Component: "config", Detail: "invalid flag value", Err: err}
			}
			return a.runLatency(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&f.configurations, "configurations", nil, "configurations to compare (baseline, guardrail, regex)")
	flags.IntVarP(&f.trials, "trials", "n", 0, "timed trials per configuration")
	flags.StringVar(&f.mode, "mode", "", "sequential or throughput")
	flags.IntVar(&f.concurrency, "concurrency", 0, "workers per configuration in throughput mode")
	flags.BoolVar(&f.interleave, "interleave", false, "alternate configurations trial by trial")
	flags.BoolVar(&f.monitor, "monitor", false, "serve live progress and metrics while running")
	flags.StringVar(&f.format, "format", "", "report format (text or markdown)")
	flags.StringVarP(&f.output, "output", "o", "", "write the report to a file instead of stdout")
	flags.StringVar(&f.jsonExport, "json", "", "write the full run as JSON to this path")

	return cmd
}

func (a *app) runLatency(ctx context.Context) error {
	cfg := a.cfg

	configurations, err := parseConfigurations(cfg.Benchmark.Configurations)
	if err != nil {
		return &bench.SetupError{Component: "benchmark", Detail: "invalid configuration list", Err: err}
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	run := report.NewRun("latency", cfg)
	log := a.logger.WithRunID(run.ID)

	st, err := a.openStore(ctx, log)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	client, err := invoker.NewClient(ctx, cfg, log)
	if err != nil {
		return err
	}

	var detector *privacy.Detector
	if slices.Contains(configurations, bench.ConfigRegex) {
		detector, err = privacy.New(cfg.Detection.Detectors, log)
		if err != nil {
			return &bench.SetupError{Component: "regex", Detail: "invalid detector list", Err: err}
		}
	}

	invokers, err := invoker.Build(configurations, client, detector, invoker.OptionsFromConfig(cfg), log)
	if err != nil {
		return err
	}

	var opts []collector.Option
	if cfg.Monitor.Enabled {
		mon := startMonitor(ctx, cfg.Monitor.Addr, run.ID, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mon.Stop(shutdownCtx); err != nil {
				log.Warn("Monitor shutdown failed", zap.Error(err))
			}
		}()
		opts = append(opts, collector.WithRecorder(mon))
	}

	col, err := collector.New(collector.Config{
		Trials:      cfg.Benchmark.Trials,
		Warmup:      cfg.Benchmark.Warmup,
		Mode:        bench.Mode(cfg.Benchmark.Mode),
		Concurrency: cfg.Benchmark.Concurrency,
		RateLimit:   cfg.Benchmark.RateLimit,
		Interleave:  cfg.Benchmark.Interleave,
	}, log, opts...)
	if err != nil {
		return err
	}

	log.Info("Starting latency benchmark",
		zap.Strings("configurations", cfg.Benchmark.Configurations),
		zap.Int("trials", cfg.Benchmark.Trials),
		zap.String("mode", cfg.Benchmark.Mode),
	)

	trials, err := col.Run(ctx, invokers, cfg.Benchmark.Prompts)
	if err != nil {
		if ctx.Err() == nil {
			return err
		}
		log.Warn("Benchmark interrupted, reporting partial results", zap.Int("trials", len(trials)))
	}

	policy := stats.Policy{
		MaxFailureRatio: cfg.Benchmark.MaxFailureRatio,
		MinSuccessful:   cfg.Benchmark.MinSuccessfulTrials,
	}
	comparison, err := stats.Compare(stats.AggregateAll(trials, policy))
	if err != nil && !errors.Is(err, stats.ErrNoBaseline) {
		return err
	}
	run.SetLatency(trials, comparison)
	run.Finish()

	out, err := a.openOutput()
	if err != nil {
		return err
	}
	defer out.Close()

	renderOpts := report.Options{Format: format}
	if err := report.RenderLatency(out, comparison, renderOpts); err != nil {
		return err
	}
	if err := report.RenderPrompts(out, run.Prompts, configurations, renderOpts); err != nil {
		return err
	}

	return a.export(ctx, st, run, log)
}

// startMonitor serves live progress in the background. A listen failure is
// logged and the benchmark carries on without it.
func startMonitor(ctx context.Context, addr, runID string, log *logger.Logger) *monitor.Monitor {
	mon := monitor.New(addr, runID, log)
	mon.Run(ctx)
	go func() {
		if err := mon.Start(); err != nil {
			log.Error("Monitor server failed", zap.Error(err))
		}
	}()
	return mon
}

func parseConfigurations(labels []string) ([]bench.Configuration, error) {
	if len(labels) == 0 {
		return nil, errors.New("at least one configuration is required")
	}
	configurations := make([]bench.Configuration, 0, len(labels))
	seen := make(map[bench.Configuration]bool)
	for _, label := range labels {
		c, err := bench.ParseConfiguration(label)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		configurations = append(configurations, c)
	}
	return configurations, nil
}
