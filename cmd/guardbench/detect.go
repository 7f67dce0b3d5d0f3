package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/cache"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/corpus"
	"github.com/raaihank/guardbench/internal/evaluator"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/privacy"
	"github.com/raaihank/guardbench/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type detectFlags struct {
	corpus     string
	methods    []string
	maxMissed  int
	noCache    bool
	format     string
	output     string
	jsonExport string
}

func (f *detectFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("corpus") {
		cfg.Detection.CorpusPath = f.corpus
	}
	if flags.Changed("methods") {
		cfg.Detection.Methods = f.methods
	}
	if flags.Changed("max-missed") {
		cfg.Detection.MaxMissed = f.maxMissed
	}
	if f.noCache {
		cfg.Cache.Enabled = false
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

func newDetectCmd(a *app) *cobra.Command {
	f := &detectFlags{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Compare PII recall and precision of regex and guardrail detection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a.cfg)
			if err := config.Validate(a.cfg); err != nil {
				return &bench.SetupError{Component: "config", Detail: "invalid flag value", Err: err}
			}
			return a.runDetect(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.corpus, "corpus", "", "labeled corpus file (csv, json or parquet); empty uses the built-in corpus")
	flags.StringSliceVar(&f.methods, "methods", nil, "detection methods to compare (regex, guardrail)")
	flags.IntVar(&f.maxMissed, "max-missed", 0, "missed cases listed per method")
	flags.BoolVar(&f.noCache, "no-cache", false, "always call the guardrail, ignoring the verdict cache")
	flags.StringVar(&f.format, "format", "", "report format (text or markdown)")
	flags.StringVarP(&f.output, "output", "o", "", "write the report to a file instead of stdout")
	flags.StringVar(&f.jsonExport, "json", "", "write the full run as JSON to this path")

	return cmd
}

func (a *app) runDetect(ctx context.Context) error {
	cfg := a.cfg

	methods, err := parseMethods(cfg.Detection.Methods)
	if err != nil {
		return &bench.SetupError{Component: "detection", Detail: "invalid method list", Err: err}
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	run := report.NewRun("detect", cfg)
	log := a.logger.WithRunID(run.ID)

	st, err := a.openStore(ctx, log)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	loaded, err := corpus.NewLoader(log).Load(ctx, cfg.Detection.CorpusPath)
	if err != nil {
		return &bench.SetupError{Component: "corpus", Detail: "failed to load corpus", Err: err}
	}
	if loaded.Invalid > 0 {
		log.Warn("Skipped invalid corpus rows", zap.Int64("invalid", loaded.Invalid), zap.Strings("errors", loaded.Errors))
	}

	detectors := make([]evaluator.Detector, 0, len(methods))
	for _, m := range methods {
		switch m {
		case bench.MethodRegex:
			d, err := privacy.New(cfg.Detection.Detectors, log)
			if err != nil {
				return &bench.SetupError{Component: "regex", Detail: "invalid detector list", Err: err}
			}
			detectors = append(detectors, evaluator.NewRegexDetector(d))
		case bench.MethodGuardrail:
			checker, release, err := a.guardrailChecker(ctx, log)
			if err != nil {
				return err
			}
			defer release()
			detectors = append(detectors, evaluator.NewGuardrailDetector(checker))
		}
	}

	result, err := evaluator.New(log).Evaluate(ctx, loaded.Cases, detectors)
	if err != nil {
		if ctx.Err() == nil {
			return err
		}
		log.Warn("Evaluation interrupted, reporting partial results", zap.Int("outcomes", len(result.Outcomes)))
	}
	run.SetDetection(result)
	run.Finish()

	out, err := a.openOutput()
	if err != nil {
		return err
	}
	defer out.Close()

	if err := report.RenderDetection(out, result, report.Options{Format: format, MaxMissed: cfg.Detection.MaxMissed}); err != nil {
		return err
	}

	return a.export(ctx, st, run, log)
}

// guardrailChecker builds the guardrail-only PII check, behind the verdict
// cache when one is configured. release must be called once evaluation ends.
func (a *app) guardrailChecker(ctx context.Context, log *logger.Logger) (invoker.PIIChecker, func(), error) {
	client, err := invoker.NewClient(ctx, a.cfg, log)
	if err != nil {
		return nil, nil, err
	}
	protected, err := invoker.NewProtected(client, invoker.OptionsFromConfig(a.cfg), log)
	if err != nil {
		return nil, nil, err
	}
	if !a.cfg.Cache.Enabled {
		return protected, func() {}, nil
	}

	vc, err := openCache(ctx, a.cfg, log)
	if err != nil {
		return nil, nil, err
	}
	scope := fmt.Sprintf("%s:%s", a.cfg.Provider.GuardrailID, a.cfg.Provider.GuardrailVersion)

	release := func() {
		if stats, err := vc.Stats(context.WithoutCancel(ctx)); err == nil {
			log.Info("Verdict cache usage",
				zap.Int64("hits", stats.Hits),
				zap.Int64("misses", stats.Misses),
				zap.Float64("hit_rate", stats.HitRate),
			)
		}
		vc.Close()
	}
	return cache.NewCachedChecker(protected, vc, scope), release, nil
}

func openCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (*cache.VerdictCache, error) {
	vc, err := cache.NewVerdictCache(ctx, &cache.Config{
		RedisURL:       cfg.Cache.RedisURL,
		MaxConnections: cfg.Cache.MaxConnections,
		MinIdleConns:   cfg.Cache.MinIdleConns,
		DefaultTTL:     cfg.Cache.DefaultTTL,
		KeyPrefix:      cfg.Cache.KeyPrefix,
	}, log)
	if err != nil {
		return nil, &bench.SetupError{Component: "cache", Detail: "verdict cache unavailable", Err: err}
	}
	return vc, nil
}

func parseMethods(labels []string) ([]bench.Method, error) {
	if len(labels) == 0 {
		return nil, errors.New("at least one detection method is required")
	}
	methods := make([]bench.Method, 0, len(labels))
	seen := make(map[bench.Method]bool)
	for _, label := range labels {
		m, err := bench.ParseMethod(label)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	return methods, nil
}
