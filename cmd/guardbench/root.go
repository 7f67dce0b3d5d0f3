package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/report"
	"github.com/raaihank/guardbench/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once flags are parsed
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "guardbench",
		Short: "Guardrail latency and PII detection benchmark",
		Long: `guardbench measures what a managed guardrail costs and what it catches.

Commands:
  guardbench latency      Compare baseline, guardrail and regex latency
  guardbench detect       Compare PII recall and precision on a labeled corpus
  guardbench serve-stub   Run a local stand-in for the generation service
  guardbench history      List stored runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newLatencyCmd(a))
	root.AddCommand(newDetectCmd(a))
	root.AddCommand(newServeStubCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newCacheCmd(a))
	root.AddCommand(newCorpusCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}

// setup loads configuration and builds the logger
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &bench.SetupError{Component: "config", Detail: "failed to load configuration", Err: err}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return &bench.SetupError{Component: "logger", Detail: "failed to initialize logger", Err: err}
	}

	a.cfg = cfg
	a.logger = log
	return nil
}

// openOutput returns where the report is written
func (a *app) openOutput() (io.WriteCloser, error) {
	if a.cfg.Report.Output == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(a.cfg.Report.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, nil
}

// openStore connects to the result store, or returns nil when it is disabled
func (a *app) openStore(ctx context.Context, log *logger.Logger) (*store.Store, error) {
	if !a.cfg.Store.Enabled {
		return nil, nil
	}
	st, err := store.NewStore(ctx, &store.Config{
		DatabaseURL:     a.cfg.Store.DatabaseURL,
		MaxOpenConns:    a.cfg.Store.MaxOpenConns,
		MaxIdleConns:    a.cfg.Store.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Store.ConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, &bench.SetupError{Component: "store", Detail: "result store unavailable", Err: err}
	}
	return st, nil
}

// export writes the JSON export and persists the run when configured.
// It runs after the benchmark, so ctx may already be cancelled.
func (a *app) export(ctx context.Context, st *store.Store, run *report.Run, log *logger.Logger) error {
	ctx = context.WithoutCancel(ctx)

	if path := a.cfg.Report.JSONExport; path != "" {
		if err := report.WriteJSON(path, run); err != nil {
			return err
		}
		log.Info("Run exported", zap.String("path", path))
	}

	if st != nil {
		if err := st.Persist(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Overrides the root hook, no configuration is needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "guardbench %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
