package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/stub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeStubCmd(a *app) *cobra.Command {
	var (
		port        int
		blockMode   string
		failureRate float64
	)

	cmd := &cobra.Command{
		Use:   "serve-stub",
		Short: "Serve a simulated generation and guardrail service",
		Long: `serve-stub answers the same invoke and apply-guardrail calls as the managed
service, with a configurable latency profile. Point provider.endpoint at it and
set provider.type to http to benchmark without cloud credentials.

When --config names a file, edits to its stub section are applied live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("port") {
				a.cfg.Stub.Port = port
			}
			if flags.Changed("block-mode") {
				a.cfg.Stub.BlockMode = blockMode
			}
			if flags.Changed("failure-rate") {
				a.cfg.Stub.FailureRate = failureRate
			}
			return a.runStub(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port")
	cmd.Flags().StringVar(&blockMode, "block-mode", "", "how blocks are reported (intervene or reject)")
	cmd.Flags().Float64Var(&failureRate, "failure-rate", 0, "share of calls answered with a service error")

	return cmd
}

func (a *app) runStub(ctx context.Context) error {
	log := a.logger

	server, err := stub.New(a.cfg.Stub, a.cfg.Provider.GuardrailID, log)
	if err != nil {
		return &bench.SetupError{Component: "stub", Detail: "failed to create stub service", Err: err}
	}

	if a.configPath != "" {
		_, err := config.Watch(a.configPath,
			func(cfg *config.Config) {
				server.UpdateConfig(cfg.Stub)
			},
			func(err error) {
				log.Warn("Configuration reload rejected", zap.Error(err))
			},
		)
		if err != nil {
			log.Warn("Configuration hot reload disabled", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return &bench.SetupError{Component: "stub", Detail: "server failed", Err: err}
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down stub service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}

	log.Info("Stub service stopped")
	return nil
}
