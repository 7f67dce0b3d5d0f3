package invoker

import (
	"context"
	"fmt"

	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/logger"
)

// NewClient builds the transport selected by cfg.Provider.Type and checks it
// can reach the service before any trial is issued
func NewClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (Client, error) {
	switch cfg.Provider.Type {
	case "bedrock":
		return NewBedrockClient(ctx, cfg.Provider, cfg.Inference, log)
	case "http":
		client, err := NewHTTPClient(cfg.Provider, cfg.Inference, log)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider.Type)
	}
}

// OptionsFromConfig extracts invoker options from the benchmark settings
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:       cfg.Benchmark.CallTimeout,
		MaxInputChars: cfg.Benchmark.MaxInputChars,
	}
}
