package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	config := GetDefaults()

	v.SetConfigName("guardbench")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("$HOME/.guardbench/")

	// Environment variable overrides, e.g. GUARDBENCH_PROVIDER_GUARDRAIL_ID
	v.SetEnvPrefix("GUARDBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnv registers keys that have no file entry so AutomaticEnv can see them
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"provider.type", "provider.region", "provider.model_id",
		"provider.guardrail_id", "provider.guardrail_version", "provider.endpoint",
		"benchmark.trials", "benchmark.mode", "benchmark.call_timeout", "benchmark.interleave",
		"cache.enabled", "cache.redis_url",
		"store.enabled", "store.database_url",
		"monitor.enabled", "monitor.addr",
		"logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks a configuration. Callers that override loaded values must
// validate again.
func Validate(config *Config) error {
	if config.Provider.Type != "bedrock" && config.Provider.Type != "http" {
		return fmt.Errorf("invalid provider type: %s (must be bedrock or http)", config.Provider.Type)
	}

	if config.Provider.Type == "http" && config.Provider.Endpoint == "" {
		return fmt.Errorf("provider endpoint is required for the http provider")
	}

	if config.Benchmark.Trials <= 0 {
		return fmt.Errorf("invalid trial count: %d", config.Benchmark.Trials)
	}

	if config.Benchmark.Warmup < 0 {
		return fmt.Errorf("invalid warmup count: %d", config.Benchmark.Warmup)
	}

	if config.Benchmark.Mode != "sequential" && config.Benchmark.Mode != "throughput" {
		return fmt.Errorf("invalid benchmark mode: %s (must be sequential or throughput)", config.Benchmark.Mode)
	}

	if config.Benchmark.Mode == "throughput" && config.Benchmark.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d", config.Benchmark.Concurrency)
	}

	if config.Benchmark.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %s", config.Benchmark.CallTimeout)
	}

	if config.Benchmark.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %f", config.Benchmark.RateLimit)
	}

	if config.Benchmark.MaxFailureRatio < 0 || config.Benchmark.MaxFailureRatio > 1 {
		return fmt.Errorf("invalid max failure ratio: %f (must be within [0, 1])", config.Benchmark.MaxFailureRatio)
	}

	if config.Benchmark.MinSuccessfulTrials < 1 {
		return fmt.Errorf("min successful trials must be at least 1, got %d", config.Benchmark.MinSuccessfulTrials)
	}

	if len(config.Benchmark.Prompts) == 0 {
		return fmt.Errorf("at least one benchmark prompt is required")
	}

	if config.Stub.FailureRate < 0 || config.Stub.FailureRate > 1 {
		return fmt.Errorf("invalid stub failure rate: %f", config.Stub.FailureRate)
	}

	if config.Stub.ThrottleRPS < 0 {
		return fmt.Errorf("invalid stub throttle rate: %f", config.Stub.ThrottleRPS)
	}

	if config.Stub.BlockMode != "intervene" && config.Stub.BlockMode != "reject" {
		return fmt.Errorf("invalid stub block mode: %s (must be intervene or reject)", config.Stub.BlockMode)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Detection.MaxMissed < 0 {
		return fmt.Errorf("invalid max missed: %d", config.Detection.MaxMissed)
	}

	switch strings.ToLower(strings.TrimSpace(config.Report.Format)) {
	case "text", "markdown", "md":
	default:
		return fmt.Errorf("invalid report format: %s (must be text or markdown)", config.Report.Format)
	}

	return nil
}

// Watch re-reads the configuration file on change and hands every valid
// revision to callback. Invalid revisions are reported through onError.
func Watch(configPath string, callback func(*Config), onError func(error)) (*viper.Viper, error) {
	if configPath == "" {
		return nil, fmt.Errorf("a config file path is required to watch for changes")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			onError(fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			return
		}

		if err := Validate(newConfig); err != nil {
			onError(fmt.Errorf("ignoring invalid revision of %s: %w", e.Name, err))
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return v, nil
}
