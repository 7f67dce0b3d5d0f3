package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guardbench.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := GetDefaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
	if cfg.Benchmark.Mode != "sequential" {
		t.Errorf("Expected sequential default mode, got %s", cfg.Benchmark.Mode)
	}
	if len(cfg.Benchmark.Prompts) != len(DefaultPrompts) {
		t.Errorf("Expected %d default prompts, got %d", len(DefaultPrompts), len(cfg.Benchmark.Prompts))
	}
}

func TestLoad(t *testing.T) {
	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := writeConfig(t, `
provider:
  type: http
  endpoint: http://127.0.0.1:9000
  guardrail_id: gr-123
benchmark:
  trials: 5
  call_timeout: 2s
  prompts:
    - "hello there"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Provider.Type != "http" {
			t.Errorf("Expected http provider, got %s", cfg.Provider.Type)
		}
		if cfg.Provider.GuardrailID != "gr-123" {
			t.Errorf("Expected guardrail id gr-123, got %s", cfg.Provider.GuardrailID)
		}
		if cfg.Benchmark.Trials != 5 {
			t.Errorf("Expected 5 trials, got %d", cfg.Benchmark.Trials)
		}
		if cfg.Benchmark.CallTimeout != 2*time.Second {
			t.Errorf("Expected 2s timeout, got %s", cfg.Benchmark.CallTimeout)
		}
		if len(cfg.Benchmark.Prompts) != 1 || cfg.Benchmark.Prompts[0] != "hello there" {
			t.Errorf("Unexpected prompts: %v", cfg.Benchmark.Prompts)
		}
		// Untouched keys keep their defaults
		if cfg.Inference.MaxTokens != 512 {
			t.Errorf("Expected default max tokens 512, got %d", cfg.Inference.MaxTokens)
		}
	})

	t.Run("EnvironmentOverride", func(t *testing.T) {
		path := writeConfig(t, "benchmark:\n  trials: 5\n")
		t.Setenv("GUARDBENCH_BENCHMARK_TRIALS", "11")
		t.Setenv("GUARDBENCH_PROVIDER_GUARDRAIL_ID", "from-env")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Benchmark.Trials != 11 {
			t.Errorf("Expected env to override trials to 11, got %d", cfg.Benchmark.Trials)
		}
		if cfg.Provider.GuardrailID != "from-env" {
			t.Errorf("Expected guardrail id from env, got %q", cfg.Provider.GuardrailID)
		}
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Expected error for missing explicit config file")
		}
	})

	t.Run("InvalidMode", func(t *testing.T) {
		path := writeConfig(t, "benchmark:\n  mode: turbo\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected validation error for unknown mode")
		}
	})
}

func TestValidateReportFormatAliases(t *testing.T) {
	for _, format := range []string{"text", "markdown", "md", "Markdown"} {
		cfg := GetDefaults()
		cfg.Report.Format = format
		if err := Validate(cfg); err != nil {
			t.Errorf("Expected %q to be accepted: %v", format, err)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"ZeroTrials":        func(c *Config) { c.Benchmark.Trials = 0 },
		"NegativeWarmup":    func(c *Config) { c.Benchmark.Warmup = -1 },
		"FailureRatio":      func(c *Config) { c.Benchmark.MaxFailureRatio = 1.5 },
		"ZeroTimeout":       func(c *Config) { c.Benchmark.CallTimeout = 0 },
		"NoPrompts":         func(c *Config) { c.Benchmark.Prompts = nil },
		"HTTPNoEndpoint":    func(c *Config) { c.Provider.Type = "http"; c.Provider.Endpoint = "" },
		"UnknownProvider":   func(c *Config) { c.Provider.Type = "grpc" },
		"ThroughputNoPool":  func(c *Config) { c.Benchmark.Mode = "throughput"; c.Benchmark.Concurrency = 0 },
		"ReportFormat":      func(c *Config) { c.Report.Format = "html" },
		"StubBlockMode":     func(c *Config) { c.Stub.BlockMode = "drop" },
		"StubThrottle":      func(c *Config) { c.Stub.ThrottleRPS = -1 },
		"NegativeMaxMissed": func(c *Config) { c.Detection.MaxMissed = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := GetDefaults()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Expected validation error for %s", name)
			}
		})
	}
}
