package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/corpus"
	"github.com/raaihank/guardbench/internal/evaluator"
	"github.com/raaihank/guardbench/internal/stats"
)

func trials(configuration bench.Configuration, n int, latency, check time.Duration, outcome bench.Outcome) []bench.Trial {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]bench.Trial, n)
	for i := range out {
		out[i] = bench.Trial{
			Seq:           i,
			Configuration: configuration,
			Mode:          bench.ModeSequential,
			Prompt:        "What is the capital of France?",
			Start:         start,
			End:           start.Add(latency),
			CheckDuration: check,
			Outcome:       outcome,
			InputTokens:   7,
			OutputTokens:  12,
		}
	}
	return out
}

func comparison(t *testing.T, all []bench.Trial) stats.Comparison {
	t.Helper()
	cmp, err := stats.Compare(stats.AggregateAll(all, stats.DefaultPolicy()))
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	return cmp
}

func TestParseFormat(t *testing.T) {
	for label, want := range map[string]Format{"": FormatText, "text": FormatText, "Markdown": FormatMarkdown, "md": FormatMarkdown} {
		if got, err := ParseFormat(label); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", label, got, err)
		}
	}
	if _, err := ParseFormat("html"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestRenderLatency(t *testing.T) {
	var all []bench.Trial
	all = append(all, trials(bench.ConfigBaseline, 4, 1667*time.Millisecond, 0, bench.OutcomeSuccess)...)
	all = append(all, trials(bench.ConfigGuardrail, 3, 2192*time.Millisecond, 0, bench.OutcomeSuccess)...)
	all = append(all, trials(bench.ConfigGuardrail, 1, 2192*time.Millisecond, 0, bench.OutcomeBlocked)...)
	all = append(all, trials(bench.ConfigRegex, 4, 1667*time.Millisecond, 400*time.Microsecond, bench.OutcomeSuccess)...)

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderLatency(&buf, comparison(t, all), Options{Format: FormatText}); err != nil {
			t.Fatalf("RenderLatency failed: %v", err)
		}
		out := buf.String()

		for _, want := range []string{
			"Latency (sequential)",
			"Overhead %",
			"1667.0",
			"2192.0",
			"+525.0",
			"+31.5%",
			"+0.4",
			"1 (25.0%)",
			"regex mean check time: 0.4 ms",
			"guardrail vs regex: +524.6 ms",
			"tokens:",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("Output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderLatency(&buf, comparison(t, all), Options{Format: FormatMarkdown}); err != nil {
			t.Fatalf("RenderLatency failed: %v", err)
		}
		out := buf.String()
		if !strings.HasPrefix(out, "## Latency (sequential)") {
			t.Errorf("Expected markdown heading:\n%s", out)
		}
		if !strings.Contains(out, "|---") && !strings.Contains(out, "|--") {
			t.Errorf("Expected markdown separator row:\n%s", out)
		}
	})

	t.Run("BaselineUnavailable", func(t *testing.T) {
		var failing []bench.Trial
		failing = append(failing, trials(bench.ConfigBaseline, 3, time.Second, 0, bench.OutcomeTimeout)...)
		failing = append(failing, trials(bench.ConfigGuardrail, 3, time.Second, 0, bench.OutcomeSuccess)...)

		var buf bytes.Buffer
		if err := RenderLatency(&buf, comparison(t, failing), Options{}); err != nil {
			t.Fatalf("RenderLatency failed: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "baseline: insufficient data") {
			t.Errorf("Expected insufficient data flag:\n%s", out)
		}
		if !strings.Contains(out, "overhead unavailable") {
			t.Errorf("Expected overhead note:\n%s", out)
		}
		if !strings.Contains(out, "3/3") {
			t.Errorf("Expected failure tally:\n%s", out)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderLatency(&buf, stats.Comparison{}, Options{}); err != nil {
			t.Fatalf("RenderLatency failed: %v", err)
		}
		if !strings.Contains(buf.String(), "No latency results") {
			t.Errorf("Unexpected output: %s", buf.String())
		}
	})
}

func TestRenderPrompts(t *testing.T) {
	var all []bench.Trial
	all = append(all, trials(bench.ConfigBaseline, 2, time.Second, 0, bench.OutcomeSuccess)...)
	all = append(all, trials(bench.ConfigGuardrail, 2, 2*time.Second, 0, bench.OutcomeBlocked)...)

	var buf bytes.Buffer
	if err := RenderPrompts(&buf, stats.ByPrompt(all), bench.AllConfigurations, Options{}); err != nil {
		t.Fatalf("RenderPrompts failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Per-prompt breakdown", "What is the capital of France?", "1000.0", "2000.0", "guardrail"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderDetection(t *testing.T) {
	result := evaluator.Result{Summaries: []evaluator.Summary{
		{
			Method:           bench.MethodRegex,
			TruePositives:    8,
			FalseNegatives:   5,
			TrueNegatives:    6,
			Recall:           8.0 / 13.0,
			RecallDefined:    true,
			Precision:        1,
			PrecisionDefined: true,
			Missed: []corpus.Case{
				{Text: "john dot doe at example dot com", Expected: true, Category: corpus.CategoryObfuscatedEmail},
				{Text: "one two three, four five, six seven eight nine", Expected: true, Category: corpus.CategoryObfuscatedSSN},
			},
		},
		{Method: bench.MethodGuardrail, Errors: 19},
	}}

	var buf bytes.Buffer
	if err := RenderDetection(&buf, result, Options{MaxMissed: 1}); err != nil {
		t.Fatalf("RenderDetection failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"PII detection", "61.5%", "100.0%", "undefined", "Missed by regex (1 of 2 shown)", "john dot doe at example dot com"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "six seven eight nine") {
		t.Errorf("MaxMissed must cap the listed misses:\n%s", out)
	}
}

func TestWriteJSON(t *testing.T) {
	cfg := config.GetDefaults()
	run := NewRun("latency", cfg)
	if run.ID == "" || run.StartedAt.IsZero() {
		t.Fatalf("Run must carry an ID and start time: %+v", run)
	}

	var all []bench.Trial
	all = append(all, trials(bench.ConfigBaseline, 3, time.Second, 0, bench.OutcomeTimeout)...)
	all = append(all, trials(bench.ConfigGuardrail, 3, time.Second, 0, bench.OutcomeSuccess)...)
	run.SetLatency(all, comparison(t, all))
	run.Finish()

	path := filepath.Join(t.TempDir(), "run.json")
	if err := WriteJSON(path, run); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if strings.Contains(string(data), "guardbench:guardbench@") {
		t.Error("Export must not contain connection credentials")
	}

	var decoded Run
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}
	if decoded.ID != run.ID || len(decoded.Trials) != 6 {
		t.Errorf("Unexpected export: id=%s trials=%d", decoded.ID, len(decoded.Trials))
	}
	if decoded.Flags[bench.ConfigBaseline] == "" {
		t.Error("Insufficient data flags must be exported")
	}
	if cfg.Store.DatabaseURL == redacted {
		t.Error("NewRun must not modify the caller's configuration")
	}
}
