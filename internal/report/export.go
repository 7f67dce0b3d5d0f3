package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/evaluator"
	"github.com/raaihank/guardbench/internal/stats"
)

const redacted = "[redacted]"

// Run is the exported record of one benchmark invocation
type Run struct {
	ID         string                         `json:"id"`
	Kind       string                         `json:"kind"`
	StartedAt  time.Time                      `json:"started_at"`
	FinishedAt time.Time                      `json:"finished_at"`
	Config     config.Config                  `json:"config"`
	Trials     []bench.Trial                  `json:"trials,omitempty"`
	Latency    *stats.Comparison              `json:"latency,omitempty"`
	Prompts    []stats.PromptRow              `json:"prompts,omitempty"`
	Flags      map[bench.Configuration]string `json:"insufficient_data,omitempty"`
	Detection  *evaluator.Result              `json:"detection,omitempty"`
}

// NewRun starts a run record with a fresh ID. Connection strings are
// redacted from the captured configuration.
func NewRun(kind string, cfg *config.Config) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
	if cfg != nil {
		run.Config = *cfg
		if run.Config.Store.DatabaseURL != "" {
			run.Config.Store.DatabaseURL = redacted
		}
		if run.Config.Cache.RedisURL != "" {
			run.Config.Cache.RedisURL = redacted
		}
	}
	return run
}

// SetLatency attaches the latency trials and their finalized comparison
func (r *Run) SetLatency(trials []bench.Trial, cmp stats.Comparison) {
	r.Trials = trials
	r.Latency = &cmp
	r.Prompts = stats.ByPrompt(trials)
	for _, res := range cmp.Results {
		if res.Insufficient == nil {
			continue
		}
		if r.Flags == nil {
			r.Flags = make(map[bench.Configuration]string)
		}
		r.Flags[res.Configuration] = res.Insufficient.Reason
	}
}

// SetDetection attaches the corpus evaluation
func (r *Run) SetDetection(result evaluator.Result) {
	r.Detection = &result
}

// Finish stamps the completion time
func (r *Run) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// WriteJSON writes the run to path as indented JSON
func WriteJSON(path string, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write run export: %w", err)
	}
	return nil
}
