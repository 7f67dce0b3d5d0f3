package store

import (
	"database/sql"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/evaluator"
	"github.com/raaihank/guardbench/internal/report"
	"github.com/raaihank/guardbench/internal/stats"
)

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// RunRecord is a row of the runs table
type RunRecord struct {
	ID          string       `db:"id" json:"id"`
	Kind        string       `db:"kind" json:"kind"`
	StartedAt   time.Time    `db:"started_at" json:"started_at"`
	FinishedAt  sql.NullTime `db:"finished_at" json:"-"`
	Provider    string       `db:"provider" json:"provider"`
	ModelID     string       `db:"model_id" json:"model_id"`
	GuardrailID string       `db:"guardrail_id" json:"guardrail_id"`
	Mode        string       `db:"mode" json:"mode"`
	TrialCount  int64        `db:"trial_count" json:"trial_count"`
}

// TrialRecord is a row of the trials table. Durations are stored in microseconds;
// latency_us is the caller-observed time, duration_us plus check_us.
type TrialRecord struct {
	RunID         string    `db:"run_id"`
	Seq           int       `db:"seq"`
	Configuration string    `db:"configuration"`
	Mode          string    `db:"mode"`
	Prompt        string    `db:"prompt"`
	StartedAt     time.Time `db:"started_at"`
	EndedAt       time.Time `db:"ended_at"`
	DurationUS    int64     `db:"duration_us"`
	CheckUS       int64     `db:"check_us"`
	LatencyUS     int64     `db:"latency_us"`
	Outcome       string    `db:"outcome"`
	Error         string    `db:"error"`
	PIIDetected   bool      `db:"pii_detected"`
	InputTokens   int       `db:"input_tokens"`
	OutputTokens  int       `db:"output_tokens"`
}

// ResultRecord is a row of the results table. Latency statistics are taken
// over the trials' latency_us.
type ResultRecord struct {
	RunID         string          `db:"run_id"`
	Configuration string          `db:"configuration"`
	Mode          string          `db:"mode"`
	Total         int             `db:"total"`
	Successful    int             `db:"successful"`
	Failed        int             `db:"failed"`
	Blocked       int             `db:"blocked"`
	MinUS         int64           `db:"min_us"`
	MaxUS         int64           `db:"max_us"`
	MeanUS        int64           `db:"mean_us"`
	MedianUS      int64           `db:"median_us"`
	StdDevUS      int64           `db:"stddev_us"`
	P90US         int64           `db:"p90_us"`
	P95US         int64           `db:"p95_us"`
	P99US         int64           `db:"p99_us"`
	MeanCheckUS   int64           `db:"mean_check_us"`
	Throughput    float64         `db:"throughput"`
	OverheadUS    sql.NullInt64   `db:"overhead_us"`
	OverheadPct   sql.NullFloat64 `db:"overhead_pct"`
	Insufficient  sql.NullString  `db:"insufficient"`
}

// DetectionRecord is a row of the detections table
type DetectionRecord struct {
	RunID          string          `db:"run_id"`
	Method         string          `db:"method"`
	Cases          int             `db:"cases"`
	TruePositives  int             `db:"true_positives"`
	FalsePositives int             `db:"false_positives"`
	TrueNegatives  int             `db:"true_negatives"`
	FalseNegatives int             `db:"false_negatives"`
	Errors         int             `db:"errors"`
	Recall         sql.NullFloat64 `db:"recall_ratio"`
	Precision      sql.NullFloat64 `db:"precision_ratio"`
	MeanCheckUS    int64           `db:"mean_check_us"`
}

func micros(d time.Duration) int64 {
	return d.Microseconds()
}

func newRunRecord(run *report.Run) RunRecord {
	rec := RunRecord{
		ID:          run.ID,
		Kind:        run.Kind,
		StartedAt:   run.StartedAt,
		Provider:    run.Config.Provider.Type,
		ModelID:     run.Config.Provider.ModelID,
		GuardrailID: run.Config.Provider.GuardrailID,
		Mode:        run.Config.Benchmark.Mode,
		TrialCount:  int64(len(run.Trials)),
	}
	if !run.FinishedAt.IsZero() {
		rec.FinishedAt = sql.NullTime{Time: run.FinishedAt, Valid: true}
	}
	return rec
}

func newTrialRecords(runID string, trials []bench.Trial) []TrialRecord {
	records := make([]TrialRecord, len(trials))
	for i, t := range trials {
		records[i] = TrialRecord{
			RunID:         runID,
			Seq:           t.Seq,
			Configuration: string(t.Configuration),
			Mode:          string(t.Mode),
			Prompt:        t.Prompt,
			StartedAt:     t.Start,
			EndedAt:       t.End,
			DurationUS:    micros(t.Duration()),
			CheckUS:       micros(t.CheckDuration),
			LatencyUS:     micros(t.Latency()),
			Outcome:       string(t.Outcome),
			Error:         t.Error,
			PIIDetected:   t.PIIDetected,
			InputTokens:   t.InputTokens,
			OutputTokens:  t.OutputTokens,
		}
	}
	return records
}

func newResultRecords(runID string, results []stats.Result) []ResultRecord {
	records := make([]ResultRecord, len(results))
	for i, r := range results {
		rec := ResultRecord{
			RunID:         runID,
			Configuration: string(r.Configuration),
			Mode:          string(r.Mode),
			Total:         r.Total,
			Successful:    r.Successful,
			Failed:        r.Failed,
			Blocked:       r.Blocked,
			MinUS:         micros(r.Latency.Min),
			MaxUS:         micros(r.Latency.Max),
			MeanUS:        micros(r.Latency.Mean),
			MedianUS:      micros(r.Latency.Median),
			StdDevUS:      micros(r.Latency.StdDev),
			P90US:         micros(r.Latency.P90),
			P95US:         micros(r.Latency.P95),
			P99US:         micros(r.Latency.P99),
			MeanCheckUS:   micros(r.MeanCheck),
			Throughput:    r.Throughput,
		}
		if r.Overhead != nil {
			rec.OverheadUS = sql.NullInt64{Int64: micros(r.Overhead.Absolute), Valid: true}
			rec.OverheadPct = sql.NullFloat64{Float64: r.Overhead.Percent, Valid: true}
		}
		if r.Insufficient != nil {
			rec.Insufficient = sql.NullString{String: r.Insufficient.Reason, Valid: true}
		}
		records[i] = rec
	}
	return records
}

func newDetectionRecords(runID string, summaries []evaluator.Summary) []DetectionRecord {
	records := make([]DetectionRecord, len(summaries))
	for i, s := range summaries {
		records[i] = DetectionRecord{
			RunID:          runID,
			Method:         string(s.Method),
			Cases:          s.Cases,
			TruePositives:  s.TruePositives,
			FalsePositives: s.FalsePositives,
			TrueNegatives:  s.TrueNegatives,
			FalseNegatives: s.FalseNegatives,
			Errors:         s.Errors,
			Recall:         sql.NullFloat64{Float64: s.Recall, Valid: s.RecallDefined},
			Precision:      sql.NullFloat64{Float64: s.Precision, Valid: s.PrecisionDefined},
			MeanCheckUS:    micros(s.MeanLatency),
		}
	}
	return records
}
