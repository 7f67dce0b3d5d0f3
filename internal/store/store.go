// Package store persists benchmark runs to PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/evaluator"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/report"
	"github.com/raaihank/guardbench/internal/stats"
	"go.uber.org/zap"
)

// trialBatchSize keeps a batch insert well under the Postgres parameter limit
const trialBatchSize = 500

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           UUID PRIMARY KEY,
		kind         TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ,
		provider     TEXT NOT NULL,
		model_id     TEXT NOT NULL,
		guardrail_id TEXT NOT NULL DEFAULT '',
		mode         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trials (
		id            BIGSERIAL PRIMARY KEY,
		run_id        UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		configuration TEXT NOT NULL,
		mode          TEXT NOT NULL,
		prompt        TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		ended_at      TIMESTAMPTZ NOT NULL,
		duration_us   BIGINT NOT NULL,
		check_us      BIGINT NOT NULL,
		latency_us    BIGINT NOT NULL,
		outcome       TEXT NOT NULL,
		error         TEXT NOT NULL DEFAULT '',
		pii_detected  BOOLEAN NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL
	)`,
	`ALTER TABLE trials ADD COLUMN IF NOT EXISTS latency_us BIGINT NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_trials_run_configuration ON trials (run_id, configuration)`,
	`CREATE TABLE IF NOT EXISTS results (
		run_id        UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		configuration TEXT NOT NULL,
		mode          TEXT NOT NULL,
		total         INTEGER NOT NULL,
		successful    INTEGER NOT NULL,
		failed        INTEGER NOT NULL,
		blocked       INTEGER NOT NULL,
		min_us        BIGINT NOT NULL,
		max_us        BIGINT NOT NULL,
		mean_us       BIGINT NOT NULL,
		median_us     BIGINT NOT NULL,
		stddev_us     BIGINT NOT NULL,
		p90_us        BIGINT NOT NULL,
		p95_us        BIGINT NOT NULL,
		p99_us        BIGINT NOT NULL,
		mean_check_us BIGINT NOT NULL,
		throughput    DOUBLE PRECISION NOT NULL,
		overhead_us   BIGINT,
		overhead_pct  DOUBLE PRECISION,
		insufficient  TEXT,
		PRIMARY KEY (run_id, configuration)
	)`,
	`CREATE TABLE IF NOT EXISTS detections (
		run_id          UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		method          TEXT NOT NULL,
		cases           INTEGER NOT NULL,
		true_positives  INTEGER NOT NULL,
		false_positives INTEGER NOT NULL,
		true_negatives  INTEGER NOT NULL,
		false_negatives INTEGER NOT NULL,
		errors          INTEGER NOT NULL,
		recall_ratio    DOUBLE PRECISION,
		precision_ratio DOUBLE PRECISION,
		mean_check_us   BIGINT NOT NULL,
		PRIMARY KEY (run_id, method)
	)`,
}

const (
	insertRun = `
		INSERT INTO runs (id, kind, started_at, finished_at, provider, model_id, guardrail_id, mode)
		VALUES (:id, :kind, :started_at, :finished_at, :provider, :model_id, :guardrail_id, :mode)
		ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at`

	insertTrials = `
		INSERT INTO trials (run_id, seq, configuration, mode, prompt, started_at, ended_at,
			duration_us, check_us, latency_us, outcome, error, pii_detected, input_tokens, output_tokens)
		VALUES (:run_id, :seq, :configuration, :mode, :prompt, :started_at, :ended_at,
			:duration_us, :check_us, :latency_us, :outcome, :error, :pii_detected, :input_tokens, :output_tokens)`

	insertResults = `
		INSERT INTO results (run_id, configuration, mode, total, successful, failed, blocked,
			min_us, max_us, mean_us, median_us, stddev_us, p90_us, p95_us, p99_us,
			mean_check_us, throughput, overhead_us, overhead_pct, insufficient)
		VALUES (:run_id, :configuration, :mode, :total, :successful, :failed, :blocked,
			:min_us, :max_us, :mean_us, :median_us, :stddev_us, :p90_us, :p95_us, :p99_us,
			:mean_check_us, :throughput, :overhead_us, :overhead_pct, :insufficient)
		ON CONFLICT (run_id, configuration) DO NOTHING`

	insertDetections = `
		INSERT INTO detections (run_id, method, cases, true_positives, false_positives,
			true_negatives, false_negatives, errors, recall_ratio, precision_ratio, mean_check_us)
		VALUES (:run_id, :method, :cases, :true_positives, :false_positives,
			:true_negatives, :false_negatives, :errors, :recall_ratio, :precision_ratio, :mean_check_us)
		ON CONFLICT (run_id, method) DO NOTHING`

	selectRecentRuns = `
		SELECT r.id, r.kind, r.started_at, r.finished_at, r.provider, r.model_id,
			r.guardrail_id, r.mode,
			(SELECT COUNT(*) FROM trials t WHERE t.run_id = r.id) AS trial_count
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT $1`

	selectResults = `
		SELECT * FROM results WHERE run_id = $1 ORDER BY configuration`
)

// Store handles run persistence with PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to the database and applies migrations
func NewStore(ctx context.Context, config *Config, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: log.WithComponent("store"),
	}

	if err := store.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	store.logger.Info("Result store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the connection and creates missing tables
func (s *Store) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	s.logger.Debug("Database migrations applied", zap.Int("statements", len(migrations)))
	return nil
}

// Persist saves a complete run in one transaction
func (s *Store) Persist(ctx context.Context, run *report.Run) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveRun(ctx, tx, run); err != nil {
		return err
	}
	if _, err := saveTrials(ctx, tx, run.ID, run.Trials); err != nil {
		return err
	}
	if run.Latency != nil {
		if err := saveResults(ctx, tx, run.ID, run.Latency.Results); err != nil {
			return err
		}
	}
	if run.Detection != nil {
		if err := saveDetection(ctx, tx, run.ID, run.Detection.Summaries); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Info("Run persisted",
		zap.String("run_id", run.ID),
		zap.Int("trials", len(run.Trials)))
	return nil
}

// SaveRun inserts the run row, updating the finish time if it already exists
func (s *Store) SaveRun(ctx context.Context, run *report.Run) error {
	return saveRun(ctx, s.db, run)
}

// SaveTrials batch-inserts the trials of a run
func (s *Store) SaveTrials(ctx context.Context, runID string, trials []bench.Trial) (int64, error) {
	return saveTrials(ctx, s.db, runID, trials)
}

// SaveResults inserts the per-configuration aggregates of a run
func (s *Store) SaveResults(ctx context.Context, runID string, results []stats.Result) error {
	return saveResults(ctx, s.db, runID, results)
}

// SaveDetection inserts the per-method detection summaries of a run
func (s *Store) SaveDetection(ctx context.Context, runID string, summaries []evaluator.Summary) error {
	return saveDetection(ctx, s.db, runID, summaries)
}

// RecentRuns lists the latest runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []RunRecord
	if err := s.db.SelectContext(ctx, &runs, selectRecentRuns, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Results returns the stored aggregates of one run
func (s *Store) Results(ctx context.Context, runID string) ([]ResultRecord, error) {
	var results []ResultRecord
	if err := s.db.SelectContext(ctx, &results, selectResults, runID); err != nil {
		return nil, fmt.Errorf("failed to load results for run %s: %w", runID, err)
	}
	return results, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func saveRun(ctx context.Context, db sqlx.ExtContext, run *report.Run) error {
	if _, err := sqlx.NamedExecContext(ctx, db, insertRun, newRunRecord(run)); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func saveTrials(ctx context.Context, db sqlx.ExtContext, runID string, trials []bench.Trial) (int64, error) {
	records := newTrialRecords(runID, trials)

	var inserted int64
	for _, batch := range batches(records, trialBatchSize) {
		res, err := sqlx.NamedExecContext(ctx, db, insertTrials, batch)
		if err != nil {
			return inserted, fmt.Errorf("batch insert of trials failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(batch))
		}
		inserted += n
	}
	return inserted, nil
}

func saveResults(ctx context.Context, db sqlx.ExtContext, runID string, results []stats.Result) error {
	if len(results) == 0 {
		return nil
	}
	if _, err := sqlx.NamedExecContext(ctx, db, insertResults, newResultRecords(runID, results)); err != nil {
		return fmt.Errorf("failed to insert results: %w", err)
	}
	return nil
}

func saveDetection(ctx context.Context, db sqlx.ExtContext, runID string, summaries []evaluator.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	if _, err := sqlx.NamedExecContext(ctx, db, insertDetections, newDetectionRecords(runID, summaries)); err != nil {
		return fmt.Errorf("failed to insert detection summaries: %w", err)
	}
	return nil
}

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// maskDatabaseURL masks the password of a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
