package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS triage_runs (
	run_id         UUID PRIMARY KEY,
	kind           TEXT NOT NULL,
	strategy       TEXT NOT NULL DEFAULT '',
	reference_date DATE NOT NULL,
	task_count     INTEGER NOT NULL,
	cycle_count    INTEGER NOT NULL,
	duration_ms    BIGINT NOT NULL,
	meta           JSONB NOT NULL,
	results        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS triage_runs_created_at_idx ON triage_runs (created_at DESC);
`

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const runSummaryColumns = `run_id, kind, strategy, reference_date, task_count, cycle_count, duration_ms, created_at`

func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	metaJSON, resultsJSON, err := prepare(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO triage_runs (run_id, kind, strategy, reference_date, task_count,
			cycle_count, duration_ms, meta, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, string(run.Kind), run.Strategy, run.ReferenceDate, run.TaskCount,
		run.CycleCount, run.DurationMs, metaJSON, resultsJSON, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	r := &Run{}
	var kind string
	var metaJSON, resultsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT `+runSummaryColumns+`, meta, results
		FROM triage_runs WHERE run_id = $1`, id,
	).Scan(
		&r.ID, &kind, &r.Strategy, &r.ReferenceDate, &r.TaskCount, &r.CycleCount, &r.DurationMs, &r.CreatedAt,
		&metaJSON, &resultsJSON,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Kind = RunKind(kind)
	if err := decodeRun(r, metaJSON, resultsJSON); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	where, args := whereClause(filter,
		func(n int) string { return fmt.Sprintf("$%d", n) },
		func(t time.Time) any { return t },
	)
	rows, err := s.pool.Query(ctx, `SELECT `+runSummaryColumns+`, meta FROM triage_runs`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var kind string
		var metaJSON []byte
		if err := rows.Scan(&r.ID, &kind, &r.Strategy, &r.ReferenceDate, &r.TaskCount, &r.CycleCount, &r.DurationMs, &r.CreatedAt, &metaJSON); err != nil {
			return nil, err
		}
		r.Kind = RunKind(kind)
		if err := decodeRun(r, metaJSON, nil); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) GetStats(ctx context.Context) (*RunStats, error) {
	st := &RunStats{}
	err := s.pool.QueryRow(ctx, statsQuery).Scan(
		&st.TotalRuns, &st.AnalyzeRuns, &st.SuggestRuns, &st.CycleRuns,
		&st.RunsWithCycles, &st.AvgTaskCount, &st.AvgDurationMs,
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *PostgresStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM triage_runs WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
