package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps run history in a local file. It is the default backend
// when no database URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS triage_runs (
	run_id         TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	strategy       TEXT NOT NULL DEFAULT '',
	reference_date TEXT NOT NULL,
	task_count     INTEGER NOT NULL,
	cycle_count    INTEGER NOT NULL,
	duration_ms    INTEGER NOT NULL,
	meta           TEXT NOT NULL,
	results        TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS triage_runs_created_at_idx ON triage_runs (created_at DESC);
`

const sqliteDateLayout = "2006-01-02"

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	metaJSON, resultsJSON, err := prepare(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triage_runs (run_id, kind, strategy, reference_date, task_count,
			cycle_count, duration_ms, meta, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), string(run.Kind), run.Strategy, run.ReferenceDate.Format(sqliteDateLayout),
		run.TaskCount, run.CycleCount, run.DurationMs, string(metaJSON), string(resultsJSON),
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

type sqliteRow struct {
	id, kind, refDate string
	createdAt         int64
	meta, results     string
}

func (r *sqliteRow) run() (*Run, error) {
	id, err := uuid.Parse(r.id)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", r.id, err)
	}
	ref, err := time.Parse(sqliteDateLayout, r.refDate)
	if err != nil {
		return nil, fmt.Errorf("parse reference date %q: %w", r.refDate, err)
	}
	return &Run{
		ID:            id,
		Kind:          RunKind(r.kind),
		ReferenceDate: ref,
		CreatedAt:     time.UnixMilli(r.createdAt).UTC(),
	}, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var row sqliteRow
	var strategy string
	var taskCount, cycleCount int
	var durationMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT `+runSummaryColumns+`, meta, results
		FROM triage_runs WHERE run_id = ?`, id.String(),
	).Scan(&row.id, &row.kind, &strategy, &row.refDate, &taskCount, &cycleCount, &durationMs, &row.createdAt, &row.meta, &row.results)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r, err := row.run()
	if err != nil {
		return nil, err
	}
	r.Strategy, r.TaskCount, r.CycleCount, r.DurationMs = strategy, taskCount, cycleCount, durationMs
	if err := decodeRun(r, []byte(row.meta), []byte(row.results)); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	where, args := whereClause(filter,
		func(int) string { return "?" },
		func(t time.Time) any { return t.UnixMilli() },
	)
	rows, err := s.db.QueryContext(ctx, `SELECT `+runSummaryColumns+`, meta FROM triage_runs`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var row sqliteRow
		var strategy string
		var taskCount, cycleCount int
		var durationMs int64
		if err := rows.Scan(&row.id, &row.kind, &strategy, &row.refDate, &taskCount, &cycleCount, &durationMs, &row.createdAt, &row.meta); err != nil {
			return nil, err
		}
		r, err := row.run()
		if err != nil {
			return nil, err
		}
		r.Strategy, r.TaskCount, r.CycleCount, r.DurationMs = strategy, taskCount, cycleCount, durationMs
		if err := decodeRun(r, []byte(row.meta), nil); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*RunStats, error) {
	st := &RunStats{}
	err := s.db.QueryRowContext(ctx, statsQuery).Scan(
		&st.TotalRuns, &st.AnalyzeRuns, &st.SuggestRuns, &st.CycleRuns,
		&st.RunsWithCycles, &st.AvgTaskCount, &st.AvgDurationMs,
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM triage_runs WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
