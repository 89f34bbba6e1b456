package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Triage/internal/scoring"
)

type RunKind string

const (
	RunKindAnalyze RunKind = "analyze"
	RunKindSuggest RunKind = "suggest"
	RunKindCycles  RunKind = "cycles"
)

// Run is one recorded engine invocation.
type Run struct {
	ID            uuid.UUID `json:"run_id"`
	Kind          RunKind   `json:"kind"`
	Strategy      string    `json:"strategy,omitempty"`
	ReferenceDate time.Time `json:"reference_date"`
	TaskCount     int       `json:"task_count"`
	CycleCount    int       `json:"cycle_count"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`

	Meta    scoring.RunMetadata  `json:"meta"`
	Results []scoring.ScoredTask `json:"results,omitempty"`
}

type RunFilter struct {
	Kind   *RunKind
	Since  *time.Time
	Limit  int
	Offset int
}

type RunStats struct {
	TotalRuns      int     `json:"total_runs"`
	AnalyzeRuns    int     `json:"analyze_runs"`
	SuggestRuns    int     `json:"suggest_runs"`
	CycleRuns      int     `json:"cycle_runs"`
	RunsWithCycles int     `json:"runs_with_cycles"`
	AvgTaskCount   float64 `json:"avg_task_count"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
}

// Store persists run history. GetRun returns nil, nil when the run does not exist.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	GetStats(ctx context.Context) (*RunStats, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

const defaultListLimit = 50

const statsQuery = `
	SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN kind = 'analyze' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'suggest' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'cycles' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN cycle_count > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(CAST(AVG(task_count) AS DOUBLE PRECISION), 0),
		COALESCE(CAST(AVG(duration_ms) AS DOUBLE PRECISION), 0)
	FROM triage_runs`

// prepare fills in the identity fields and encodes the JSON columns.
func prepare(run *Run) (metaJSON, resultsJSON []byte, err error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.CycleCount = len(run.Meta.Cycles)

	metaJSON, err = json.Marshal(run.Meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode run meta: %w", err)
	}
	results := run.Results
	if results == nil {
		results = []scoring.ScoredTask{}
	}
	resultsJSON, err = json.Marshal(results)
	if err != nil {
		return nil, nil, fmt.Errorf("encode run results: %w", err)
	}
	return metaJSON, resultsJSON, nil
}

func decodeRun(run *Run, metaJSON, resultsJSON []byte) error {
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &run.Meta); err != nil {
			return fmt.Errorf("decode run meta: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
			return fmt.Errorf("decode run results: %w", err)
		}
	}
	return nil
}

// whereClause renders the filter with the driver's placeholder style.
func whereClause(filter RunFilter, placeholder func(n int) string, since func(time.Time) any) (string, []any) {
	clause := " WHERE 1=1"
	args := []any{}
	n := 0

	if filter.Kind != nil {
		n++
		clause += " AND kind = " + placeholder(n)
		args = append(args, string(*filter.Kind))
	}
	if filter.Since != nil {
		n++
		clause += " AND created_at >= " + placeholder(n)
		args = append(args, since(*filter.Since))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	clause += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)
	if filter.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return clause, args
}
