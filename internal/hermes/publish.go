package hermes

import (
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/Triage/internal/store"
)

const topTaskIDs = 3

// PublishRun announces a finished run, plus a cycles event when the batch
// had circular dependencies. Failures are logged, never returned.
func PublishRun(c Client, run *store.Run, logger *slog.Logger) {
	if c == nil || run == nil {
		return
	}
	runID := run.ID.String()

	if err := c.Publish(SubjectRunCompleted(runID), NewRunCompletedEvent(run)); err != nil {
		logger.Warn("failed to publish run completed", "run_id", runID, "error", err)
	}

	if len(run.Meta.Cycles) == 0 {
		return
	}
	cycles := make([][]string, len(run.Meta.Cycles))
	for i, cyc := range run.Meta.Cycles {
		cycles[i] = []string(cyc)
	}
	if err := c.Publish(SubjectCyclesDetected(runID), CyclesDetectedEvent{RunID: runID, Cycles: cycles}); err != nil {
		logger.Warn("failed to publish cycles", "run_id", runID, "error", err)
	}
}

func NewRunCompletedEvent(run *store.Run) RunCompletedEvent {
	var top []string
	for i, st := range run.Results {
		if i == topTaskIDs {
			break
		}
		top = append(top, st.ID)
	}
	ts := run.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return RunCompletedEvent{
		RunID:         run.ID.String(),
		Kind:          string(run.Kind),
		Strategy:      run.Strategy,
		ReferenceDate: run.ReferenceDate.Format("2006-01-02"),
		TaskCount:     run.TaskCount,
		CycleCount:    len(run.Meta.Cycles),
		TopTaskIDs:    top,
		DurationMs:    run.DurationMs,
		Timestamp:     ts,
	}
}
