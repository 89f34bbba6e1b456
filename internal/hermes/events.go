package hermes

import "time"

type RunCompletedEvent struct {
	RunID         string    `json:"run_id"`
	Kind          string    `json:"kind"`
	Strategy      string    `json:"strategy,omitempty"`
	ReferenceDate string    `json:"reference_date"`
	TaskCount     int       `json:"task_count"`
	CycleCount    int       `json:"cycle_count"`
	TopTaskIDs    []string  `json:"top_task_ids,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

type CyclesDetectedEvent struct {
	RunID  string     `json:"run_id"`
	Cycles [][]string `json:"cycles"`
}

type RetentionStatsEvent struct {
	Pruned        int64     `json:"pruned"`
	TotalRuns     int       `json:"total_runs"`
	AvgTaskCount  float64   `json:"avg_task_count"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}
