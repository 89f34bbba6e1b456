package scoring

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Details is the per-task breakdown of normalized components.
type Details struct {
	Urgency          float64 `json:"urgency"`
	ImportanceNorm   float64 `json:"importance_norm"`
	EffortScore      float64 `json:"effort_score"`
	DependenciesNorm float64 `json:"dependencies_norm"`
	Dependents       int     `json:"dependents"`
	DaysToDue        *int    `json:"days_to_due"`
}

// ScoredTask is one ranked entry in an engine result.
type ScoredTask struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Raw         map[string]any `json:"raw"`
	Score       float64        `json:"score"`
	Details     Details        `json:"details"`
	Factors     []FactorResult `json:"factors"`
	Explanation string         `json:"explanation"`
}

// RunMetadata describes the parameters a ranking was computed with.
type RunMetadata struct {
	Weights     WeightSet `json:"weights"`
	Cycles      []Cycle   `json:"cycles"`
	HorizonDays int       `json:"horizon_days"`
}

// Engine ranks task batches. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger disables run logging.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Rank parses raw task records and ranks them. The reference date is the
// "today" that due dates are measured against.
func (e *Engine) Rank(raw []map[string]any, overrides map[string]any, ref time.Time) ([]ScoredTask, RunMetadata, error) {
	tasks, err := ParseTasks(raw)
	if err != nil {
		return nil, RunMetadata{}, err
	}
	ranked, meta := e.RankTasks(tasks, overrides, ref)
	return ranked, meta, nil
}

// RankTasks ranks already-parsed tasks.
func (e *Engine) RankTasks(tasks []Task, overrides map[string]any, ref time.Time) ([]ScoredTask, RunMetadata) {
	weights := ResolveWeights(overrides)
	ref = civilDate(ref)

	st := collectStats(tasks, ref)
	cycles := FindCycles(tasks)

	scored := make([]ScoredTask, 0, len(tasks))
	for _, t := range tasks {
		scored = append(scored, scoreTask(t, weights, st, ref))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if e != nil && e.logger != nil {
		e.logger.Debug("ranked tasks",
			"tasks", len(scored),
			"cycles", len(cycles),
			"horizon_days", st.horizon,
			"reference_date", ref.Format(time.DateOnly),
		)
	}

	return scored, RunMetadata{Weights: weights, Cycles: cycles, HorizonDays: st.horizon}
}

func scoreTask(t Task, w WeightSet, st batchStats, ref time.Time) ScoredTask {
	urgency, days := urgencyFactor(t, ref, st.horizon)
	factors := []FactorResult{
		urgency,
		importanceFactor(t, st),
		effortFactor(t, st),
		dependencyFactor(t, st),
	}

	weights := []float64{w.Urgency, w.Importance, w.Effort, w.Dependencies}
	var raw float64
	for i := range factors {
		factors[i].Weight = weights[i]
		factors[i].Weighted = factors[i].Score * weights[i]
		raw += factors[i].Weighted
	}

	dependents := st.dependents[t.ID]
	score := clamp(raw+heuristicBonus(days, dependents), 0.0, 1.0)

	return ScoredTask{
		ID:    t.ID,
		Title: t.Title,
		Raw:   t.Raw,
		Score: round4(score),
		Details: Details{
			Urgency:          round4(factors[0].Score),
			ImportanceNorm:   round4(factors[1].Score),
			EffortScore:      round4(factors[2].Score),
			DependenciesNorm: round4(factors[3].Score),
			Dependents:       dependents,
			DaysToDue:        days,
		},
		Factors:     factors,
		Explanation: explain(factors, days),
	}
}

func explain(factors []FactorResult, days *int) string {
	parts := []string{
		fmt.Sprintf("urgency=%.2f", factors[0].Score),
		fmt.Sprintf("importance=%.2f", factors[1].Score),
		fmt.Sprintf("effort_quickwin=%.2f", factors[2].Score),
		fmt.Sprintf("dependencies_impact=%.2f", factors[3].Score),
	}
	if days != nil {
		parts = append(parts, fmt.Sprintf("due_in=%dd", *days))
	} else {
		parts = append(parts, "no_due_date")
	}
	return strings.Join(parts, "; ")
}

// round4 rounds to four decimals using the shortest correctly rounded
// decimal representation.
func round4(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 4, 64), 64)
	return r
}
