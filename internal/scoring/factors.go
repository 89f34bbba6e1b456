package scoring

import (
	"math"
	"time"
)

const (
	neutralScore = 0.5

	defaultHorizonDays = 30
	minHorizonDays     = 7

	overdueUrgencyCap  = 1.5
	overdueBonusCap    = 0.2
	dependentBonusCap  = 0.1
	dependentBonusStep = 0.02
)

// FactorResult captures one factor's contribution to the raw score.
type FactorResult struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// batchStats holds the normalization ranges shared by every task in a run.
type batchStats struct {
	minHours, maxHours           float64
	minImportance, maxImportance int
	dependents                   map[string]int
	maxDependents                int
	horizon                      int
}

func collectStats(tasks []Task, ref time.Time) batchStats {
	st := batchStats{
		minHours:      math.Inf(1),
		maxHours:      math.Inf(-1),
		minImportance: math.MaxInt,
		maxImportance: math.MinInt,
		dependents:    make(map[string]int, len(tasks)),
	}
	if len(tasks) == 0 {
		st.minHours, st.maxHours = 1.0, 1.0
		st.minImportance, st.maxImportance = 1, 10
	}

	minDays, maxDays := math.MaxInt, math.MinInt
	haveDue := false
	for _, t := range tasks {
		st.minHours = math.Min(st.minHours, t.EstimatedHours)
		st.maxHours = math.Max(st.maxHours, t.EstimatedHours)
		st.minImportance = min(st.minImportance, t.Importance)
		st.maxImportance = max(st.maxImportance, t.Importance)
		st.dependents[t.ID] = 0
		if t.DueDate != nil {
			days := daysBetween(ref, *t.DueDate)
			minDays = min(minDays, days)
			maxDays = max(maxDays, days)
			haveDue = true
		}
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := st.dependents[dep]; ok {
				st.dependents[dep]++
			}
		}
	}
	for _, n := range st.dependents {
		st.maxDependents = max(st.maxDependents, n)
	}

	st.horizon = defaultHorizonDays
	if haveDue {
		st.horizon = max(absInt(minDays), absInt(maxDays), minHorizonDays, defaultHorizonDays)
	}
	return st
}

// urgencyFactor decays linearly from 1.0 (due today) to 0.0 at the horizon.
// Overdue tasks score above 1.0, up to 1.5 after a week; the final clamp
// happens on the total.
func urgencyFactor(t Task, ref time.Time, horizon int) (FactorResult, *int) {
	if t.DueDate == nil {
		return FactorResult{Name: "urgency", Score: neutralScore}, nil
	}
	days := daysBetween(ref, *t.DueDate)
	var score float64
	if days < 0 {
		score = clamp(1.0+math.Min(math.Abs(float64(days))/7.0, 1.0), 0.0, overdueUrgencyCap)
	} else {
		score = clamp(1.0-float64(days)/float64(horizon), 0.0, 1.0)
	}
	return FactorResult{Name: "urgency", Score: score}, &days
}

func importanceFactor(t Task, st batchStats) FactorResult {
	if st.maxImportance == st.minImportance {
		return FactorResult{Name: "importance", Score: neutralScore}
	}
	score := (float64(t.Importance) - float64(st.minImportance)) / (float64(st.maxImportance) - float64(st.minImportance))
	return FactorResult{Name: "importance", Score: clamp(score, 0.0, 1.0)}
}

// effortFactor rewards quick wins: the lowest estimate in the batch scores 1.0.
func effortFactor(t Task, st batchStats) FactorResult {
	if st.maxHours == st.minHours {
		return FactorResult{Name: "effort", Score: neutralScore}
	}
	// halved so spans near math.MaxFloat64 do not overflow to +Inf
	score := 1.0 - (t.EstimatedHours/2-st.minHours/2)/(st.maxHours/2-st.minHours/2)
	return FactorResult{Name: "effort", Score: clamp(score, 0.0, 1.0)}
}

func dependencyFactor(t Task, st batchStats) FactorResult {
	if st.maxDependents == 0 {
		return FactorResult{Name: "dependencies", Score: 0.0}
	}
	score := float64(st.dependents[t.ID]) / float64(st.maxDependents)
	return FactorResult{Name: "dependencies", Score: score}
}

// heuristicBonus is added on top of the weighted score, before the final clamp.
func heuristicBonus(days *int, dependents int) float64 {
	var bonus float64
	if days != nil && *days < 0 {
		bonus += math.Min(math.Abs(float64(*days))/30.0, overdueBonusCap)
	}
	if dependents > 0 {
		bonus += math.Min(float64(dependents)*dependentBonusStep, dependentBonusCap)
	}
	return bonus
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
