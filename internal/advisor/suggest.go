package advisor

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/Triage/internal/scoring"
)

const highSignal = 0.75

// Suggestion is a ranked task with a short human-readable reason attached.
type Suggestion struct {
	scoring.ScoredTask
	SuggestionReason string `json:"suggestion_reason"`
}

// Suggest returns the first top entries of an already ranked list, each with
// a reason. A non-positive top yields no suggestions.
func Suggest(ranked []scoring.ScoredTask, top int) []Suggestion {
	if top < 0 {
		top = 0
	}
	top = min(top, len(ranked))

	out := make([]Suggestion, 0, top)
	for _, st := range ranked[:top] {
		out = append(out, Suggestion{ScoredTask: st, SuggestionReason: Reason(st.Details)})
	}
	return out
}

// Reason explains in a few words why a task ranks where it does.
func Reason(d scoring.Details) string {
	var reasons []string
	if d.DaysToDue != nil && *d.DaysToDue <= 0 {
		reasons = append(reasons, "Past-due or due today")
	}
	if d.Dependents > 0 {
		reasons = append(reasons, fmt.Sprintf("Blocks %d other task(s)", d.Dependents))
	}
	if d.ImportanceNorm >= highSignal {
		reasons = append(reasons, "High importance")
	}
	if d.EffortScore >= highSignal {
		reasons = append(reasons, "Quick win (low effort)")
	}
	if len(reasons) == 0 {
		return "Balanced priority based on score"
	}
	return strings.Join(reasons, "; ")
}
