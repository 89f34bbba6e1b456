package scoring

// Frontier returns the ids of tasks that no other task beats on every factor
// (urgency, importance, effort and dependencies, higher is better), in the
// order they appear in ranked. O(n^2) dominance check.
func Frontier(ranked []ScoredTask) []string {
	out := make([]string, 0, len(ranked))
	for i := range ranked {
		dominated := false
		for j := range ranked {
			if i != j && dominates(ranked[j].Details, ranked[i].Details) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, ranked[i].ID)
		}
	}
	return out
}

// dominates reports whether a is at least as good as b on every factor and
// strictly better on one.
func dominates(a, b Details) bool {
	if a.Urgency < b.Urgency || a.ImportanceNorm < b.ImportanceNorm ||
		a.EffortScore < b.EffortScore || a.DependenciesNorm < b.DependenciesNorm {
		return false
	}
	return a.Urgency > b.Urgency || a.ImportanceNorm > b.ImportanceNorm ||
		a.EffortScore > b.EffortScore || a.DependenciesNorm > b.DependenciesNorm
}
