// Package advisor holds the caller-facing policy around the scoring engine:
// named weight presets and short "why this one" suggestions.
package advisor

import (
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/Triage/internal/scoring"
)

const DefaultStrategy = "smart"

var builtinStrategies = map[string]scoring.WeightSet{
	"fastest":    {Urgency: 0.20, Importance: 0.20, Effort: 0.60, Dependencies: 0.00},
	"highimpact": {Urgency: 0.20, Importance: 0.70, Effort: 0.05, Dependencies: 0.05},
	"deadline":   {Urgency: 0.80, Importance: 0.10, Effort: 0.05, Dependencies: 0.05},
	"smart":      scoring.DefaultWeights(),
}

// Strategies maps preset names to weight distributions.
type Strategies struct {
	presets map[string]scoring.WeightSet
}

// NewStrategies returns the built-in presets with extra overlaid on top.
// Names are case-insensitive.
func NewStrategies(extra map[string]scoring.WeightSet) *Strategies {
	presets := make(map[string]scoring.WeightSet, len(builtinStrategies)+len(extra))
	for name, w := range builtinStrategies {
		presets[name] = w
	}
	for name, w := range extra {
		presets[strings.ToLower(name)] = w
	}
	return &Strategies{presets: presets}
}

// Names returns the known preset names in sorted order.
func (s *Strategies) Names() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the preset with the given name.
func (s *Strategies) Lookup(name string) (scoring.WeightSet, bool) {
	w, ok := s.presets[strings.ToLower(strings.TrimSpace(name))]
	return w, ok
}

// Resolve picks the weight overrides to hand to the engine. Named presets
// replace caller weights; the balanced "smart" strategy and unknown names
// keep caller weights when present and otherwise fall back to the smart preset.
func (s *Strategies) Resolve(name string, weights map[string]any) map[string]any {
	key := strings.ToLower(strings.TrimSpace(name))
	if key != "" && key != DefaultStrategy {
		if w, ok := s.presets[key]; ok {
			return asOverrides(w)
		}
	}
	if len(weights) > 0 {
		return weights
	}
	return asOverrides(s.presets[DefaultStrategy])
}

func asOverrides(w scoring.WeightSet) map[string]any {
	out := make(map[string]any, 4)
	for k, v := range w.Map() {
		out[k] = v
	}
	return out
}
