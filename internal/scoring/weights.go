package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WeightSet defines the relative importance of each scoring factor.
type WeightSet struct {
	Urgency      float64 `json:"urgency" yaml:"urgency"`
	Importance   float64 `json:"importance" yaml:"importance"`
	Effort       float64 `json:"effort" yaml:"effort"`
	Dependencies float64 `json:"dependencies" yaml:"dependencies"`
}

// DefaultWeights returns the balanced distribution used when no override is given.
func DefaultWeights() WeightSet {
	return WeightSet{
		Urgency:      0.35,
		Importance:   0.35,
		Effort:       0.15,
		Dependencies: 0.15,
	}
}

// Sum returns the total of all weights.
func (w WeightSet) Sum() float64 {
	return w.Urgency + w.Importance + w.Effort + w.Dependencies
}

// Validate checks that no weight is negative. Weights are normalized before
// use, so the sum only has to be representable.
func (w WeightSet) Validate() error {
	for i, v := range w.asList() {
		if v < 0 {
			return fmt.Errorf("negative weight for %s: %f", weightKeys[i], v)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight for %s is not finite", weightKeys[i])
		}
	}
	return nil
}

// Normalize rescales the weights so they sum to 1.0. A zero sum divides by
// 1.0, leaving every weight at zero.
func (w WeightSet) Normalize() WeightSet {
	total := w.Sum()
	if total == 0 {
		total = 1.0
	}
	return WeightSet{
		Urgency:      w.Urgency / total,
		Importance:   w.Importance / total,
		Effort:       w.Effort / total,
		Dependencies: w.Dependencies / total,
	}
}

// Map returns the weights keyed by their override names.
func (w WeightSet) Map() map[string]float64 {
	return map[string]float64{
		"urgency":      w.Urgency,
		"importance":   w.Importance,
		"effort":       w.Effort,
		"dependencies": w.Dependencies,
	}
}

var weightKeys = []string{"urgency", "importance", "effort", "dependencies"}

func (w WeightSet) asList() []float64 {
	return []float64{w.Urgency, w.Importance, w.Effort, w.Dependencies}
}

func (w *WeightSet) field(key string) *float64 {
	switch key {
	case "urgency":
		return &w.Urgency
	case "importance":
		return &w.Importance
	case "effort":
		return &w.Effort
	case "dependencies":
		return &w.Dependencies
	}
	return nil
}

// ResolveWeights applies caller overrides on top of the defaults and returns
// the normalized result. Unknown keys are ignored and values that cannot be
// read as a finite number keep the default. Overrides whose sum overflows fall
// back to the defaults entirely.
func ResolveWeights(overrides map[string]any) WeightSet {
	w := DefaultWeights()
	for _, key := range weightKeys {
		raw, ok := overrides[key]
		if !ok {
			continue
		}
		if v, err := toFiniteFloat(raw); err == nil {
			*w.field(key) = v
		}
	}
	if !isFinite(w.Sum()) {
		w = DefaultWeights()
	}
	return w.Normalize()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toFiniteFloat is toFloat that also rejects NaN and the infinities, which
// strconv.ParseFloat accepts as literals.
func toFiniteFloat(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if !isFinite(f) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

// toFloat converts a decoded JSON value (or a native Go number) to float64.
// Strings are parsed the way a numeric form field would be.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case nil:
		return 0, fmt.Errorf("null is not a number")
	}
	return 0, fmt.Errorf("unsupported numeric type %T", v)
}
