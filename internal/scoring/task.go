package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for due dates and reference dates.
// Single-digit months and days are accepted as well.
const DateLayout = "2006-1-2"

const (
	defaultEstimatedHours = 1.0
	defaultImportance     = 5
)

// ErrInvalidTaskData is matched by every *InvalidTaskDataError.
var ErrInvalidTaskData = errors.New("invalid task data")

// InvalidTaskDataError reports a task field that was present but could not be
// converted to the required numeric type.
type InvalidTaskDataError struct {
	Index  int
	TaskID string
	Field  string
	Value  any
	Err    error
}

func (e *InvalidTaskDataError) Error() string {
	return fmt.Sprintf("invalid task data: task %q (index %d): field %s=%v: %v", e.TaskID, e.Index, e.Field, e.Value, e.Err)
}

func (e *InvalidTaskDataError) Unwrap() error { return e.Err }

func (e *InvalidTaskDataError) Is(target error) bool { return target == ErrInvalidTaskData }

// Task is the parsed, normalized form of one raw task record.
type Task struct {
	ID             string
	Title          string
	DueDate        *time.Time
	EstimatedHours float64
	Importance     int
	Dependencies   []string

	// Raw is the caller's original record, echoed back untouched.
	Raw map[string]any
}

// ParseTask normalizes a raw record. Absent or falsy optional fields take their
// defaults; a present estimated_hours or importance that is not numeric is an
// error. Unparseable due dates are treated as "no due date".
func ParseTask(index int, raw map[string]any) (Task, error) {
	t := Task{
		ID:    taskID(raw),
		Title: stringify(raw["title"]),
		Raw:   raw,
	}
	t.DueDate = ParseDate(raw["due_date"])

	t.EstimatedHours = defaultEstimatedHours
	if v := raw["estimated_hours"]; !isFalsy(v) {
		hours, err := toFiniteFloat(v)
		if err != nil {
			return Task{}, &InvalidTaskDataError{Index: index, TaskID: t.ID, Field: "estimated_hours", Value: v, Err: err}
		}
		t.EstimatedHours = hours
	}

	t.Importance = defaultImportance
	if v := raw["importance"]; !isFalsy(v) {
		imp, err := toInt(v)
		if err != nil {
			return Task{}, &InvalidTaskDataError{Index: index, TaskID: t.ID, Field: "importance", Value: v, Err: err}
		}
		t.Importance = imp
	}

	t.Dependencies = dependencyIDs(raw["dependencies"])
	return t, nil
}

// ParseTasks parses a batch, stopping at the first malformed record.
func ParseTasks(raws []map[string]any) ([]Task, error) {
	tasks := make([]Task, 0, len(raws))
	for i, raw := range raws {
		t, err := ParseTask(i, raw)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// ParseDate accepts a "YYYY-MM-DD" string or a time value and returns the
// calendar date at UTC midnight. Anything else yields nil.
func ParseDate(v any) *time.Time {
	switch d := v.(type) {
	case time.Time:
		if d.IsZero() {
			return nil
		}
		c := civilDate(d)
		return &c
	case *time.Time:
		if d == nil || d.IsZero() {
			return nil
		}
		c := civilDate(*d)
		return &c
	case string:
		if d == "" {
			return nil
		}
		parsed, err := time.Parse(DateLayout, d)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}

// civilDate drops the clock and zone, keeping the calendar date as seen in t's location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns to - from in whole calendar days.
func daysBetween(from, to time.Time) int {
	const secondsPerDay = 86400
	return int(civilDate(to).Unix()/secondsPerDay - civilDate(from).Unix()/secondsPerDay)
}

func taskID(raw map[string]any) string {
	if id, ok := raw["id"]; ok && id != nil {
		return stringify(id)
	}
	return stringify(raw["title"])
}

func dependencyIDs(v any) []string {
	if isFalsy(v) {
		return []string{}
	}
	switch deps := v.(type) {
	case []any:
		out := make([]string, 0, len(deps))
		for _, d := range deps {
			out = append(out, stringify(d))
		}
		return out
	case []string:
		return append([]string(nil), deps...)
	}
	return []string{stringify(v)}
}

// stringify renders identifiers the way they read in JSON: integral numbers
// without a fractional part, strings verbatim.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprint(v)
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case float64:
		return x == 0
	case float32:
		return x == 0
	case int:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case uint:
		return x == 0
	case uint64:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// toInt truncates toward zero. Strings must hold an integer literal.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	}
	f, err := toFiniteFloat(v)
	if err != nil {
		return 0, err
	}
	f = math.Trunc(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is out of integer range", f)
	}
	return int(f), nil
}
