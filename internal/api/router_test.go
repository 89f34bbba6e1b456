package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Triage/internal/config"
	"github.com/MikeSquared-Agency/Triage/internal/metrics"
	"github.com/MikeSquared-Agency/Triage/internal/store"
)

// Mocks
type mockStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*store.Run
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[uuid.UUID]*store.Run)}
}
func (m *mockStore) SaveRun(_ context.Context, r *store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}
func (m *mockStore) GetRun(_ context.Context, id uuid.UUID) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id], nil
}
func (m *mockStore) ListRuns(_ context.Context, f store.RunFilter) ([]*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Run
	for _, r := range m.runs {
		if f.Kind != nil && r.Kind != *f.Kind {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
func (m *mockStore) GetStats(_ context.Context) (*store.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &store.RunStats{TotalRuns: len(m.runs)}, nil
}
func (m *mockStore) PruneRuns(_ context.Context, _ time.Time) (int64, error) { return 0, nil }
func (m *mockStore) Close() error                                            { return nil }

type mockHermes struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockHermes) Publish(subject string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}
func (m *mockHermes) Subscribe(_ string, _ func(string, []byte)) error { return nil }
func (m *mockHermes) Close()                                           {}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RateLimitPerMinute = 1000
	cfg.Analysis.MaxTasks = 5
	cfg.Analysis.DefaultTop = 3
	cfg.Analysis.CacheSize = 16
	cfg.Analysis.Timezone = "UTC"
	cfg.Analysis.DefaultStrategy = "smart"
	return cfg
}

type testEnv struct {
	router  http.Handler
	store   *mockStore
	hermes  *mockHermes
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	env := &testEnv{store: newMockStore(), hermes: &mockHermes{}, metrics: metrics.New()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewRouter(cfg, env.store, env.hermes, env.metrics, logger)
	require.NoError(t, err)
	env.router = r
	return env
}

func (e *testEnv) do(method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

var sampleTasks = []map[string]any{
	{"id": "t1", "title": "A", "due_date": "2026-01-12", "estimated_hours": 5, "importance": 5, "dependencies": []string{}},
	{"id": "t2", "title": "B", "due_date": "2026-01-11", "estimated_hours": 8, "importance": 6, "dependencies": []string{}},
	{"id": "t3", "title": "C", "due_date": nil, "estimated_hours": 1, "importance": 3, "dependencies": []string{}},
}

type analyzeBody struct {
	RunID string `json:"run_id"`
	Tasks []struct {
		ID          string  `json:"id"`
		Score       float64 `json:"score"`
		Explanation string  `json:"explanation"`
	} `json:"tasks"`
	Meta struct {
		Cycles      [][]string `json:"cycles"`
		HorizonDays int        `json:"horizon_days"`
	} `json:"meta"`
}

func TestAnalyzeRanksTasks(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{
		"tasks":          sampleTasks,
		"reference_date": "2026-01-10",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp analyzeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 3)
	assert.Equal(t, "t2", resp.Tasks[0].ID)
	assert.Equal(t, "t1", resp.Tasks[1].ID)
	assert.Equal(t, "t3", resp.Tasks[2].ID)
	assert.InDelta(t, 0.6883, resp.Tasks[0].Score, 1e-9)
	assert.Equal(t, "urgency=0.93; importance=0.67; effort_quickwin=0.43; dependencies_impact=0.00; due_in=2d", resp.Tasks[1].Explanation)
	assert.Equal(t, 30, resp.Meta.HorizonDays)
	assert.NotNil(t, resp.Meta.Cycles)

	id, err := uuid.Parse(resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, w.Header().Get("X-Run-ID"))

	saved, _ := env.store.GetRun(context.Background(), id)
	require.NotNil(t, saved)
	assert.Equal(t, store.RunKindAnalyze, saved.Kind)
	assert.Equal(t, 3, saved.TaskCount)
	assert.Equal(t, []string{"triage.run." + resp.RunID + ".completed"}, env.hermes.subjects)
}

func TestAnalyzeAcceptsDataAlias(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{"tasks": []any{}, "data": sampleTasks, "reference_date": "2026-01-10"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp analyzeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 3)
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tasks":[]`)
	assert.Contains(t, w.Body.String(), `"cycles":[]`)
}

func TestAnalyzeReportsCycles(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{"tasks": []map[string]any{
		{"id": "a", "dependencies": []string{"b"}},
		{"id": "b", "dependencies": []string{"a"}},
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp analyzeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, [][]string{{"a", "b", "a"}}, resp.Meta.Cycles)
	assert.Len(t, env.hermes.subjects, 2)
}

func TestAnalyzeInvalidTasks(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/analyze", `{"tasks":[{"id":"ok"},{"id":"x","importance":"high"},5,null]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error   string      `json:"error"`
		Details []TaskError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_tasks", resp.Error)
	require.Len(t, resp.Details, 3)
	assert.Equal(t, 1, resp.Details[0].Index)
	assert.Contains(t, resp.Details[0].Errors, "importance")
	assert.Equal(t, 2, resp.Details[1].Index)
	assert.Contains(t, resp.Details[1].Errors, "non_field_errors")
	assert.Equal(t, 3, resp.Details[2].Index)
	assert.Empty(t, env.store.runs)
}

func TestAnalyzeNonFiniteNumbers(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{
		"tasks":          sampleTasks,
		"weights":        map[string]any{"urgency": "NaN", "effort": "Inf"},
		"reference_date": "2026-01-10",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp analyzeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 3)
	assert.Equal(t, "t2", resp.Tasks[0].ID)
	assert.InDelta(t, 0.6883, resp.Tasks[0].Score, 1e-9)
	assert.Len(t, env.store.runs, 1)

	w = env.do("POST", "/api/v1/tasks/analyze", `{"tasks":[{"id":"a","estimated_hours":"NaN"},{"id":"b","estimated_hours":2}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var bad struct {
		Error   string      `json:"error"`
		Details []TaskError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bad))
	assert.Equal(t, "invalid_tasks", bad.Error)
	require.Len(t, bad.Details, 1)
	assert.Contains(t, bad.Details[0].Errors, "estimated_hours")
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, testConfig())

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"tasks":`, http.StatusBadRequest},
		{"tasks not a list", `{"tasks":{"id":"a"}}`, http.StatusBadRequest},
		{"bad reference date", `{"tasks":[{"id":"a"}],"reference_date":"tomorrow"}`, http.StatusBadRequest},
		{"too many tasks", `{"tasks":[{},{},{},{},{},{}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do("POST", "/api/v1/tasks/analyze", tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestAnalyzeStrategyOverridesWeights(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{
		"tasks":          sampleTasks,
		"weights":        map[string]any{"urgency": 1},
		"strategy":       "fastest",
		"reference_date": "2026-01-10",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tasks []struct {
			ID string `json:"id"`
		} `json:"tasks"`
		Meta struct {
			Weights map[string]float64 `json:"weights"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t3", resp.Tasks[0].ID, "the one-hour task wins under fastest")
	assert.InDelta(t, 0.6, resp.Meta.Weights["effort"], 1e-9)
}

func TestAnalyzeServesRepeatsFromCache(t *testing.T) {
	env := newTestEnv(t, testConfig())
	body := map[string]any{"tasks": sampleTasks, "reference_date": "2026-01-10"}

	first := env.do("POST", "/api/v1/tasks/analyze", body)
	second := env.do("POST", "/api/v1/tasks/analyze", body)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CacheLookups.WithLabelValues("miss")))
	assert.NotEqual(t, first.Header().Get("X-Run-ID"), second.Header().Get("X-Run-ID"))
	assert.Len(t, env.store.runs, 2)
}

type suggestBody struct {
	Suggestions []struct {
		ID               string `json:"id"`
		SuggestionReason string `json:"suggestion_reason"`
	} `json:"suggestions"`
	Frontier []string `json:"frontier"`
}

func TestSuggestFromBody(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/suggest?top=2", map[string]any{
		"tasks":          sampleTasks,
		"reference_date": "2026-01-10",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp suggestBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "t2", resp.Suggestions[0].ID)
	assert.Equal(t, "High importance", resp.Suggestions[0].SuggestionReason)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, resp.Frontier)

	var saved *store.Run
	for _, r := range env.store.runs {
		saved = r
	}
	require.NotNil(t, saved)
	assert.Equal(t, store.RunKindSuggest, saved.Kind)
	assert.Equal(t, "smart", saved.Strategy)
	assert.Len(t, saved.Results, 2)
}

func TestSuggestFromQuery(t *testing.T) {
	env := newTestEnv(t, testConfig())
	tasks := `[{"id":"late","due_date":"2026-01-01","importance":9},{"id":"quick","estimated_hours":1}]`
	target := "/api/v1/tasks/suggest?strategy=deadline&reference_date=2026-01-10&tasks=" + url.QueryEscape(tasks)

	w := env.do("GET", target, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp suggestBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "late", resp.Suggestions[0].ID)
	assert.Equal(t, "Past-due or due today; High importance", resp.Suggestions[0].SuggestionReason)
}

func TestSuggestErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("GET", "/api/v1/tasks/suggest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no_tasks_provided")

	w = env.do("GET", "/api/v1/tasks/suggest?tasks="+url.QueryEscape("[{"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid tasks JSON in query param")

	w = env.do("POST", "/api/v1/tasks/suggest", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestInvalidTopFallsBack(t *testing.T) {
	env := newTestEnv(t, testConfig())
	many := []map[string]any{{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"}}
	w := env.do("POST", "/api/v1/tasks/suggest?top=lots", map[string]any{"tasks": many})
	require.Equal(t, http.StatusOK, w.Code)

	var resp suggestBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Suggestions, 3)
}

func TestCyclesEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	w := env.do("POST", "/api/v1/tasks/cycles", map[string]any{"tasks": []map[string]any{
		{"id": "a", "dependencies": []string{"b"}},
		{"id": "b", "dependencies": []string{"c"}},
		{"id": "c", "dependencies": []string{"a"}},
		{"id": "d"},
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1, "cycles endpoint returns only the cycles")
	assert.Equal(t, []any{[]any{"a", "b", "c", "a"}}, resp["cycles"])
}

func TestRunHistoryRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AdminToken = "secret"
	env := newTestEnv(t, cfg)

	w := env.do("POST", "/api/v1/tasks/analyze", map[string]any{"tasks": sampleTasks})
	require.Equal(t, http.StatusOK, w.Code)
	runID := w.Header().Get("X-Run-ID")

	w = env.do("GET", "/api/v1/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	auth := []string{"Authorization", "Bearer secret"}
	w = env.do("GET", "/api/v1/runs?kind=analyze", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runID)

	w = env.do("GET", "/api/v1/runs/"+runID, nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results"`)

	w = env.do("GET", "/api/v1/runs/"+uuid.NewString(), nil, auth...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("GET", "/api/v1/runs/not-a-uuid", nil, auth...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/v1/stats", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_runs":1`)
}

func TestRouterWithoutOptionalCollaborators(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewRouter(testConfig(), nil, nil, nil, logger)
	require.NoError(t, err)

	data, _ := json.Marshal(map[string]any{"tasks": sampleTasks})
	req := httptest.NewRequest("POST", "/api/v1/tasks/analyze", bytes.NewReader(data))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/stats", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsRouter(t *testing.T) {
	m := metrics.New()
	r := NewMetricsRouter(m)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "triage_runs_total")
}
