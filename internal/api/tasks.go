package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Triage/internal/advisor"
	"github.com/MikeSquared-Agency/Triage/internal/cache"
	"github.com/MikeSquared-Agency/Triage/internal/config"
	"github.com/MikeSquared-Agency/Triage/internal/hermes"
	"github.com/MikeSquared-Agency/Triage/internal/metrics"
	"github.com/MikeSquared-Agency/Triage/internal/scoring"
	"github.com/MikeSquared-Agency/Triage/internal/store"
)

const (
	maxBodyBytes  = 10 << 20
	runIDHeader   = "X-Run-ID"
	nonFieldError = "non_field_errors"
)

// RankResult is what the result cache holds for one request digest.
type RankResult struct {
	Tasks []scoring.ScoredTask
	Meta  scoring.RunMetadata
}

type TasksHandler struct {
	engine     *scoring.Engine
	strategies *advisor.Strategies
	cache      *cache.Cache[RankResult]
	store      store.Store
	hermes     hermes.Client
	metrics    *metrics.Metrics
	cfg        *config.Config
	logger     *slog.Logger
}

func NewTasksHandler(cfg *config.Config, s store.Store, h hermes.Client, m *metrics.Metrics, c *cache.Cache[RankResult], logger *slog.Logger) *TasksHandler {
	return &TasksHandler{
		engine:     scoring.NewEngine(logger),
		strategies: advisor.NewStrategies(cfg.Strategies),
		cache:      c,
		store:      s,
		hermes:     h,
		metrics:    m,
		cfg:        cfg,
		logger:     logger,
	}
}

type AnalyzeRequest struct {
	Tasks         json.RawMessage `json:"tasks,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Weights       map[string]any  `json:"weights,omitempty"`
	Strategy      string          `json:"strategy,omitempty"`
	ReferenceDate string          `json:"reference_date,omitempty"`
}

// taskList returns the submitted tasks; "data" is read when "tasks" is missing or empty.
func (req AnalyzeRequest) taskList() json.RawMessage {
	if isEmptyJSON(req.Tasks) {
		return req.Data
	}
	return req.Tasks
}

type AnalyzeResponse struct {
	RunID uuid.UUID            `json:"run_id"`
	Tasks []scoring.ScoredTask `json:"tasks"`
	Meta  scoring.RunMetadata  `json:"meta"`
}

type SuggestResponse struct {
	RunID       uuid.UUID            `json:"run_id"`
	Suggestions []advisor.Suggestion `json:"suggestions"`
	Frontier    []string             `json:"frontier"`
	Meta        scoring.RunMetadata  `json:"meta"`
}

type CyclesResponse struct {
	Cycles []scoring.Cycle `json:"cycles"`
}

// TaskError lists the problems found in one submitted task, keyed by field.
type TaskError struct {
	Index  int                 `json:"index"`
	Errors map[string][]string `json:"errors"`
}

type invalidTasksResponse struct {
	Error   string      `json:"error"`
	Details []TaskError `json:"details"`
}

// batch is a validated task list together with the raw records it came from.
type batch struct {
	raws  []map[string]any
	tasks []scoring.Task
}

func (h *TasksHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, ok := h.readBatch(w, req.taskList())
	if !ok {
		return
	}
	ref, err := h.referenceDate(req.ReferenceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	overrides := req.Weights
	if req.Strategy != "" {
		overrides = h.strategies.Resolve(req.Strategy, req.Weights)
	}

	start := time.Now()
	res := h.rank(b, overrides, ref)
	runID := h.record(r.Context(), &store.Run{
		Kind:          store.RunKindAnalyze,
		Strategy:      req.Strategy,
		ReferenceDate: ref,
		TaskCount:     len(b.tasks),
		Meta:          res.Meta,
		Results:       res.Tasks,
	}, time.Since(start))

	w.Header().Set(runIDHeader, runID.String())
	writeJSON(w, http.StatusOK, AnalyzeResponse{RunID: runID, Tasks: res.Tasks, Meta: res.Meta})
}

// Suggest accepts the task list either as a JSON body or as the URL-encoded
// "tasks" query parameter and returns the top entries with reasons.
func (h *TasksHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strategy := q.Get("strategy")
	refParam := q.Get("reference_date")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var tasks json.RawMessage
	var weights map[string]any
	if len(bytes.TrimSpace(body)) > 0 {
		var req AnalyzeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		tasks, weights = req.taskList(), req.Weights
		if req.Strategy != "" {
			strategy = req.Strategy
		}
		if req.ReferenceDate != "" {
			refParam = req.ReferenceDate
		}
	} else {
		param := q.Get("tasks")
		if param == "" {
			writeError(w, http.StatusBadRequest, "no_tasks_provided")
			return
		}
		if !json.Valid([]byte(param)) {
			writeError(w, http.StatusBadRequest, "invalid tasks JSON in query param")
			return
		}
		tasks = json.RawMessage(param)
	}
	if strategy == "" {
		strategy = h.cfg.Analysis.DefaultStrategy
	}

	b, ok := h.readBatch(w, tasks)
	if !ok {
		return
	}
	ref, err := h.referenceDate(refParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	top := h.cfg.Analysis.DefaultTop
	if v := q.Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			top = n
		}
	}

	start := time.Now()
	res := h.rank(b, h.strategies.Resolve(strategy, weights), ref)
	suggestions := advisor.Suggest(res.Tasks, top)

	kept := make([]scoring.ScoredTask, len(suggestions))
	for i, s := range suggestions {
		kept[i] = s.ScoredTask
	}
	runID := h.record(r.Context(), &store.Run{
		Kind:          store.RunKindSuggest,
		Strategy:      strategy,
		ReferenceDate: ref,
		TaskCount:     len(b.tasks),
		Meta:          res.Meta,
		Results:       kept,
	}, time.Since(start))

	w.Header().Set(runIDHeader, runID.String())
	writeJSON(w, http.StatusOK, SuggestResponse{
		RunID:       runID,
		Suggestions: suggestions,
		Frontier:    scoring.Frontier(res.Tasks),
		Meta:        res.Meta,
	})
}

func (h *TasksHandler) Cycles(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b, ok := h.readBatch(w, req.taskList())
	if !ok {
		return
	}

	start := time.Now()
	cycles := scoring.FindCycles(b.tasks)
	runID := h.record(r.Context(), &store.Run{
		Kind:          store.RunKindCycles,
		ReferenceDate: h.cfg.Today(),
		TaskCount:     len(b.tasks),
		Meta:          scoring.RunMetadata{Cycles: cycles},
	}, time.Since(start))

	w.Header().Set(runIDHeader, runID.String())
	writeJSON(w, http.StatusOK, CyclesResponse{Cycles: cycles})
}

// readBatch decodes and validates a task list, writing the error response
// itself when the list is unusable.
func (h *TasksHandler) readBatch(w http.ResponseWriter, raw json.RawMessage) (batch, bool) {
	var elems []json.RawMessage
	if !isEmptyJSON(raw) {
		if err := json.Unmarshal(raw, &elems); err != nil {
			writeError(w, http.StatusBadRequest, "tasks must be a list")
			return batch{}, false
		}
	}
	if limit := h.cfg.Analysis.MaxTasks; len(elems) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("too many tasks: %d > %d", len(elems), limit))
		return batch{}, false
	}

	b, details := parseBatch(elems)
	if len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, invalidTasksResponse{Error: "invalid_tasks", Details: details})
		return batch{}, false
	}
	return b, true
}

func parseBatch(elems []json.RawMessage) (batch, []TaskError) {
	b := batch{
		raws:  make([]map[string]any, 0, len(elems)),
		tasks: make([]scoring.Task, 0, len(elems)),
	}
	var details []TaskError
	for i, elem := range elems {
		trimmed := bytes.TrimSpace(elem)
		var m map[string]any
		if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &m) != nil {
			details = append(details, TaskError{Index: i, Errors: map[string][]string{
				nonFieldError: {"expected a JSON object"},
			}})
			continue
		}

		task, err := scoring.ParseTask(i, m)
		if err != nil {
			field := nonFieldError
			msg := err.Error()
			var invalid *scoring.InvalidTaskDataError
			if errors.As(err, &invalid) {
				field = invalid.Field
				if invalid.Err != nil {
					msg = invalid.Err.Error()
				}
			}
			details = append(details, TaskError{Index: i, Errors: map[string][]string{field: {msg}}})
			continue
		}
		b.raws = append(b.raws, m)
		b.tasks = append(b.tasks, task)
	}
	return b, details
}

func (h *TasksHandler) referenceDate(s string) (time.Time, error) {
	if s == "" {
		return h.cfg.Today(), nil
	}
	d := scoring.ParseDate(s)
	if d == nil {
		return time.Time{}, fmt.Errorf("invalid reference_date %q, expected YYYY-MM-DD", s)
	}
	return *d, nil
}

// rank scores the batch, serving repeated identical requests from the cache.
func (h *TasksHandler) rank(b batch, overrides map[string]any, ref time.Time) RankResult {
	key, err := cache.Key(overrides, ref.Format(time.DateOnly), b.raws)
	if err == nil {
		if res, ok := h.cache.Get(key); ok {
			h.metrics.CacheHit()
			return res
		}
		h.metrics.CacheMiss()
	} else {
		h.logger.Warn("request digest failed, bypassing cache", "error", err)
	}

	tasks, meta := h.engine.RankTasks(b.tasks, overrides, ref)
	if tasks == nil {
		tasks = []scoring.ScoredTask{}
	}
	res := RankResult{Tasks: tasks, Meta: meta}
	if err == nil {
		h.cache.Add(key, res)
	}
	return res
}

// record assigns the run id, then saves and announces the run. Persistence
// and publishing are best effort.
func (h *TasksHandler) record(ctx context.Context, run *store.Run, elapsed time.Duration) uuid.UUID {
	run.ID = uuid.New()
	run.CreatedAt = time.Now().UTC()
	run.DurationMs = elapsed.Milliseconds()
	run.CycleCount = len(run.Meta.Cycles)

	h.metrics.ObserveRun(string(run.Kind), run.Strategy, run.TaskCount, run.CycleCount, elapsed.Seconds())

	if h.store != nil {
		if err := h.store.SaveRun(ctx, run); err != nil {
			h.logger.Warn("failed to save run", "run_id", run.ID, "kind", run.Kind, "error", err)
		}
	}
	if h.hermes != nil {
		hermes.PublishRun(h.hermes, run, h.logger)
	}
	return run.ID
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	return s == "" || s == "null" || s == "[]"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
