package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/Triage/internal/cache"
	"github.com/MikeSquared-Agency/Triage/internal/config"
	"github.com/MikeSquared-Agency/Triage/internal/hermes"
	"github.com/MikeSquared-Agency/Triage/internal/metrics"
	"github.com/MikeSquared-Agency/Triage/internal/store"
)

// NewRouter wires the public API. s, h and m are optional.
func NewRouter(cfg *config.Config, s store.Store, h hermes.Client, m *metrics.Metrics, logger *slog.Logger) (http.Handler, error) {
	results, err := cache.New[RankResult](cfg.Analysis.CacheSize)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(RequestLogger(logger, m))
	r.Use(RateLimitMiddleware(cfg.Server.RateLimitPerMinute))

	tasks := NewTasksHandler(cfg, s, h, m, results, logger)
	admin := NewAdminHandler(s)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks/analyze", tasks.Analyze)
		r.Get("/tasks/suggest", tasks.Suggest)
		r.Post("/tasks/suggest", tasks.Suggest)
		r.Post("/tasks/cycles", tasks.Cycles)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.Server.AdminToken))
			r.Get("/runs", admin.ListRuns)
			r.Get("/runs/{id}", admin.GetRun)
			r.Get("/stats", admin.Stats)
		})
	})

	return r, nil
}

func NewMetricsRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())
	return r
}
