package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Triage/internal/api"
	"github.com/MikeSquared-Agency/Triage/internal/config"
	"github.com/MikeSquared-Agency/Triage/internal/hermes"
	"github.com/MikeSquared-Agency/Triage/internal/metrics"
	"github.com/MikeSquared-Agency/Triage/internal/retention"
	"github.com/MikeSquared-Agency/Triage/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// openStore picks Postgres when a URL is configured, else the SQLite file.
// An empty sqlite_path disables run history.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch {
	case cfg.Database.URL != "":
		return store.NewPostgresStore(ctx, cfg.Database.URL)
	case cfg.Database.SQLitePath != "":
		return store.NewSQLiteStore(ctx, cfg.Database.SQLitePath)
	}
	return nil, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Run history (optional)
	var db store.Store
	s, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("failed to open run history, running without it", "error", err)
	} else if s != nil {
		db = s
		defer db.Close()
		logger.Info("run history ready", "postgres", cfg.Database.URL != "")
	}

	// Hermes (optional)
	var hermesClient hermes.Client
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	m := metrics.New()

	if db != nil {
		j := retention.New(db, hermesClient, m, cfg.Retention(), cfg.PruneInterval(), logger)
		j.Start(ctx)
		defer j.Stop()
	}

	router, err := api.NewRouter(cfg, db, hermesClient, m, logger)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           api.NewMetricsRouter(m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server failed", "error", runErr)
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	cancel()

	logger.Info("shutdown complete")
	return runErr
}
