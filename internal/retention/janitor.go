// Package retention prunes old run history on a fixed interval.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/Triage/internal/hermes"
	"github.com/MikeSquared-Agency/Triage/internal/metrics"
	"github.com/MikeSquared-Agency/Triage/internal/store"
)

type Janitor struct {
	store    store.Store
	hermes   hermes.Client
	metrics  *metrics.Metrics
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New returns a janitor that removes runs older than maxAge every interval.
// A non-positive maxAge keeps history forever; h and m may be nil.
func New(s store.Store, h hermes.Client, m *metrics.Metrics, maxAge, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:    s,
		hermes:   h,
		metrics:  m,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	if j.maxAge <= 0 || j.interval <= 0 {
		j.logger.Info("run retention disabled")
		return
	}
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one prune pass and reports the resulting history size.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := j.now().Add(-j.maxAge)
	pruned, err := j.store.PruneRuns(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to prune runs", "cutoff", cutoff, "error", err)
		return
	}
	j.metrics.Pruned(pruned)
	if pruned > 0 {
		j.logger.Info("pruned run history", "count", pruned, "cutoff", cutoff)
	}

	if j.hermes == nil {
		return
	}
	stats, err := j.store.GetStats(ctx)
	if err != nil {
		j.logger.Warn("failed to load run stats", "error", err)
		return
	}
	ev := hermes.RetentionStatsEvent{
		Pruned:        pruned,
		TotalRuns:     stats.TotalRuns,
		AvgTaskCount:  stats.AvgTaskCount,
		AvgDurationMs: stats.AvgDurationMs,
		Timestamp:     j.now().UTC(),
	}
	if err := j.hermes.Publish(hermes.SubjectRetentionStats, ev); err != nil {
		j.logger.Warn("failed to publish retention stats", "error", err)
	}
}
