// Package metrics owns the Prometheus collectors exported on the metrics port.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triage"

type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	TasksScored    prometheus.Counter
	CyclesDetected prometheus.Counter
	CacheLookups   *prometheus.CounterVec
	RunsPruned     prometheus.Counter
}

// New builds a private registry so tests and multiple servers don't collide
// on the global default.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed engine runs by kind and strategy.",
		}, []string{"kind", "strategy"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent ranking a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"kind"}),
		TasksScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_scored_total",
			Help:      "Tasks scored across all runs.",
		}),
		CyclesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_detected_total",
			Help:      "Dependency cycles reported across all runs.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		RunsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_pruned_total",
			Help:      "Run history records removed by retention.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.RequestLatency,
		m.Runs, m.RunDuration, m.TasksScored, m.CyclesDetected,
		m.CacheLookups, m.RunsPruned,
	)
	return m
}

// ObserveRun records one finished engine run.
func (m *Metrics) ObserveRun(kind, strategy string, tasks, cycles int, seconds float64) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(kind, strategy).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(seconds)
	m.TasksScored.Add(float64(tasks))
	m.CyclesDetected.Add(float64(cycles))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) Pruned(n int64) {
	if m != nil && n > 0 {
		m.RunsPruned.Add(float64(n))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
