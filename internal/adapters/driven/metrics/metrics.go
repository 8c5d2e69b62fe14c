// Package metrics exposes pipeline instrumentation as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

const namespace = "civicwatch"

// Ensure Metrics implements the interface.
var _ driven.PipelineMetrics = (*Metrics)(nil)

// Metrics records pipeline activity in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsSaved    *prometheus.CounterVec
	alertsRaised   *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	recordErrors   *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	alertErrors    *prometheus.CounterVec
	collectTries   *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	lastRun        prometheus.Gauge
	replications   *prometheus.CounterVec
	replicaLatency *prometheus.HistogramVec
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_saved_total",
			Help:      "Events saved by source and outcome",
		}, []string{"source", "outcome"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts persisted by source and severity",
		}, []string{"source", "severity"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Source jobs by status",
		}, []string{"source", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent on one source job",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		recordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Raw records rejected by adapters",
		}, []string{"source"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Events that failed to save",
		}, []string{"source"}),
		alertErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_errors_total",
			Help:      "Saved events whose alerts could not be recorded",
		}, []string{"source"}),
		collectTries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_attempts_total",
			Help:      "Collection attempts made",
		}, []string{"source"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by status",
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run ended",
		}),
		replications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replications_total",
			Help:      "Replication attempts by target and status",
		}, []string{"target", "status"}),
		replicaLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replication_duration_seconds",
			Help:      "Time spent replicating one event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		m.eventsSaved, m.alertsRaised, m.jobsTotal, m.jobDuration,
		m.recordErrors, m.storeErrors, m.alertErrors, m.collectTries, m.runsTotal,
		m.lastRun, m.replications, m.replicaLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// EventSaved counts one save outcome.
func (m *Metrics) EventSaved(sourceID string, outcome domain.SaveOutcome) {
	m.eventsSaved.WithLabelValues(sourceID, string(outcome)).Inc()
}

// AlertsRaised counts persisted alerts.
func (m *Metrics) AlertsRaised(sourceID string, severity domain.Severity, n int) {
	if n <= 0 {
		return
	}
	m.alertsRaised.WithLabelValues(sourceID, string(severity)).Add(float64(n))
}

// JobFinished records a job's status, duration and error counters.
func (m *Metrics) JobFinished(result *domain.JobResult) {
	m.jobsTotal.WithLabelValues(result.SourceID, string(result.Status)).Inc()
	if !result.StartedAt.IsZero() && !result.EndedAt.IsZero() {
		m.jobDuration.WithLabelValues(result.SourceID).Observe(result.EndedAt.Sub(result.StartedAt).Seconds())
	}
	m.recordErrors.WithLabelValues(result.SourceID).Add(float64(result.RecordErrors))
	m.storeErrors.WithLabelValues(result.SourceID).Add(float64(result.StoreErrors))
	m.alertErrors.WithLabelValues(result.SourceID).Add(float64(result.AlertErrors))
	m.collectTries.WithLabelValues(result.SourceID).Add(float64(result.Attempts))
}

// RunFinished records a run's status.
func (m *Metrics) RunFinished(run *domain.PipelineRun) {
	m.runsTotal.WithLabelValues(string(run.Status)).Inc()
	m.lastRun.Set(float64(run.EndedAt.Unix()))
}

// Replicated records one replication attempt.
func (m *Metrics) Replicated(target string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.replications.WithLabelValues(target, status).Inc()
	m.replicaLatency.WithLabelValues(target).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics and /healthz.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{server: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logger.Info("Metrics listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
