// Package metrics registers the Prometheus collectors for ingestion runs and
// serves or writes them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Candidate outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
)

// Upsert results.
const (
	ResultInserted = "inserted"
	ResultUpdated  = "updated"
	ResultStale    = "stale"
	ResultFailed   = "failed"
)

// Metrics holds the collectors for one process. The recording methods are
// no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	candidates   *prometheus.CounterVec
	upserts      *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec
	contaminated *prometheus.CounterVec
	runDuration  prometheus.Histogram
	lastSuccess  prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovr",
			Name:      "candidates_total",
			Help:      "Candidate events by source and outcome (accepted, duplicate or a reject reason)",
		}, []string{"source", "outcome"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovr",
			Name:      "upserts_total",
			Help:      "Store writes by result",
		}, []string{"result"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovr",
			Name:      "source_errors_total",
			Help:      "Failed source fetches",
		}, []string{"source"}),
		contaminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovr",
			Name:      "cross_city_total",
			Help:      "Candidates rejected for cross-city contamination, by claimed city",
		}, []string{"city"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "discovr",
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discovr",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last run that finished without storage errors",
		}),
	}
	m.registry.MustRegister(
		m.candidates, m.upserts, m.sourceErrors, m.contaminated,
		m.runDuration, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Candidate counts one candidate from source with the given outcome.
func (m *Metrics) Candidate(source, outcome string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(source, outcome).Inc()
}

// Upsert counts one store write result.
func (m *Metrics) Upsert(result string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(result).Inc()
}

// SourceError counts a failed fetch.
func (m *Metrics) SourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

// CrossCity counts a contaminated candidate claimed for city.
func (m *Metrics) CrossCity(city string) {
	if m == nil {
		return
	}
	m.contaminated.WithLabelValues(city).Inc()
}

// RunFinished records a run's duration, and its end time when it succeeded.
func (m *Metrics) RunFinished(d time.Duration, succeeded bool, at time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	if succeeded {
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Server serves /metrics and /healthz.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{server: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
}

// Handler returns the server's handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Serve blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Serve() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
