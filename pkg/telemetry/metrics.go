package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for siteforge. A nil *Metrics, or one
// built with Enabled=false, is a safe no-op so components never need to
// guard their instrumentation calls.
type Metrics struct {
	config MetricsConfig

	// Pipeline stage metrics
	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	// Failure metrics
	failuresByKind *prometheus.CounterVec

	// Reconciler metrics
	reconcilePolls  prometheus.Counter
	driftDetections *prometheus.CounterVec
	appsByState     *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "siteforge"
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.stagesExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_stages_executed_total",
		Help:      "Total pipeline stage executions by stage and outcome.",
	}, []string{"stage", "outcome"})

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stage executions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	m.failuresByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Total classified failures by kind.",
	}, []string{"kind"})

	m.reconcilePolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_polls_total",
		Help:      "Total orchestrator existence polls performed by the reconciler.",
	})

	m.driftDetections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drift_detections_total",
		Help:      "Total drift corrections by direction (appeared, disappeared).",
	}, []string{"direction"})

	m.appsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "apps_by_lifecycle_state",
		Help:      "Number of managed applications per lifecycle state.",
	}, []string{"state"})

	for _, c := range []prometheus.Collector{
		m.stagesExecuted, m.stageDuration, m.failuresByKind,
		m.reconcilePolls, m.driftDetections, m.appsByState,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// enabled reports whether the collector is active.
func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// ObserveStage records one stage execution with its outcome and duration.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if !m.enabled() {
		return
	}
	m.stagesExecuted.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncFailure records one classified failure. An empty kind is counted as
// "unclassified".
func (m *Metrics) IncFailure(kind string) {
	if !m.enabled() {
		return
	}
	if kind == "" {
		kind = "unclassified"
	}
	m.failuresByKind.WithLabelValues(kind).Inc()
}

// IncReconcilePoll records one orchestrator existence poll.
func (m *Metrics) IncReconcilePoll() {
	if !m.enabled() {
		return
	}
	m.reconcilePolls.Inc()
}

// IncDrift records one drift correction. Direction is "appeared" when a
// missing app turned up or "disappeared" when a present app vanished.
func (m *Metrics) IncDrift(direction string) {
	if !m.enabled() {
		return
	}
	m.driftDetections.WithLabelValues(direction).Inc()
}

// SetAppsByState sets the gauge for one lifecycle state.
func (m *Metrics) SetAppsByState(state string, n float64) {
	if !m.enabled() {
		return
	}
	m.appsByState.WithLabelValues(state).Set(n)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
