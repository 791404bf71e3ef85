package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/factopt/pkg/engine"
)

// Metrics provides Prometheus metrics for model builds, solves and scenario
// runs. A nil *Metrics and a disabled one are both no-ops.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	modelRows     prometheus.Histogram
	modelColumns  prometheus.Histogram
	components    prometheus.Gauge

	// Solve metrics
	solvesTotal   *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	objective     *prometheus.GaugeVec

	// Run metrics
	scenariosTotal *prometheus.CounterVec
	activeRuns     prometheus.Gauge

	// Diagnostics
	warningsByCode *prometheus.CounterVec
	errorsByClass  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry. A private
// registry lets several collectors coexist in one process.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	// Resolve buckets; model sizes grow geometrically with the horizon
	namespace := cfg.Namespace
	buckets := cfg.SolveBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	sizeBuckets := prometheus.ExponentialBuckets(10, 4, 8)

	// Create collectors
	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_builds_total",
				Help:      "Total number of model builds",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_build_duration_seconds",
				Help:      "Duration of model builds in seconds",
				Buckets:   buckets,
			},
		),
		modelRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_rows",
				Help:      "Number of constraint rows per built model",
				Buckets:   sizeBuckets,
			},
		),
		modelColumns: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_columns",
				Help:      "Number of columns per built model",
				Buckets:   sizeBuckets,
			},
		),
		components: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "factory_components",
				Help:      "Number of components in the last built factory",
			},
		),

		solvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_total",
				Help:      "Total number of solves by backend and status",
			},
			[]string{"backend", "status"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of solves in seconds",
				Buckets:   buckets,
			},
			[]string{"backend"},
		),
		objective: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "objective_value",
				Help:      "Optimal objective of the last solve per scenario",
			},
			[]string{"scenario"},
		),

		scenariosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenario_runs_total",
				Help:      "Total number of scenario runs by final status",
			},
			[]string{"status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of scenario runs in progress",
			},
		),

		warningsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_warnings_total",
				Help:      "Total number of build warnings by code",
			},
			[]string{"code"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	// Register all collectors
	registry.MustRegister(
		m.buildsTotal,
		m.buildDuration,
		m.modelRows,
		m.modelColumns,
		m.components,
		m.solvesTotal,
		m.solveDuration,
		m.objective,
		m.scenariosTotal,
		m.activeRuns,
		m.warningsByCode,
		m.errorsByClass,
	)
	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordBuild records one model build and its size.
func (m *Metrics) RecordBuild(components, rows, columns int, duration time.Duration, err error) {
	if !m.enabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.RecordError(err)
	}
	m.buildsTotal.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
	m.components.Set(float64(components))

	// Failed builds have no meaningful size
	if err == nil {
		m.modelRows.Observe(float64(rows))
		m.modelColumns.Observe(float64(columns))
	}
}

// RecordSolve records one solve.
func (m *Metrics) RecordSolve(backend, scenario, status string, objective float64, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.solvesTotal.WithLabelValues(backend, status).Inc()
	m.solveDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if status == "optimal" {
		m.objective.WithLabelValues(scenario).Set(objective)
	}
}

// RecordWarning counts a build warning by code.
func (m *Metrics) RecordWarning(code string) {
	if !m.enabled() {
		return
	}
	m.warningsByCode.WithLabelValues(code).Inc()
}

// RecordRunStarted marks a scenario run as in progress.
func (m *Metrics) RecordRunStarted() {
	if !m.enabled() {
		return
	}
	m.activeRuns.Inc()
}

// RecordRunCompleted records the final status of a scenario run.
func (m *Metrics) RecordRunCompleted(status engine.RunStatus) {
	if !m.enabled() {
		return
	}
	m.scenariosTotal.WithLabelValues(string(status)).Inc()
	m.activeRuns.Dec()
}

// RecordError counts an error by its engine class and code. Errors from
// outside the engine are counted as internal.
func (m *Metrics) RecordError(err error) {
	if !m.enabled() || err == nil {
		return
	}
	class, code := string(engine.ErrorClassInternal), ""
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		class, code = string(ee.Class), ee.Code
	}
	m.errorsByClass.WithLabelValues(class, code).Inc()
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, logger zerolog.Logger) error {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	// Set up the HTTP server
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Shut down gracefully when ctx ends
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", m.config.ListenAddress).Str("path", path).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
