// Package metrics exposes Prometheus collectors for ingestion and model runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the service's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	fetchLatency   *prometheus.HistogramVec
	fetchErrors    *prometheus.CounterVec
	observations   *prometheus.CounterVec
	runs           *prometheus.CounterVec
	crossValidated *prometheus.GaugeVec
}

// Option allows customizing the metrics registry.
type Option func(*config)

type config struct {
	registerer prometheus.Registerer
	buckets    []float64
}

// WithRegisterer overrides the default Prometheus registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.registerer = r
	}
}

// WithLatencyBuckets overrides the default fetch latency buckets (in ms).
func WithLatencyBuckets(buckets []float64) Option {
	return func(cfg *config) {
		cfg.buckets = buckets
	}
}

// New constructs Metrics and registers its collectors.
func New(opts ...Option) *Metrics {
	cfg := config{
		registerer: prometheus.DefaultRegisterer,
		buckets:    []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Metrics{
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weather_ensemble_fetch_latency_ms",
			Help:    "Latency in milliseconds of forecast fetches per provider.",
			Buckets: cfg.buckets,
		}, []string{"source"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_ensemble_fetch_errors_total",
			Help: "Failed forecast fetches per provider.",
		}, []string{"source"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_ensemble_observations_total",
			Help: "Observations stored per source.",
		}, []string{"source"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_ensemble_model_runs_total",
			Help: "Reduce and produce runs per forecast distance, by outcome.",
		}, []string{"op", "outcome"}),
		crossValidated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weather_ensemble_cv_error",
			Help: "Mean cross-validation error of the fused forecast.",
		}, []string{"location", "distance"}),
	}

	m.fetchLatency = register(cfg.registerer, m.fetchLatency)
	m.fetchErrors = register(cfg.registerer, m.fetchErrors)
	m.observations = register(cfg.registerer, m.observations)
	m.runs = register(cfg.registerer, m.runs)
	m.crossValidated = register(cfg.registerer, m.crossValidated)
	return m
}

// ObserveFetch records one provider call.
func (m *Metrics) ObserveFetch(source string, latency time.Duration, stored int, err error) {
	if m == nil {
		return
	}
	ms := float64(latency.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	m.fetchLatency.WithLabelValues(source).Observe(ms)
	if err != nil {
		m.fetchErrors.WithLabelValues(source).Inc()
		return
	}
	m.observations.WithLabelValues(source).Add(float64(stored))
}

// ObserveRun counts a reduce or produce run for one distance.
func (m *Metrics) ObserveRun(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.runs.WithLabelValues(op, outcome).Inc()
}

// SetCrossValidation records the latest mean cv error.
func (m *Metrics) SetCrossValidation(location, distance string, v float64) {
	if m == nil {
		return
	}
	m.crossValidated.WithLabelValues(location, distance).Set(v)
}

// register adds c to r, reusing an already registered collector of the same
// type.
func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if r == nil {
		return c
	}
	if err := r.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
			return c
		}
		panic(err)
	}
	return c
}
