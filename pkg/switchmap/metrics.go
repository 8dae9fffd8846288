package switchmap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors created by NewMetrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "switchmap").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for derivation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "switchmap",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors shared by every operator given
// WithMetrics. Series are labelled by operator name.
//
// Collectors are registered when NewMetrics is called, so create one
// Metrics per registry.
type Metrics struct {
	derivations    *prometheus.CounterVec
	deriveDuration *prometheus.HistogramVec
	cleanups       *prometheus.CounterVec
	staleDiscards  *prometheus.CounterVec
	fieldUpdates   *prometheus.CounterVec
	shapeDrifts    *prometheus.CounterVec
	generation     *prometheus.GaugeVec
	watchers       *prometheus.GaugeVec
}

// NewMetrics creates and registers the switchmap collectors:
//   - switchmap_derivations_total: projections run, by operator
//   - switchmap_derive_duration_seconds: projection + wiring time
//   - switchmap_cleanups_total: cleanups invoked
//   - switchmap_stale_discards_total: field updates dropped by the staleness guard
//   - switchmap_field_updates_total: field updates written to outputs, by operator and key
//   - switchmap_shape_drifts_total: derivations whose shape differed from the first
//   - switchmap_generation: current derivation generation
//   - switchmap_field_watchers: field watchers still subscribed, current and retained
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		derivations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "derivations_total",
			Help:        "Total number of projections run",
			ConstLabels: config.ConstLabels,
		}, []string{"operator"}),

		deriveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "derive_duration_seconds",
			Help:        "Time spent running a projection and wiring its fields",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"operator"}),

		cleanups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cleanups_total",
			Help:        "Total number of derivation cleanups invoked",
			ConstLabels: config.ConstLabels,
		}, []string{"operator"}),

		staleDiscards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stale_discards_total",
			Help:        "Field updates from superseded derivations that were dropped",
			ConstLabels: config.ConstLabels,
		}, []string{"operator"}),

		fieldUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "field_updates_total",
			Help:        "Field updates written to output cells",
			ConstLabels: config.ConstLabels,
		}, []string{"operator", "key"}),

		shapeDrifts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "shape_drifts_total",
			Help:        "Derivations whose key set or kinds differed from the first derivation",
			ConstLabels: config.ConstLabels,
		}, []string{"operator"}),

		generation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "generation",
			Help:        "Current derivation generation",
			ConstLabels: config.ConstLabels,
		}, []string{"operator"}),

		watchers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "field_watchers",
			Help:        "Field watchers subscribed for the current and retained derivations",
			ConstLabels: config.ConstLabels,
		}, []string{"operator"}),
	}
}

// The record methods are no-ops on a nil *Metrics.

func (m *Metrics) recordDerivation(name string, gen uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.derivations.WithLabelValues(name).Inc()
	m.deriveDuration.WithLabelValues(name).Observe(d.Seconds())
	m.generation.WithLabelValues(name).Set(float64(gen))
}

func (m *Metrics) recordCleanup(name string) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(name).Inc()
}

func (m *Metrics) recordStale(name string) {
	if m == nil {
		return
	}
	m.staleDiscards.WithLabelValues(name).Inc()
}

func (m *Metrics) recordFieldUpdate(name, key string) {
	if m == nil {
		return
	}
	m.fieldUpdates.WithLabelValues(name, key).Inc()
}

func (m *Metrics) recordShapeDrift(name string) {
	if m == nil {
		return
	}
	m.shapeDrifts.WithLabelValues(name).Inc()
}

func (m *Metrics) recordWatchers(name string, n int) {
	if m == nil {
		return
	}
	m.watchers.WithLabelValues(name).Set(float64(n))
}
