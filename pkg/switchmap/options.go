package switchmap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultName is the operator name used in logs, metric labels and span
// attributes when WithName is not given.
const DefaultName = "switchmap"

// DefaultTracerName is the tracer requested from the global OpenTelemetry
// provider when WithTracer is not given.
const DefaultTracerName = "switchmap"

// DefaultRetainedGenerations is how many derivations keep their field
// watchers subscribed when WithRetainedGenerations is not given.
const DefaultRetainedGenerations = 4

// ShapePolicy decides what happens when a later derivation's key set or
// entry kinds differ from the first derivation.
type ShapePolicy int

const (
	// ShapeStrict panics with a *ShapeError on drift. Outputs keep the
	// values of the last well-shaped derivation.
	ShapeStrict ShapePolicy = iota

	// ShapeLenient logs a warning on drift. Keys absent from the first
	// derivation are ignored, missing reactive keys keep their last value,
	// retyped keys are not wired.
	ShapeLenient
)

// String returns the policy name as used in configuration files.
func (p ShapePolicy) String() string {
	switch p {
	case ShapeStrict:
		return "strict"
	case ShapeLenient:
		return "lenient"
	default:
		return fmt.Sprintf("ShapePolicy(%d)", int(p))
	}
}

// ParseShapePolicy parses "strict" or "lenient" (case-insensitive).
// The empty string parses as ShapeStrict.
func ParseShapePolicy(s string) (ShapePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ShapeStrict, nil
	case "lenient":
		return ShapeLenient, nil
	default:
		return ShapeStrict, fmt.Errorf("switchmap: unknown shape policy %q", s)
	}
}

// config holds operator configuration built from Options.
type config struct {
	name    string
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	ctx     context.Context
	shape   ShapePolicy
	retain  uint64
}

// Option configures SwitchMap.
type Option func(*config)

// WithName sets the operator name used in logs, metrics and spans.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics records operator activity into m. See NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for derivation spans.
// By default the tracer comes from the global OpenTelemetry provider, which
// is a no-op until the application installs one.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithContext sets the parent context of derivation spans.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.ctx = ctx
	}
}

// WithShapePolicy sets the shape drift policy. Default: ShapeStrict.
func WithShapePolicy(p ShapePolicy) Option {
	return func(c *config) {
		c.shape = p
	}
}

// WithRetainedGenerations sets how many derivations, counting the current
// one, keep their field watchers. Older watchers are stopped, so a late
// write to their cells is neither seen nor counted as a stale discard.
// Values below 1 mean 1.
func WithRetainedGenerations(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		c.retain = uint64(n)
	}
}

func defaultConfig() config {
	return config{
		name:   DefaultName,
		shape:  ShapeStrict,
		ctx:    context.Background(),
		retain: DefaultRetainedGenerations,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(DefaultTracerName)
	}
	if cfg.ctx == nil {
		cfg.ctx = context.Background()
	}
	return cfg
}
