package main

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/switchmap/internal/config"
	"github.com/vango-dev/switchmap/internal/errors"
	"github.com/vango-dev/switchmap/pkg/switchmap"
)

// stack is the ambient wiring shared by the commands.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *switchmap.Metrics
}

// loadStack reads the configuration, applies flag overrides and builds the
// logger, registry and metrics.
func loadStack(flags *globalFlags, logOut io.Writer) (*stack, error) {
	cfg, err := config.LoadOrDefault(flags.dir)
	if err != nil {
		return nil, err
	}
	if flags.shape != "" {
		cfg.Shape = flags.shape
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &stack{
		cfg:    cfg,
		logger: cfg.NewLogger(logOut),
	}

	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = switchmap.NewMetrics(
			switchmap.WithRegistry(s.registry),
			switchmap.WithNamespace(cfg.Metrics.Namespace),
		)
	}
	return s, nil
}

// options returns the operator options implied by the configuration.
func (s *stack) options() []switchmap.Option {
	opts := []switchmap.Option{
		switchmap.WithLogger(s.logger),
		switchmap.WithShapePolicy(s.cfg.ShapePolicy()),
		switchmap.WithMetrics(s.metrics),
	}
	if s.cfg.Tracing.Enabled {
		opts = append(opts, switchmap.WithTracer(otel.Tracer(s.cfg.Tracing.TracerName)))
	} else {
		opts = append(opts, switchmap.WithTracer(noop.NewTracerProvider().Tracer("")))
	}
	return opts
}

// counter sums every series of the named counter family.
func (s *stack) counter(name string) float64 {
	if s.registry == nil {
		return 0
	}
	families, err := s.registry.Gather()
	if err != nil {
		return 0
	}
	full := s.cfg.Metrics.Namespace + "_" + name
	var total float64
	for _, mf := range families {
		if mf.GetName() != full {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func invalidArg(detail string) error {
	return errors.New("S020").WithDetail(detail)
}
