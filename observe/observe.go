package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/diagramops/observe/exporters"
)

// InstrumentationName is the otel scope of every tracer and meter handed out
// by an Observer.
const InstrumentationName = "github.com/jonwraymond/diagramops"

var (
	tracingExporters = set("", "none", "stdout", "otlp", "jaeger")
	metricsExporters = set("", "none", "stdout", "otlp", "prometheus")
	logLevels        = set("", "debug", "info", "warn", "error")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Config configures telemetry for the diagram performance subsystem.
type Config struct {
	ServiceName string `yaml:"service_name"`
	Version     string `yaml:"version"`
	// Environment is recorded as deployment.environment and on every log
	// record when set.
	Environment string `yaml:"environment"`
	// SetGlobal registers the tracer and meter providers with the otel
	// globals. Off by default: an embedded subsystem must not replace the
	// host's providers.
	SetGlobal bool          `yaml:"set_global"`
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Logging   LoggingConfig `yaml:"logging"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Exporter  string  `yaml:"exporter"`   // otlp|jaeger|stdout|none
	SamplePct float64 `yaml:"sample_pct"` // 0.0-1.0, root spans only
}

// MetricsConfig configures cache and codec metric export.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // otlp|prometheus|stdout|none
}

// LoggingConfig configures the JSON logger.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // debug|info|warn|error
}

// Validate reports every rejected field at once. Each joined error is a
// *FieldError matching ErrInvalidConfig and its reason sentinel.
func (c *Config) Validate() error {
	var errs []error
	reject := func(field string, value any, reason error) {
		errs = append(errs, &FieldError{Field: field, Value: value, Reason: reason})
	}

	if c.ServiceName == "" {
		reject("service_name", c.ServiceName, ErrMissingServiceName)
	}
	if c.Tracing.Enabled {
		if !tracingExporters[c.Tracing.Exporter] {
			reject("tracing.exporter", c.Tracing.Exporter, ErrInvalidTracingExporter)
		}
		if c.Tracing.SamplePct < 0 || c.Tracing.SamplePct > 1 {
			reject("tracing.sample_pct", c.Tracing.SamplePct, ErrInvalidSamplePct)
		}
	}
	if c.Metrics.Enabled && !metricsExporters[c.Metrics.Exporter] {
		reject("metrics.exporter", c.Metrics.Exporter, ErrInvalidMetricsExporter)
	}
	if c.Logging.Enabled && !logLevels[c.Logging.Level] {
		reject("logging.level", c.Logging.Level, ErrInvalidLogLevel)
	}
	return errors.Join(errs...)
}

// Observer hands out the tracer, meter and logger shared by the caches, the
// codec and the service. It is safe for concurrent use.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Shutdown flushes and stops the exporters. Calls after the first
	// return the first call's result.
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver validates cfg and builds the enabled subsystems. Disabled
// subsystems get noop implementations, and no resource is built when both
// tracing and metrics are off.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled || cfg.Metrics.Enabled {
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("observe: resource: %w", err)
		}
		if cfg.Tracing.Enabled {
			if o.tp, err = newTracerProvider(ctx, cfg.Tracing, res); err != nil {
				return nil, fmt.Errorf("observe: tracing: %w", err)
			}
			o.tracer = o.tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.Version))
		}
		if cfg.Metrics.Enabled {
			if o.mp, err = newMeterProvider(ctx, cfg.Metrics, res); err != nil {
				_ = o.Shutdown(ctx)
				return nil, fmt.Errorf("observe: metrics: %w", err)
			}
			o.meter = o.mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(cfg.Version))
		}
	}

	if cfg.SetGlobal {
		if o.tp != nil {
			otel.SetTracerProvider(o.tp)
		}
		if o.mp != nil {
			otel.SetMeterProvider(o.mp)
		}
	}

	if cfg.Logging.Enabled {
		fields := []Field{{Key: "service", Value: cfg.ServiceName}}
		if cfg.Environment != "" {
			fields = append(fields, Field{Key: "env", Value: cfg.Environment})
		}
		o.logger = NewLogger(cfg.Logging.Level).With(fields...)
	}

	return o, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...), resource.WithTelemetrySDK())
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplePct)),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// sampler applies pct to root spans and follows the parent otherwise, so a
// traced request keeps its cache and codec spans.
func sampler(pct float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case pct >= 1:
		root = sdktrace.AlwaysSample()
	case pct <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(pct)
	}
	return sdktrace.ParentBased(root)
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error
		if o.tp != nil {
			if err := o.tp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider: %w", err))
			}
		}
		if o.mp != nil {
			if err := o.mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter provider: %w", err))
			}
		}
		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
