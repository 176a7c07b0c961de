package observe

import (
	"context"
	"time"
)

// Instrument wraps operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Run is safe for concurrent use.
//   - Context: the span context is passed to fn.
//   - Errors: errors from fn are recorded and returned unchanged.
type Instrument struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrument creates an Instrument. Nil components fall back to no-ops.
func NewInstrument(tracer Tracer, metrics Metrics, logger Logger) *Instrument {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrument{tracer: tracer, metrics: metrics, logger: logger}
}

// InstrumentFromObserver builds an Instrument from an Observer.
func InstrumentFromObserver(obs Observer) (*Instrument, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrument(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Tracer returns the instrument's tracer.
func (in *Instrument) Tracer() Tracer {
	return in.tracer
}

// Run executes fn inside a span for op and records its outcome.
func (in *Instrument) Run(ctx context.Context, op Op, fn func(ctx context.Context) error) error {
	if op.Name == "" {
		return ErrMissingOpName
	}

	ctx, span := in.tracer.StartSpan(ctx, op)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	in.tracer.EndSpan(span, err)
	in.metrics.RecordOp(ctx, op, duration, err)

	fields := []Field{
		{Key: "op", Value: op.SpanName()},
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	if op.Key != "" {
		fields = append(fields, Field{Key: "key", Value: op.Key})
	}

	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		in.logger.Error(ctx, "operation failed", fields...)
	} else {
		in.logger.Debug(ctx, "operation completed", fields...)
	}

	return err
}
