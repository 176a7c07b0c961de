// Package observe provides observability primitives for the diagram
// performance subsystem.
//
// It is a pure instrumentation library: structured JSON logging, otel
// tracing and metrics, and ready-made instruments for caches and the spec
// codec. Consumers receive an Observer from the composition root and derive
// component loggers with Logger.With.
package observe
