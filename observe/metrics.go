package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records operation outcomes.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOp records an operation with duration and error status.
	RecordOp(ctx context.Context, op Op, duration time.Duration, err error)
}

type opMetrics struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates operation metrics on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"op.total",
		metric.WithDescription("Total number of operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"op.errors",
		metric.WithDescription("Total number of failed operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"op.duration_ms",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &opMetrics{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordOp records metrics for one operation.
func (m *opMetrics) RecordOp(ctx context.Context, op Op, duration time.Duration, err error) {
	opt := metric.WithAttributes(op.attributes()...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type noopMetrics struct{}

// NewNoopMetrics returns Metrics that records nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordOp(context.Context, Op, time.Duration, error) {}

// CacheMetrics reports cache events as otel counters labelled with the
// cache name. It satisfies cache.Metrics.
type CacheMetrics struct {
	hits        metric.Int64Counter
	misses      metric.Int64Counter
	evictions   metric.Int64Counter
	expirations metric.Int64Counter
	opt         metric.AddOption
}

// NewCacheMetrics creates counters for the cache called name.
func NewCacheMetrics(meter metric.Meter, name string) (*CacheMetrics, error) {
	m := &CacheMetrics{
		opt: metric.WithAttributes(attribute.String("cache.name", name)),
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.hits, "cache.hits", "Cache reads that returned a live entry"},
		{&m.misses, "cache.misses", "Cache reads that found nothing or an expired entry"},
		{&m.evictions, "cache.evictions", "Entries evicted to honor cache bounds"},
		{&m.expirations, "cache.expirations", "Entries removed after exceeding their TTL"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit("{entry}"),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	return m, nil
}

func (m *CacheMetrics) Hit()  { m.hits.Add(context.Background(), 1, m.opt) }
func (m *CacheMetrics) Miss() { m.misses.Add(context.Background(), 1, m.opt) }

func (m *CacheMetrics) Evict(n int) {
	m.evictions.Add(context.Background(), int64(n), m.opt)
}

func (m *CacheMetrics) Expire(n int) {
	m.expirations.Add(context.Background(), int64(n), m.opt)
}

// CodecMetrics reports spec codec outcomes. It satisfies codec.Metrics.
type CodecMetrics struct {
	encodes  metric.Int64Counter
	ratio    metric.Float64Histogram
	decodes  metric.Int64Counter
	inflated metric.Int64Histogram
}

// NewCodecMetrics creates the codec instruments on meter.
func NewCodecMetrics(meter metric.Meter) (*CodecMetrics, error) {
	encodes, err := meter.Int64Counter("codec.encode.total",
		metric.WithDescription("Encoded payloads by resulting kind"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return nil, err
	}

	ratio, err := meter.Float64Histogram("codec.encode.ratio",
		metric.WithDescription("Wire size divided by raw JSON size"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	decodes, err := meter.Int64Counter("codec.decode.total",
		metric.WithDescription("Decoded payloads by outcome"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return nil, err
	}

	inflated, err := meter.Int64Histogram("codec.decode.bytes",
		metric.WithDescription("Decompressed size of compressed payloads"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &CodecMetrics{
		encodes:  encodes,
		ratio:    ratio,
		decodes:  decodes,
		inflated: inflated,
	}, nil
}

// RecordEncode records one Compress call.
func (m *CodecMetrics) RecordEncode(ctx context.Context, kind string, rawBytes, wireBytes int) {
	opt := metric.WithAttributes(attribute.String("codec.kind", kind))
	m.encodes.Add(ctx, 1, opt)
	if rawBytes > 0 {
		m.ratio.Record(ctx, float64(wireBytes)/float64(rawBytes), opt)
	}
}

// RecordDecode records one Decompress call.
func (m *CodecMetrics) RecordDecode(ctx context.Context, kind, outcome string, decodedBytes int64) {
	opt := metric.WithAttributes(
		attribute.String("codec.kind", kind),
		attribute.String("codec.outcome", outcome),
	)
	m.decodes.Add(ctx, 1, opt)
	if decodedBytes > 0 {
		m.inflated.Record(ctx, decodedBytes, opt)
	}
}
