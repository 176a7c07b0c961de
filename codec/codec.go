package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/jonwraymond/diagramops/canonical"
	"github.com/jonwraymond/diagramops/diagram"
	"github.com/jonwraymond/diagramops/observe"
)

// Decode outcomes reported to Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeDrift    = "drift"
	OutcomeLimit    = "limit"
	OutcomeCorrupt  = "corrupt"
	OutcomeCanceled = "canceled"
)

// Metrics receives codec outcomes. observe.CodecMetrics implements it.
type Metrics interface {
	RecordEncode(ctx context.Context, kind string, rawBytes, wireBytes int)
	RecordDecode(ctx context.Context, kind, outcome string, decodedBytes int64)
}

// NoopMetrics discards codec outcomes.
type NoopMetrics struct{}

func (NoopMetrics) RecordEncode(context.Context, string, int, int)      {}
func (NoopMetrics) RecordDecode(context.Context, string, string, int64) {}

// Codec encodes and decodes diagram specs.
//
// Contract:
//   - Concurrency: safe for concurrent use if the Validator is.
//   - Compress never fails because of compression; it returns Raw instead.
//   - Decompress honors ctx between inflate chunks and returns ctx.Err().
type Codec struct {
	cfg       Config
	logger    observe.Logger
	validator diagram.Validator
	metrics   Metrics
	tracer    observe.Tracer
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger. Default: no-op.
func WithLogger(l observe.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithValidator sets the validator applied to decoded specs.
// Default: diagram.NopValidator.
func WithValidator(v diagram.Validator) Option {
	return func(c *Codec) { c.validator = v }
}

// WithMetrics sets the metrics sink. Default: NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(c *Codec) { c.metrics = m }
}

// WithTracer sets the tracer used for codec.compress and codec.decompress
// spans. Default: no-op.
func WithTracer(t observe.Tracer) Option {
	return func(c *Codec) { c.tracer = t }
}

// New creates a Codec. Zero-valued config fields take their defaults.
func New(cfg Config, opts ...Option) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Codec{
		cfg:       cfg.withDefaults(),
		logger:    observe.NopLogger(),
		validator: diagram.NopValidator{},
		metrics:   NoopMetrics{},
		tracer:    observe.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(observe.Field{Key: "component", Value: "codec"})
	return c, nil
}

// Config returns the effective configuration.
func (c *Codec) Config() Config {
	return c.cfg
}

// Compress encodes spec. The only error is ErrMarshal, for specs that have
// no JSON form (for example a NaN position).
func (c *Codec) Compress(ctx context.Context, spec *diagram.Spec) (Payload, error) {
	ctx, span := c.tracer.StartSpan(ctx, observe.Op{Component: "codec", Name: "compress"})

	raw, err := canonical.Marshal(spec)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMarshal, err)
		c.tracer.EndSpan(span, err)
		return Payload{}, err
	}

	p := c.encode(ctx, raw)
	c.metrics.RecordEncode(ctx, p.Kind().String(), len(raw), p.Len())
	c.tracer.EndSpan(span, nil)
	return p, nil
}

// CompressString is Compress returning the wire form.
func (c *Codec) CompressString(ctx context.Context, spec *diagram.Spec) (string, error) {
	p, err := c.Compress(ctx, spec)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

func (c *Codec) encode(ctx context.Context, raw []byte) Payload {
	if len(raw) < c.cfg.Threshold {
		return Raw(string(raw))
	}

	data, err := c.deflate(raw)
	if err != nil {
		c.logger.Debug(ctx, "gzip failed; storing raw",
			observe.Field{Key: "error", Value: err},
			observe.Field{Key: "raw_bytes", Value: len(raw)},
		)
		return Raw(string(raw))
	}

	p := Compressed(data)
	if float64(p.Len()) > (1-c.cfg.MinSavings)*float64(len(raw)) {
		c.logger.Debug(ctx, "compression not worthwhile; storing raw",
			observe.Field{Key: "raw_bytes", Value: len(raw)},
			observe.Field{Key: "wire_bytes", Value: p.Len()},
		)
		return Raw(string(raw))
	}
	return p
}

func (c *Codec) deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.cfg.Level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress parses wire and decodes it with DecodePayload.
func (c *Codec) Decompress(ctx context.Context, wire string) (*diagram.Spec, error) {
	p, err := ParsePayload(wire)
	if err != nil {
		c.metrics.RecordDecode(ctx, KindCompressed.String(), OutcomeCorrupt, 0)
		c.logger.Warn(ctx, "stored payload rejected", observe.Field{Key: "error", Value: err})
		return nil, err
	}
	return c.DecodePayload(ctx, p)
}

// DecodePayload inflates p if needed, parses the JSON and runs the
// validator. Schema mismatches are logged at warn and the repaired spec is
// returned without error.
func (c *Codec) DecodePayload(ctx context.Context, p Payload) (spec *diagram.Spec, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observe.Op{Component: "codec", Name: "decompress"})
	outcome := OutcomeOK
	var size int64
	defer func() {
		c.tracer.EndSpan(span, err)
		c.metrics.RecordDecode(ctx, p.Kind().String(), outcome, size)
	}()

	if err := ctx.Err(); err != nil {
		outcome = OutcomeCanceled
		return nil, err
	}

	text := []byte(p.Text())
	if p.Kind() == KindCompressed {
		text, err = c.inflate(ctx, p.Bytes())
		if err != nil {
			outcome = c.failure(ctx, err)
			return nil, err
		}
		size = int64(len(text))
	}

	var decoded diagram.Spec
	if err := json.Unmarshal(text, &decoded); err != nil {
		derr := &DecodeError{Stage: StageJSON, Err: err}
		outcome = c.failure(ctx, derr)
		return nil, derr
	}

	validated, verr := c.validator.Validate(ctx, text, &decoded)
	switch {
	case verr == nil:
	case errors.Is(verr, context.Canceled), errors.Is(verr, context.DeadlineExceeded):
		outcome = OutcomeCanceled
		return nil, verr
	default:
		outcome = OutcomeDrift
		c.logger.Warn(ctx, "schema drift in stored spec",
			observe.Field{Key: "error", Value: verr},
			observe.Field{Key: "kind", Value: p.Kind().String()},
		)
	}

	if validated == nil {
		validated = &decoded
	}
	return validated, nil
}

// inflate reads the gzip stream in ChunkSize reads and stops as soon as
// the total passes MaxDecompressedBytes.
func (c *Codec) inflate(ctx context.Context, data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Stage: StageGzip, Err: err}
	}
	defer zr.Close()

	var out bytes.Buffer
	chunk := make([]byte, c.cfg.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := zr.Read(chunk)
		if n > 0 {
			total := int64(out.Len() + n)
			if total > c.cfg.MaxDecompressedBytes {
				return nil, &LimitError{Limit: c.cfg.MaxDecompressedBytes, Read: total}
			}
			out.Write(chunk[:n])
		}
		if errors.Is(rerr, io.EOF) {
			return out.Bytes(), nil
		}
		if rerr != nil {
			return nil, &DecodeError{Stage: StageGzip, Err: rerr}
		}
	}
}

// failure logs a decode error and maps it to a metrics outcome.
func (c *Codec) failure(ctx context.Context, err error) string {
	var limit *LimitError
	switch {
	case errors.As(err, &limit):
		c.logger.Warn(ctx, "decompression limit exceeded",
			observe.Field{Key: "limit_bytes", Value: limit.Limit},
			observe.Field{Key: "read_bytes", Value: limit.Read},
		)
		return OutcomeLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		c.logger.Warn(ctx, "stored payload is corrupt", observe.Field{Key: "error", Value: err})
		return OutcomeCorrupt
	}
}
