package perf

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/benbjohnson/clock"

	"github.com/jonwraymond/diagramops/cache"
	"github.com/jonwraymond/diagramops/codec"
	"github.com/jonwraymond/diagramops/diagram"
	"github.com/jonwraymond/diagramops/etag"
	"github.com/jonwraymond/diagramops/health"
	"github.com/jonwraymond/diagramops/observe"
	"github.com/jonwraymond/diagramops/resilience"
)

// Source is the source of truth behind the caches.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: errors are returned to the caller and never cached. Wrap
//     answers that retrying cannot change, such as "not found", with
//     resilience.Permanent so they skip retries and the breaker.
//   - Timeouts: a call that outlives Config.Source.Timeout is abandoned,
//     not stopped, and may still be running when the retry starts.
type Source interface {
	// Load returns the current spec of diagram id.
	Load(ctx context.Context, id string) (*diagram.Spec, error)

	// LoadVersion returns version n of diagram id.
	LoadVersion(ctx context.Context, id string, n int) (*diagram.Spec, error)
}

// RenderFunc turns a spec into an export artifact, e.g. Mermaid text.
type RenderFunc func(ctx context.Context, spec *diagram.Spec, format string) ([]byte, error)

// ListFunc loads one page of diagram summaries on a list cache miss.
type ListFunc func(ctx context.Context) ([]diagram.Summary, error)

// Option configures a Service.
type Option func(*options)

type options struct {
	logger observe.Logger
	clock  clock.Clock
}

// WithLogger replaces the logger built from Config.Observe.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the time source for every cache and the source guard.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Service is the composition root: it owns the observer, the codec and
// the caches, and serves cache-aside reads over a Source.
type Service struct {
	cfg    Config
	obs    observe.Observer
	logger observe.Logger
	inst   *observe.Instrument
	codec  *codec.Codec
	caches *Caches
	health *health.Aggregator
	source Source
	guard  *resilience.Guard
}

// New wires the subsystem from cfg.
func New(ctx context.Context, cfg Config, source Source, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("perf: observer: %w", err)
	}
	logger := obs.Logger()
	if o.logger != nil {
		logger = o.logger
	}
	logger = logger.With(observe.Field{Key: "component", Value: "perf"})

	s, err := build(cfg, obs, logger, o.clock, source)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	logger.Info(ctx, "diagram performance subsystem ready",
		observe.Field{Key: "codec_threshold", Value: s.codec.Config().Threshold},
		observe.Field{Key: "max_decompressed_bytes", Value: s.codec.Config().MaxDecompressedBytes},
	)
	return s, nil
}

func build(cfg Config, obs observe.Observer, logger observe.Logger, clk clock.Clock, source Source) (*Service, error) {
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		return nil, fmt.Errorf("perf: metrics: %w", err)
	}
	tracer := observe.NewTracer(obs.Tracer())

	validator, err := diagram.NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	codecMetrics, err := observe.NewCodecMetrics(obs.Meter())
	if err != nil {
		return nil, fmt.Errorf("perf: codec metrics: %w", err)
	}
	cdc, err := codec.New(cfg.Codec,
		codec.WithLogger(logger),
		codec.WithValidator(validator),
		codec.WithMetrics(codecMetrics),
		codec.WithTracer(tracer),
	)
	if err != nil {
		return nil, err
	}

	caches, err := NewCaches(cfg.Caches, obs.Meter(), logger, clk)
	if err != nil {
		return nil, err
	}

	guard, err := newSourceGuard(cfg.Source, logger, clk)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator(cfg.Health)
	for _, p := range caches.all() {
		name := "cache." + p.name
		agg.Register(name, health.NewCacheChecker(name, p.stats, cfg.CacheHealth))
	}
	agg.Register("source", newBreakerChecker("source", guard.Breaker()))

	return &Service{
		cfg:    cfg,
		obs:    obs,
		logger: logger,
		inst:   observe.NewInstrument(tracer, metrics, logger),
		codec:  cdc,
		caches: caches,
		health: agg,
		source: source,
		guard:  guard,
	}, nil
}

// Caches exposes the cache instances.
func (s *Service) Caches() *Caches {
	return s.caches
}

// Codec exposes the spec codec.
func (s *Service) Codec() *codec.Codec {
	return s.codec
}

// Spec returns diagram id and its ETag. The spec is cached in its encoded
// form and decoded on every read.
func (s *Service) Spec(ctx context.Context, id string) (*diagram.Spec, string, error) {
	var (
		spec *diagram.Spec
		tag  string
	)
	key := cache.Key(NSDiagram, id)
	err := s.inst.Run(ctx, observe.Op{Component: "perf", Name: "spec", Key: id}, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		if err := cache.ValidateKey(key); err != nil {
			return err
		}
		var err error
		spec, err = s.readPayload(ctx, s.caches.Diagrams, key, func(ctx context.Context) (*diagram.Spec, error) {
			return resilience.Do(ctx, s.guard, func(ctx context.Context) (*diagram.Spec, error) {
				return s.source.Load(ctx, id)
			})
		})
		if err != nil {
			return err
		}
		tag, err = etag.Generate(spec)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return spec, tag, nil
}

// PutSpec stores a new current spec for id, drops everything derived from
// the old one and returns the new ETag.
func (s *Service) PutSpec(ctx context.Context, id string, spec *diagram.Spec) (string, error) {
	var tag string
	key := cache.Key(NSDiagram, id)
	err := s.inst.Run(ctx, observe.Op{Component: "perf", Name: "put_spec", Key: id}, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		if err := cache.ValidateKey(key); err != nil {
			return err
		}
		p, err := s.codec.Compress(ctx, spec)
		if err != nil {
			return err
		}
		if tag, err = etag.Generate(spec); err != nil {
			return err
		}
		s.caches.InvalidateDiagram(ctx, id)
		s.caches.Diagrams.Set(ctx, key, p)
		return nil
	})
	return tag, err
}

// Version returns version n of diagram id.
func (s *Service) Version(ctx context.Context, id string, n int) (*diagram.Spec, error) {
	var spec *diagram.Spec
	key := cache.Key(NSVersion, id, strconv.Itoa(n))
	err := s.inst.Run(ctx, observe.Op{Component: "perf", Name: "version", Key: key}, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		if err := cache.ValidateKey(key); err != nil {
			return err
		}
		var err error
		spec, err = s.readPayload(ctx, s.caches.Versions, key, func(ctx context.Context) (*diagram.Spec, error) {
			return resilience.Do(ctx, s.guard, func(ctx context.Context) (*diagram.Spec, error) {
				return s.source.LoadVersion(ctx, id, n)
			})
		})
		return err
	})
	return spec, err
}

// Export returns the artifact for diagram id in format, rendering it from
// the current spec on a miss.
func (s *Service) Export(ctx context.Context, id, format string, render RenderFunc) ([]byte, error) {
	var out []byte
	key := cache.Key(NSExport, id, format)
	err := s.inst.Run(ctx, observe.Op{Component: "perf", Name: "export", Key: key}, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		if err := cache.ValidateKey(key); err != nil {
			return err
		}
		var err error
		out, err = s.caches.Exports.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
			spec, _, err := s.Spec(ctx, id)
			if err != nil {
				return nil, err
			}
			return render(ctx, spec, format)
		})
		return err
	})
	return out, err
}

// List returns the summaries for owner and query, calling load on a miss.
// Queries are keyed by their canonical JSON, so logically equal queries
// share an entry.
func (s *Service) List(ctx context.Context, owner string, query any, load ListFunc) ([]diagram.Summary, error) {
	var out []diagram.Summary
	err := s.inst.Run(ctx, observe.Op{Component: "perf", Name: "list", Key: owner}, func(ctx context.Context) error {
		key, err := cache.HashedKey(cache.Key(NSList, owner), query)
		if err != nil {
			return err
		}
		if err := cache.ValidateKey(key); err != nil {
			return err
		}
		out, err = s.caches.Lists.GetOrLoad(ctx, key, cache.LoadFunc[[]diagram.Summary](load))
		return err
	})
	return out, err
}

// Invalidate drops everything cached for diagram id and returns how many
// entries were removed.
func (s *Service) Invalidate(ctx context.Context, id string) int {
	removed := s.caches.InvalidateDiagram(ctx, id)
	s.logger.Debug(ctx, "diagram invalidated",
		observe.Field{Key: "id", Value: id},
		observe.Field{Key: "removed", Value: removed},
	)
	return removed
}

// Stats returns a snapshot per cache.
func (s *Service) Stats() map[string]cache.Stats {
	return s.caches.Stats()
}

// Health checks every cache and returns the overall status with the
// per-cache results.
func (s *Service) Health(ctx context.Context) (health.Status, map[string]health.Result) {
	results := s.health.CheckAll(ctx)
	return s.health.OverallStatus(results), results
}

// Shutdown stops cache sweeps and flushes telemetry.
func (s *Service) Shutdown(ctx context.Context) error {
	s.caches.Close()
	return s.obs.Shutdown(ctx)
}

// readPayload is the cache-aside read shared by Spec and Version. A cached
// payload that no longer decodes is dropped so the next read reloads it.
func (s *Service) readPayload(
	ctx context.Context,
	c *cache.Bounded[codec.Payload],
	key string,
	load func(context.Context) (*diagram.Spec, error),
) (*diagram.Spec, error) {
	p, err := c.GetOrLoad(ctx, key, func(ctx context.Context) (codec.Payload, error) {
		spec, err := load(ctx)
		if err != nil {
			return codec.Payload{}, err
		}
		return s.codec.Compress(ctx, spec)
	})
	if err != nil {
		return nil, err
	}

	spec, err := s.codec.DecodePayload(ctx, p)
	if errors.Is(err, codec.ErrDecode) || errors.Is(err, codec.ErrDecompressionLimit) {
		c.Delete(ctx, key)
	}
	return spec, err
}
