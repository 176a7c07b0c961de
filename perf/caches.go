package perf

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/diagramops/cache"
	"github.com/jonwraymond/diagramops/codec"
	"github.com/jonwraymond/diagramops/diagram"
	"github.com/jonwraymond/diagramops/observe"
)

// Key namespaces. Every key a Service writes starts with one of these.
const (
	NSDiagram = "diagram"
	NSVersion = "version"
	NSList    = "list"
	NSExport  = "export"
)

// Caches holds the four cache instances. They are built once by NewCaches
// and owned by whoever built them.
type Caches struct {
	Diagrams *cache.Bounded[codec.Payload]
	Versions *cache.Bounded[codec.Payload]
	Lists    *cache.Bounded[[]diagram.Summary]
	Exports  *cache.Bounded[[]byte]
}

// NewCaches builds the caches from cfg. Each cache reports to meter under
// its configured name and logs through logger. clk may be nil.
func NewCaches(cfg CachesConfig, meter metric.Meter, logger observe.Logger, clk clock.Clock) (*Caches, error) {
	c := &Caches{}
	var err error

	if c.Diagrams, err = newCache[codec.Payload](cfg.Diagrams, meter, logger, clk); err != nil {
		return nil, err
	}
	if c.Versions, err = newCache[codec.Payload](cfg.Versions, meter, logger, clk); err != nil {
		c.Close()
		return nil, err
	}
	if c.Lists, err = newCache[[]diagram.Summary](cfg.Lists, meter, logger, clk); err != nil {
		c.Close()
		return nil, err
	}
	if c.Exports, err = newCache[[]byte](cfg.Exports, meter, logger, clk); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func newCache[V any](cfg cache.Config, meter metric.Meter, logger observe.Logger, clk clock.Clock) (*cache.Bounded[V], error) {
	m, err := observe.NewCacheMetrics(meter, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("perf: cache %s metrics: %w", cfg.Name, err)
	}
	cfg.Metrics = m
	cfg.Logger = logger.With(observe.Field{Key: "cache.name", Value: cfg.Name})
	if clk != nil {
		cfg.Clock = clk
	}

	c, err := cache.New[V](cfg)
	if err != nil {
		return nil, fmt.Errorf("perf: cache %s: %w", cfg.Name, err)
	}
	return c, nil
}

// statsProvider pairs a cache name with its stats source.
type statsProvider struct {
	name  string
	stats interface{ Stats() cache.Stats }
}

func (c *Caches) all() []statsProvider {
	return []statsProvider{
		{"diagrams", c.Diagrams},
		{"versions", c.Versions},
		{"lists", c.Lists},
		{"exports", c.Exports},
	}
}

// Stats returns a snapshot per cache, keyed by diagrams, versions, lists
// and exports.
func (c *Caches) Stats() map[string]cache.Stats {
	out := make(map[string]cache.Stats, 4)
	for _, p := range c.all() {
		out[p.name] = p.stats.Stats()
	}
	return out
}

// validateID rejects ids that cannot be keyed unambiguously. An id holding
// cache.KeySeparator would let the prefix of one diagram match another's
// versions and exports.
func validateID(id string) error {
	if id == "" || strings.Contains(id, cache.KeySeparator) {
		return fmt.Errorf("%w: diagram id %q must be non-empty and must not contain %q",
			cache.ErrInvalidKey, id, cache.KeySeparator)
	}
	return nil
}

// InvalidateDiagram drops everything cached for diagram id and every list
// page, since any list may include it. It returns the number of entries
// removed. Invalid ids are never cached, so nothing is removed for them.
func (c *Caches) InvalidateDiagram(ctx context.Context, id string) int {
	if validateID(id) != nil {
		return 0
	}
	removed := 0
	if c.Diagrams.Delete(ctx, cache.Key(NSDiagram, id)) {
		removed++
	}
	removed += c.Versions.InvalidatePattern(ctx, cache.Prefix(cache.Key(NSVersion, id)+cache.KeySeparator))
	removed += c.Exports.InvalidatePattern(ctx, cache.Prefix(cache.Key(NSExport, id)+cache.KeySeparator))
	removed += c.Lists.InvalidatePattern(ctx, cache.Prefix(NSList+cache.KeySeparator))
	return removed
}

// Clear empties every cache.
func (c *Caches) Clear(ctx context.Context) {
	c.Diagrams.Clear(ctx)
	c.Versions.Clear(ctx)
	c.Lists.Clear(ctx)
	c.Exports.Clear(ctx)
}

// Close stops background sweeps. Nil caches are skipped.
func (c *Caches) Close() {
	if c.Diagrams != nil {
		c.Diagrams.Close()
	}
	if c.Versions != nil {
		c.Versions.Close()
	}
	if c.Lists != nil {
		c.Lists.Close()
	}
	if c.Exports != nil {
		c.Exports.Close()
	}
}
