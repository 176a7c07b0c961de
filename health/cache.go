package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/diagramops/cache"
)

// StatsProvider is anything that reports cache statistics.
// *cache.Bounded satisfies it.
type StatsProvider interface {
	Stats() cache.Stats
}

// CacheCheckerConfig configures a CacheChecker.
type CacheCheckerConfig struct {
	// FillWarning is the fraction of MaxEntries or MaxBytes at which the
	// cache reports degraded. Value should be in (0, 1]. Default: 0.9
	FillWarning float64 `yaml:"fill_warning"`

	// MinHitRate is the hit rate below which the cache reports degraded.
	// Zero disables the check.
	MinHitRate float64 `yaml:"min_hit_rate"`

	// MinSamples is the number of reads required before MinHitRate is
	// enforced. Default: 100
	MinSamples uint64 `yaml:"min_samples"`
}

// CacheChecker reports a cache as degraded when it is close to its bounds
// or its hit rate is poor.
type CacheChecker struct {
	name   string
	stats  StatsProvider
	config CacheCheckerConfig
}

// NewCacheChecker creates a checker for the cache behind stats.
func NewCacheChecker(name string, stats StatsProvider, config CacheCheckerConfig) *CacheChecker {
	if config.FillWarning <= 0 || config.FillWarning > 1 {
		config.FillWarning = 0.9
	}
	if config.MinSamples == 0 {
		config.MinSamples = 100
	}
	return &CacheChecker{name: name, stats: stats, config: config}
}

// Name returns the name of this checker.
func (c *CacheChecker) Name() string {
	return c.name
}

// Check reads the cache stats and grades them.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	s := c.stats.Stats()
	entryFill := ratio(float64(s.Entries), float64(s.MaxEntries))
	byteFill := ratio(float64(s.SizeBytes), float64(s.MaxBytes))

	details := map[string]any{
		"entries":     s.Entries,
		"size_bytes":  s.SizeBytes,
		"entry_fill":  entryFill,
		"byte_fill":   byteFill,
		"hits":        s.Hits,
		"misses":      s.Misses,
		"hit_rate":    s.HitRate,
		"evictions":   s.Evictions,
		"expirations": s.Expirations,
	}

	if fill := max(entryFill, byteFill); fill >= c.config.FillWarning {
		return Degraded(fmt.Sprintf("cache %.1f%% full", fill*100)).WithDetails(details)
	}

	if c.config.MinHitRate > 0 && s.Hits+s.Misses >= c.config.MinSamples && s.HitRate < c.config.MinHitRate {
		return Degraded(fmt.Sprintf("hit rate %.1f%% below %.1f%%", s.HitRate*100, c.config.MinHitRate*100)).WithDetails(details)
	}

	return Healthy(fmt.Sprintf("%d entries, hit rate %.1f%%", s.Entries, s.HitRate*100)).WithDetails(details)
}

func ratio(n, d float64) float64 {
	if d <= 0 {
		return 0
	}
	return n / d
}
