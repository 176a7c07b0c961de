package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jonwraymond/diagramops/observe"
)

// Default bounds for a Bounded cache.
const (
	DefaultMaxEntries   = 1000
	DefaultMaxSizeBytes = 50 * 1024 * 1024
	DefaultTTL          = 5 * time.Minute

	// DefaultAccessWeight is how much recency one recorded access is worth
	// in the eviction score.
	DefaultAccessWeight = time.Second
)

// Config configures a Bounded cache. It is fixed once the cache is built.
type Config struct {
	// Name labels the cache in logs and metrics.
	Name string `yaml:"name"`

	// MaxEntries caps the number of live entries. Default: 1000
	MaxEntries int `yaml:"max_entries"`

	// MaxSizeBytes caps the summed entry sizes. Default: 50 MiB
	MaxSizeBytes int64 `yaml:"max_size_bytes"`

	// TTL is the age after which an entry reads as absent. Default: 5 minutes
	TTL time.Duration `yaml:"ttl"`

	// EvictionBatchPercent, when set, evicts ceil(p*MaxEntries) entries per
	// eviction pass instead of one. Must be in (0, 1]. Zero disables batching.
	EvictionBatchPercent float64 `yaml:"eviction_batch_percent"`

	// AccessWeight is added to an entry's score once per recorded access.
	// Default: 1s
	AccessWeight time.Duration `yaml:"access_weight"`

	// SweepInterval enables a background sweep of expired entries.
	// Zero disables it; lazy expiry alone is sufficient for correctness.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Clock is the time source. Default: the wall clock.
	Clock clock.Clock `yaml:"-"`

	// Metrics receives hit/miss/eviction events. Default: NoopMetrics.
	Metrics Metrics `yaml:"-"`

	// Logger receives eviction and sweep records. Default: no-op.
	Logger observe.Logger `yaml:"-"`
}

// DefaultConfig returns the default cache configuration.
// MaxEntries: 1000, MaxSizeBytes: 50 MiB, TTL: 5 minutes, no batching.
func DefaultConfig() Config {
	return Config{
		MaxEntries:   DefaultMaxEntries,
		MaxSizeBytes: DefaultMaxSizeBytes,
		TTL:          DefaultTTL,
		AccessWeight: DefaultAccessWeight,
	}
}

// Validate checks the configuration for values that cannot be defaulted.
func (c Config) Validate() error {
	if c.MaxEntries < 0 {
		return fmt.Errorf("%w: max entries must not be negative, got %d", ErrInvalidConfig, c.MaxEntries)
	}
	if c.MaxSizeBytes < 0 {
		return fmt.Errorf("%w: max size must not be negative, got %d", ErrInvalidConfig, c.MaxSizeBytes)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative, got %s", ErrInvalidConfig, c.TTL)
	}
	if c.EvictionBatchPercent < 0 || c.EvictionBatchPercent > 1 {
		return fmt.Errorf("%w: eviction batch percent must be in (0, 1], got %f", ErrInvalidConfig, c.EvictionBatchPercent)
	}
	if c.AccessWeight < 0 {
		return fmt.Errorf("%w: access weight must not be negative, got %s", ErrInvalidConfig, c.AccessWeight)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep interval must not be negative, got %s", ErrInvalidConfig, c.SweepInterval)
	}
	return nil
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxSizeBytes == 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.AccessWeight == 0 {
		c.AccessWeight = DefaultAccessWeight
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = observe.NopLogger()
	}
	if c.Name == "" {
		c.Name = "default"
	}
	return c
}

// batchSize returns how many entries one eviction pass removes.
func (c Config) batchSize() int {
	if c.EvictionBatchPercent <= 0 {
		return 1
	}
	n := int(math.Ceil(c.EvictionBatchPercent * float64(c.MaxEntries)))
	if n < 1 {
		n = 1
	}
	return n
}
