package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/diagramops/observe"
)

// entry is one stored item. Only lastAccessAt and accessCount change after
// insertion.
type entry[V any] struct {
	value        V
	insertedAt   time.Time
	lastAccessAt time.Time
	accessCount  int64
	sizeBytes    int64
	seq          uint64
}

// Bounded is an in-process cache with TTL expiry, entry and byte bounds,
// and recency/frequency eviction.
//
// All operations take a single mutex; none of them block on I/O. Expired
// entries are removed lazily when touched, and optionally by a background
// sweep (Config.SweepInterval).
type Bounded[V any] struct {
	cfg Config

	mu          sync.Mutex
	entries     map[string]*entry[V]
	totalBytes  int64
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
	seq         uint64

	// sf coalesces concurrent GetOrLoad calls for the same key.
	sf singleflight.Group
	// loading holds keys with a load in flight; true once a write to the
	// key supersedes that load.
	loading map[string]bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Bounded cache. Zero-valued config fields take their defaults.
func New[V any](cfg Config) (*Bounded[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Bounded[V]{
		cfg:     cfg,
		entries: make(map[string]*entry[V]),
		loading: make(map[string]bool),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweep(cfg.Clock.Ticker(cfg.SweepInterval))
	} else {
		close(c.done)
	}

	return c, nil
}

// Config returns the effective configuration.
func (c *Bounded[V]) Config() Config {
	return c.cfg
}

// Name returns the configured cache name.
func (c *Bounded[V]) Name() string {
	return c.cfg.Name
}

// Get returns the value for key if present and unexpired.
// A hit refreshes the entry's recency and access count.
func (c *Bounded[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Clock.Now()
	e, ok := c.liveLocked(key, now)
	if !ok {
		c.misses++
		c.cfg.Metrics.Miss()
		var zero V
		return zero, false
	}

	e.lastAccessAt = now
	e.accessCount++
	c.hits++
	c.cfg.Metrics.Hit()
	return e.value, true
}

// Set inserts or replaces key with an estimated size (see EstimateSize).
func (c *Bounded[V]) Set(ctx context.Context, key string, value V) {
	c.SetWithSize(ctx, key, value, EstimateSize(value))
}

// SetWithSize inserts or replaces key with a caller-supplied size.
//
// Before inserting, entries are evicted until both bounds can hold the new
// item or the cache is empty. An item larger than MaxSizeBytes is still
// stored once the cache has been emptied; the bounds are ceilings enforced
// by eviction, not admission rules.
func (c *Bounded[V]) SetWithSize(ctx context.Context, key string, value V, size int64) {
	if size < 0 {
		size = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.supersedeLocked(key)
	c.setLocked(ctx, key, value, size)
}

func (c *Bounded[V]) setLocked(ctx context.Context, key string, value V, size int64) {
	now := c.cfg.Clock.Now()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}

	c.makeRoomLocked(ctx, now, size)

	c.seq++
	c.entries[key] = &entry[V]{
		value:        value,
		insertedAt:   now,
		lastAccessAt: now,
		sizeBytes:    size,
		seq:          c.seq,
	}
	c.totalBytes += size
}

// Delete removes key and reports whether a live entry was removed.
func (c *Bounded[V]) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.supersedeLocked(key)
	_, ok := c.liveLocked(key, c.cfg.Clock.Now())
	if !ok {
		return false
	}
	c.removeLocked(key, c.entries[key])
	return true
}

// Has reports whether key is live. Recency and hit/miss counters are not
// touched; an expired entry is removed.
func (c *Bounded[V]) Has(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.liveLocked(key, c.cfg.Clock.Now())
	return ok
}

// Clear removes every entry. Hit, miss and eviction counters are kept.
func (c *Bounded[V]) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
	c.totalBytes = 0
	for key := range c.loading {
		c.loading[key] = true
	}
}

// InvalidatePattern removes every key matched by p and returns how many
// entries were removed.
func (c *Bounded[V]) InvalidatePattern(ctx context.Context, p Pattern) int {
	if p == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.loading {
		if p.Match(key) {
			c.loading[key] = true
		}
	}

	removed := 0
	for key, e := range c.entries {
		if p.Match(key) {
			c.removeLocked(key, e)
			removed++
		}
	}

	if removed > 0 {
		c.cfg.Logger.Debug(ctx, "cache invalidated",
			observe.Field{Key: "cache.name", Value: c.cfg.Name},
			observe.Field{Key: "removed", Value: removed},
		)
	}
	return removed
}

// Purge removes all expired entries now and returns how many were removed.
func (c *Bounded[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.purgeExpiredLocked(c.cfg.Clock.Now())
}

// Stats returns a snapshot of the cache counters.
func (c *Bounded[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:     len(c.entries),
		SizeBytes:   c.totalBytes,
		MaxEntries:  c.cfg.MaxEntries,
		MaxBytes:    c.cfg.MaxSizeBytes,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRate:     hitRate(c.hits, c.misses),
	}
}

// Len returns the number of stored entries, including expired entries not
// yet collected.
func (c *Bounded[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Keys returns the live keys in sorted order.
func (c *Bounded[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Clock.Now()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if !c.expired(e, now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close stops the background sweep, if any. The cache stays usable.
func (c *Bounded[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

func (c *Bounded[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.insertedAt) > c.cfg.TTL
}

// liveLocked returns the entry for key, removing it if it has expired.
func (c *Bounded[V]) liveLocked(key string, now time.Time) (*entry[V], bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e, now) {
		c.removeLocked(key, e)
		c.expirations++
		c.cfg.Metrics.Expire(1)
		return nil, false
	}
	return e, true
}

// supersedeLocked marks an in-flight load of key as stale so its result is
// not stored over a newer write.
func (c *Bounded[V]) supersedeLocked(key string) {
	if _, ok := c.loading[key]; ok {
		c.loading[key] = true
	}
}

// removeLocked deletes key and keeps totalBytes equal to the sum of live sizes.
func (c *Bounded[V]) removeLocked(key string, e *entry[V]) {
	delete(c.entries, key)
	c.totalBytes -= e.sizeBytes
}

func (c *Bounded[V]) purgeExpiredLocked(now time.Time) int {
	n := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			c.removeLocked(key, e)
			n++
		}
	}
	if n > 0 {
		c.expirations += uint64(n)
		c.cfg.Metrics.Expire(n)
	}
	return n
}

func (c *Bounded[V]) sweep(ticker *clock.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				c.cfg.Logger.Debug(context.Background(), "cache sweep",
					observe.Field{Key: "cache.name", Value: c.cfg.Name},
					observe.Field{Key: "expired", Value: n},
				)
			}
		}
	}
}

// Ensure Bounded implements Cache
var _ Cache[[]byte] = (*Bounded[[]byte])(nil)
