package cache

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries     int     `json:"entries"`
	SizeBytes   int64   `json:"size_bytes"`
	MaxEntries  int     `json:"max_entries"`
	MaxBytes    int64   `json:"max_size_bytes"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

// hitRate returns hits/(hits+misses), or 0 before any access.
func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Metrics receives cache lifecycle events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic; they are called under the cache lock
// and must return quickly.
type Metrics interface {
	// Hit is called when Get returns a live value.
	Hit()

	// Miss is called when Get finds nothing or an expired entry.
	Miss()

	// Evict is called with the number of entries removed to make room.
	Evict(n int)

	// Expire is called with the number of entries removed for exceeding TTL.
	Expire(n int)
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()       {}
func (NoopMetrics) Miss()      {}
func (NoopMetrics) Evict(int)  {}
func (NoopMetrics) Expire(int) {}
