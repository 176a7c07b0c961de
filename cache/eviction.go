package cache

import (
	"context"
	"sort"
	"time"

	"github.com/jonwraymond/diagramops/observe"
)

// candidate is an entry considered for eviction.
type candidate[V any] struct {
	key   string
	entry *entry[V]
	score int64
}

// score ranks an entry for eviction: lastAccessAt + accessCount*weight.
// Lower scores are evicted first, so recent and frequently read entries
// survive longer.
func score[V any](e *entry[V], weight time.Duration) int64 {
	return e.lastAccessAt.UnixNano() + e.accessCount*int64(weight)
}

// evictsBefore orders candidates lowest score first. Equal scores fall back
// to insertion order.
func evictsBefore[V any](a, b candidate[V]) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.entry.seq < b.entry.seq
}

// overLocked reports whether inserting an item of size would break a bound.
func (c *Bounded[V]) overLocked(size int64) bool {
	return len(c.entries) >= c.cfg.MaxEntries || c.totalBytes+size > c.cfg.MaxSizeBytes
}

// makeRoomLocked evicts until an item of size fits or the cache is empty.
// Expired entries are purged once before any live entry is evicted.
func (c *Bounded[V]) makeRoomLocked(ctx context.Context, now time.Time, size int64) {
	purged := false
	for len(c.entries) > 0 && c.overLocked(size) {
		if !purged {
			purged = true
			if c.purgeExpiredLocked(now) > 0 {
				continue
			}
		}

		victims := c.victimsLocked(c.cfg.batchSize())
		for _, v := range victims {
			c.removeLocked(v.key, v.entry)
		}

		c.evictions += uint64(len(victims))
		c.cfg.Metrics.Evict(len(victims))
		c.cfg.Logger.Debug(ctx, "cache eviction",
			observe.Field{Key: "cache.name", Value: c.cfg.Name},
			observe.Field{Key: "evicted", Value: len(victims)},
			observe.Field{Key: "entries", Value: len(c.entries)},
			observe.Field{Key: "size_bytes", Value: c.totalBytes},
		)
	}
}

// victimsLocked returns up to n entries with the lowest scores.
func (c *Bounded[V]) victimsLocked(n int) []candidate[V] {
	weight := c.cfg.AccessWeight

	if n == 1 {
		var victim candidate[V]
		found := false
		for key, e := range c.entries {
			cand := candidate[V]{key: key, entry: e, score: score(e, weight)}
			if !found || evictsBefore(cand, victim) {
				victim = cand
				found = true
			}
		}
		if !found {
			return nil
		}
		return []candidate[V]{victim}
	}

	all := make([]candidate[V], 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, candidate[V]{key: key, entry: e, score: score(e, weight)})
	}
	sort.Slice(all, func(i, j int) bool {
		return evictsBefore(all[i], all[j])
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}
