package cache

import "context"

// LoadFunc fetches a value from the source of truth on a cache miss.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// loaded boxes a value so that nil interface values survive singleflight.
type loaded[V any] struct {
	value V
}

// GetOrLoad returns the cached value for key, or calls load on a miss and
// stores its result.
//
// Concurrent misses for the same key share a single load call. The load
// runs on a context detached from the caller's cancellation, so one caller
// giving up does not fail the others; load must bound itself with its own
// deadline. A caller whose ctx is done returns ctx.Err() without waiting.
//
// A Set, Delete, Clear or matching InvalidatePattern for key while the
// load is in flight supersedes it: callers still receive the loaded value
// but it is not stored. Errors are NOT cached.
func (c *Bounded[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	var zero V
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	ch := c.sf.DoChan(key, func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		c.beginLoad(key)
		v, err := load(lctx)
		c.finishLoad(lctx, key, v, err)
		if err != nil {
			return nil, err
		}
		return loaded[V]{value: v}, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(loaded[V]).value, nil
	}
}

func (c *Bounded[V]) beginLoad(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading[key] = false
}

// finishLoad stores a successful load unless a write superseded it.
func (c *Bounded[V]) finishLoad(ctx context.Context, key string, v V, err error) {
	var size int64
	if err == nil {
		size = EstimateSize(v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	superseded := c.loading[key]
	delete(c.loading, key)
	if err != nil || superseded {
		return
	}
	c.setLocked(ctx, key, v, size)
}
