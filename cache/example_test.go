package cache_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/diagramops/cache"
)

func ExampleNew() {
	c, err := cache.New[string](cache.Config{Name: "diagrams", MaxEntries: 100})
	if err != nil {
		panic(err)
	}
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, cache.Key("diagram", "d1"), `{"nodes":[]}`)

	value, ok := c.Get(ctx, cache.Key("diagram", "d1"))
	fmt.Println("found:", ok)
	fmt.Println("value:", value)
	// Output:
	// found: true
	// value: {"nodes":[]}
}

func ExampleBounded_InvalidatePattern() {
	c, _ := cache.New[int](cache.Config{})
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, cache.Key("version", "d1", "1"), 1)
	c.Set(ctx, cache.Key("version", "d1", "2"), 2)
	c.Set(ctx, cache.Key("version", "d2", "1"), 1)

	removed := c.InvalidatePattern(ctx, cache.Prefix(cache.Key("version", "d1")+cache.KeySeparator))
	fmt.Println("removed:", removed)
	fmt.Println("remaining:", c.Keys())
	// Output:
	// removed: 2
	// remaining: [version:d2:1]
}

func ExampleBounded_Stats() {
	c, _ := cache.New[string](cache.Config{})
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", "x")
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "missing")

	s := c.Stats()
	fmt.Printf("entries=%d bytes=%d hits=%d misses=%d rate=%.2f\n",
		s.Entries, s.SizeBytes, s.Hits, s.Misses, s.HitRate)
	// Output:
	// entries=1 bytes=1 hits=1 misses=1 rate=0.50
}

func ExampleBounded_GetOrLoad() {
	c, _ := cache.New[string](cache.Config{})
	defer c.Close()
	ctx := context.Background()

	load := func(ctx context.Context) (string, error) {
		fmt.Println("loading from source")
		return "fresh", nil
	}

	v1, _ := c.GetOrLoad(ctx, "k", load)
	v2, _ := c.GetOrLoad(ctx, "k", load)
	fmt.Println(v1, v2)
	// Output:
	// loading from source
	// fresh fresh
}
