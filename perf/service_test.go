package perf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jonwraymond/diagramops/cache"
	"github.com/jonwraymond/diagramops/codec"
	"github.com/jonwraymond/diagramops/diagram"
	"github.com/jonwraymond/diagramops/etag"
	"github.com/jonwraymond/diagramops/health"
	"github.com/jonwraymond/diagramops/observe"
	"github.com/jonwraymond/diagramops/resilience"
)

type fakeSource struct {
	mu       sync.Mutex
	specs    map[string]*diagram.Spec
	loads    atomic.Int32
	versions atomic.Int32
	err      error

	// entered and gate, when set, hold Load open until gate is closed.
	entered chan struct{}
	gate    chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{specs: map[string]*diagram.Spec{
		"small": {Title: "small", Nodes: []diagram.Node{{ID: "a"}, {ID: "b"}}, Edges: []diagram.Edge{{From: "a", To: "b"}}},
		"large": largeSpec(200),
	}}
}

func (f *fakeSource) Load(_ context.Context, id string) (*diagram.Spec, error) {
	f.loads.Add(1)
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	spec, ok := f.specs[id]
	if !ok {
		return nil, resilience.Permanent(fmt.Errorf("diagram %s not found", id))
	}
	return spec, nil
}

func (f *fakeSource) LoadVersion(_ context.Context, id string, n int) (*diagram.Spec, error) {
	f.versions.Add(1)
	return &diagram.Spec{Version: n, Title: id}, nil
}

func largeSpec(n int) *diagram.Spec {
	s := &diagram.Spec{Title: "large"}
	for i := 0; i < n; i++ {
		s.Nodes = append(s.Nodes, diagram.Node{
			ID:    fmt.Sprintf("n%d", i),
			Label: "an intentionally verbose label describing what this step of the workflow does",
		})
	}
	return s
}

func newTestService(t *testing.T, src Source, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(observe.NopLogger())}, opts...)
	s, err := New(context.Background(), DefaultConfig(), src, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestNew_RequiresSource(t *testing.T) {
	if _, err := New(context.Background(), DefaultConfig(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("New() = %v, want ErrInvalidConfig", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Caches.Exports.EvictionBatchPercent = 2
	if _, err := New(context.Background(), cfg, newFakeSource()); !errors.Is(err, cache.ErrInvalidConfig) {
		t.Fatalf("New() = %v, want cache.ErrInvalidConfig", err)
	}
}

func TestNew_CacheTuning(t *testing.T) {
	s := newTestService(t, newFakeSource())

	tests := []struct {
		name    string
		cfg     cache.Config
		entries int
		bytes   int64
		ttl     time.Duration
		batch   float64
	}{
		{"diagrams", s.caches.Diagrams.Config(), 500, 100 * mib, 10 * time.Minute, 0},
		{"versions", s.caches.Versions.Config(), 1000, 50 * mib, 30 * time.Minute, 0},
		{"lists", s.caches.Lists.Config(), 200, 10 * mib, time.Minute, 0},
		{"exports", s.caches.Exports.Config(), 200, 50 * mib, 15 * time.Minute, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Name != tt.name {
				t.Errorf("Name = %q", tt.cfg.Name)
			}
			if tt.cfg.MaxEntries != tt.entries || tt.cfg.MaxSizeBytes != tt.bytes || tt.cfg.TTL != tt.ttl {
				t.Errorf("bounds = %d/%d/%s", tt.cfg.MaxEntries, tt.cfg.MaxSizeBytes, tt.cfg.TTL)
			}
			if tt.cfg.EvictionBatchPercent != tt.batch {
				t.Errorf("EvictionBatchPercent = %v, want %v", tt.cfg.EvictionBatchPercent, tt.batch)
			}
		})
	}
}

func TestSpec_CacheAside(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)
	ctx := context.Background()

	first, tag1, err := s.Spec(ctx, "small")
	if err != nil {
		t.Fatalf("Spec() = %v", err)
	}
	second, tag2, err := s.Spec(ctx, "small")
	if err != nil {
		t.Fatalf("Spec() = %v", err)
	}

	if src.loads.Load() != 1 {
		t.Errorf("source loads = %d, want 1", src.loads.Load())
	}
	if tag1 != tag2 || tag1 != etag.MustGenerate(src.specs["small"]) {
		t.Errorf("etags = %s, %s", tag1, tag2)
	}
	if first.Title != "small" || len(second.Nodes) != 2 {
		t.Errorf("spec = %+v", second)
	}

	st := s.Stats()["diagrams"]
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("diagrams stats = %+v", st)
	}
}

func TestSpec_LargeSpecStoredCompressed(t *testing.T) {
	s := newTestService(t, newFakeSource())
	ctx := context.Background()

	spec, _, err := s.Spec(ctx, "large")
	if err != nil {
		t.Fatalf("Spec() = %v", err)
	}
	if len(spec.Nodes) != 200 {
		t.Errorf("nodes = %d", len(spec.Nodes))
	}

	p, ok := s.caches.Diagrams.Get(ctx, cache.Key(NSDiagram, "large"))
	if !ok {
		t.Fatal("spec not cached")
	}
	if p.Kind() != codec.KindCompressed {
		t.Errorf("cached payload kind = %v, want compressed", p.Kind())
	}
}

func TestSpec_SourceErrorNotCached(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("database down")
	s := newTestService(t, src)
	ctx := context.Background()

	if _, _, err := s.Spec(ctx, "small"); err == nil {
		t.Fatal("expected error")
	}

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()

	if got := src.loads.Load(); got != 2 {
		t.Errorf("source loads after failure = %d, want 2 (one retry)", got)
	}

	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatalf("Spec() after recovery = %v", err)
	}
	if got := src.loads.Load(); got != 3 {
		t.Errorf("source loads = %d, want 3", got)
	}
}

func TestSpec_NotFoundIsNotRetried(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)

	_, _, err := s.Spec(context.Background(), "missing")
	if err == nil || !resilience.IsPermanent(err) {
		t.Fatalf("Spec() = %v, want permanent error", err)
	}
	if got := src.loads.Load(); got != 1 {
		t.Errorf("source loads = %d, want 1", got)
	}
	if st := s.guard.Breaker().State(); st != resilience.StateClosed {
		t.Errorf("breaker = %v, want closed", st)
	}
}

func TestSpec_SourceBreaker(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("database down")
	mock := clock.NewMock()

	cfg := DefaultConfig()
	cfg.Source.Retry.MaxAttempts = 1
	cfg.Source.Breaker.MaxFailures = 2
	s, err := New(context.Background(), cfg, src, WithLogger(observe.NopLogger()), WithClock(mock))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := s.Spec(ctx, "small"); err == nil {
			t.Fatal("expected error")
		}
	}
	if _, _, err := s.Spec(ctx, "small"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Spec() = %v, want ErrCircuitOpen", err)
	}
	if got := src.loads.Load(); got != 2 {
		t.Errorf("source loads = %d, want 2", got)
	}

	status, results := s.Health(ctx)
	if status != health.StatusUnhealthy || results["source"].Status != health.StatusUnhealthy {
		t.Errorf("status = %v, source = %+v", status, results["source"])
	}

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	mock.Add(cfg.Source.Breaker.ResetTimeout)

	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatalf("Spec() after reset timeout = %v", err)
	}
	if status, _ := s.Health(ctx); status != health.StatusHealthy {
		t.Errorf("status after recovery = %v", status)
	}
}

func TestService_InvalidID(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)
	ctx := context.Background()

	ops := map[string]func(id string) error{
		"spec": func(id string) error {
			_, _, err := s.Spec(ctx, id)
			return err
		},
		"put_spec": func(id string) error {
			_, err := s.PutSpec(ctx, id, &diagram.Spec{Title: "x"})
			return err
		},
		"version": func(id string) error {
			_, err := s.Version(ctx, id, 1)
			return err
		},
		"export": func(id string) error {
			_, err := s.Export(ctx, id, "mermaid", mermaid)
			return err
		},
	}

	for name, op := range ops {
		for _, id := range []string{"", "bad\nid", "a:b", "small:1"} {
			t.Run(name+"/"+strconv.Quote(id), func(t *testing.T) {
				if err := op(id); !errors.Is(err, cache.ErrInvalidKey) {
					t.Errorf("%s(%q) = %v, want ErrInvalidKey", name, id, err)
				}
			})
		}
	}
	if src.loads.Load() != 0 || src.versions.Load() != 0 {
		t.Errorf("source called for invalid ids: loads=%d versions=%d", src.loads.Load(), src.versions.Load())
	}
}

func TestInvalidate_LeavesPrefixNeighbours(t *testing.T) {
	s := newTestService(t, newFakeSource())
	ctx := context.Background()

	for _, id := range []string{"a", "ab"} {
		if _, err := s.Version(ctx, id, 1); err != nil {
			t.Fatal(err)
		}
	}

	if got := s.Invalidate(ctx, "a"); got != 1 {
		t.Errorf("Invalidate(a) = %d, want 1", got)
	}
	if !s.caches.Versions.Has(ctx, cache.Key(NSVersion, "ab", "1")) {
		t.Error("versions of ab must survive Invalidate(a)")
	}
	if got := s.Invalidate(ctx, "a:b"); got != 0 {
		t.Errorf("Invalidate(a:b) = %d, want 0", got)
	}
}

func TestPutSpec_WinsOverInFlightLoad(t *testing.T) {
	src := newFakeSource()
	src.entered = make(chan struct{}, 1)
	src.gate = make(chan struct{})
	s := newTestService(t, src)
	ctx := context.Background()

	stale := make(chan *diagram.Spec, 1)
	go func() {
		spec, _, err := s.Spec(ctx, "small")
		if err != nil {
			t.Errorf("Spec() = %v", err)
		}
		stale <- spec
	}()
	<-src.entered

	fresh := &diagram.Spec{Title: "edited", Nodes: []diagram.Node{{ID: "z"}}}
	if _, err := s.PutSpec(ctx, "small", fresh); err != nil {
		t.Fatal(err)
	}
	close(src.gate)

	if got := <-stale; got.Title != "small" {
		t.Errorf("in-flight Spec() title = %q, want small", got.Title)
	}
	got, _, err := s.Spec(ctx, "small")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "edited" {
		t.Errorf("Spec() after PutSpec title = %q, want edited", got.Title)
	}
	if src.loads.Load() != 1 {
		t.Errorf("source loads = %d, want 1", src.loads.Load())
	}
}

func TestSpec_CorruptCachedPayloadIsDropped(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)
	ctx := context.Background()
	key := cache.Key(NSDiagram, "small")

	s.caches.Diagrams.Set(ctx, key, codec.Raw(`{"nodes":`))

	if _, _, err := s.Spec(ctx, "small"); !errors.Is(err, codec.ErrDecode) {
		t.Fatalf("Spec() = %v, want ErrDecode", err)
	}
	if s.caches.Diagrams.Has(ctx, key) {
		t.Error("corrupt payload should be evicted")
	}

	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatalf("Spec() after drop = %v", err)
	}
	if src.loads.Load() != 1 {
		t.Errorf("source loads = %d, want 1", src.loads.Load())
	}
}

func TestSpec_TTLExpiry(t *testing.T) {
	src := newFakeSource()
	mock := clock.NewMock()
	s := newTestService(t, src, WithClock(mock))
	ctx := context.Background()

	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatal(err)
	}
	mock.Add(10 * time.Minute)
	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatal(err)
	}
	if src.loads.Load() != 1 {
		t.Errorf("loads at exactly TTL = %d, want 1", src.loads.Load())
	}

	mock.Add(time.Nanosecond)
	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatal(err)
	}
	if src.loads.Load() != 2 {
		t.Errorf("loads after TTL = %d, want 2", src.loads.Load())
	}
}

func TestPutSpec(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)
	ctx := context.Background()

	if _, err := s.Export(ctx, "small", "mermaid", mermaid); err != nil {
		t.Fatal(err)
	}

	updated := &diagram.Spec{Title: "renamed", Nodes: []diagram.Node{{ID: "z"}}}
	tag, err := s.PutSpec(ctx, "small", updated)
	if err != nil {
		t.Fatalf("PutSpec() = %v", err)
	}

	got, gotTag, err := s.Spec(ctx, "small")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "renamed" || gotTag != tag {
		t.Errorf("Spec() = %+v %s, want renamed %s", got, gotTag, tag)
	}
	if s.caches.Exports.Has(ctx, cache.Key(NSExport, "small", "mermaid")) {
		t.Error("export of the old spec should be dropped")
	}
	if src.loads.Load() != 1 {
		t.Errorf("source loads = %d, want 1", src.loads.Load())
	}
}

func TestVersion(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := s.Version(ctx, "small", 4)
		if err != nil {
			t.Fatalf("Version() = %v", err)
		}
		if v.Version != 4 {
			t.Errorf("Version = %d", v.Version)
		}
	}
	if _, err := s.Version(ctx, "small", 5); err != nil {
		t.Fatal(err)
	}
	if src.versions.Load() != 2 {
		t.Errorf("version loads = %d, want 2", src.versions.Load())
	}
}

func mermaid(_ context.Context, spec *diagram.Spec, format string) ([]byte, error) {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, e := range spec.Edges {
		fmt.Fprintf(&b, "  %s --> %s\n", e.From, e.To)
	}
	return []byte(b.String()), nil
}

func TestExport(t *testing.T) {
	s := newTestService(t, newFakeSource())
	ctx := context.Background()

	var renders atomic.Int32
	render := func(ctx context.Context, spec *diagram.Spec, format string) ([]byte, error) {
		renders.Add(1)
		return mermaid(ctx, spec, format)
	}

	for i := 0; i < 3; i++ {
		out, err := s.Export(ctx, "small", "mermaid", render)
		if err != nil {
			t.Fatalf("Export() = %v", err)
		}
		if string(out) != "flowchart TD\n  a --> b\n" {
			t.Errorf("Export() = %q", out)
		}
	}
	if renders.Load() != 1 {
		t.Errorf("renders = %d, want 1", renders.Load())
	}
}

func TestExport_RenderErrorNotCached(t *testing.T) {
	s := newTestService(t, newFakeSource())
	ctx := context.Background()
	fail := func(context.Context, *diagram.Spec, string) ([]byte, error) {
		return nil, errors.New("unsupported format")
	}

	if _, err := s.Export(ctx, "small", "pdf", fail); err == nil {
		t.Fatal("expected error")
	}
	if s.caches.Exports.Has(ctx, cache.Key(NSExport, "small", "pdf")) {
		t.Error("failed render must not be cached")
	}
}

func TestList(t *testing.T) {
	s := newTestService(t, newFakeSource())
	ctx := context.Background()

	var loads atomic.Int32
	load := func(context.Context) ([]diagram.Summary, error) {
		loads.Add(1)
		return []diagram.Summary{{ID: "d1", Title: "one", Owner: "ana"}}, nil
	}

	q1 := map[string]any{"page": 1, "sort": "updated"}
	q1Reordered := map[string]any{"sort": "updated", "page": 1}
	q2 := map[string]any{"page": 2, "sort": "updated"}

	for _, q := range []any{q1, q1Reordered, q2} {
		out, err := s.List(ctx, "ana", q, load)
		if err != nil {
			t.Fatalf("List() = %v", err)
		}
		if len(out) != 1 || out[0].ID != "d1" {
			t.Errorf("List() = %+v", out)
		}
	}
	if loads.Load() != 2 {
		t.Errorf("list loads = %d, want 2", loads.Load())
	}
}

func TestInvalidate(t *testing.T) {
	s := newTestService(t, newFakeSource())
	ctx := context.Background()
	listLoad := func(context.Context) ([]diagram.Summary, error) { return nil, nil }

	if _, _, err := s.Spec(ctx, "small"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Spec(ctx, "large"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Version(ctx, "small", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Version(ctx, "small", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Export(ctx, "small", "mermaid", mermaid); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(ctx, "ana", nil, listLoad); err != nil {
		t.Fatal(err)
	}

	// diagram + 2 versions + export + list
	if got := s.Invalidate(ctx, "small"); got != 5 {
		t.Errorf("Invalidate() = %d, want 5", got)
	}
	if !s.caches.Diagrams.Has(ctx, cache.Key(NSDiagram, "large")) {
		t.Error("other diagrams must survive")
	}
	if got := s.Invalidate(ctx, "small"); got != 0 {
		t.Errorf("second Invalidate() = %d, want 0", got)
	}
}

func TestHealth(t *testing.T) {
	s := newTestService(t, newFakeSource())

	status, results := s.Health(context.Background())
	if status != health.StatusHealthy {
		t.Errorf("status = %v", status)
	}
	for _, name := range []string{"cache.diagrams", "cache.versions", "cache.lists", "cache.exports", "source"} {
		if _, ok := results[name]; !ok {
			t.Errorf("missing result for %s", name)
		}
	}
}

func TestHealth_DegradedWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Caches.Versions.MaxEntries = 2
	s, err := New(context.Background(), cfg, newFakeSource(), WithLogger(observe.NopLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background())

	ctx := context.Background()
	for n := 1; n <= 3; n++ {
		if _, err := s.Version(ctx, "small", n); err != nil {
			t.Fatal(err)
		}
	}

	status, results := s.Health(ctx)
	if status != health.StatusDegraded || results["cache.versions"].Status != health.StatusDegraded {
		t.Errorf("status = %v, versions = %+v", status, results["cache.versions"])
	}
	if st := s.Stats()["versions"]; st.Entries != 2 || st.Evictions != 1 {
		t.Errorf("versions stats = %+v", st)
	}
}

func TestSpec_ConcurrentReadsShareOneLoad(t *testing.T) {
	src := newFakeSource()
	s := newTestService(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Spec(context.Background(), "large"); err != nil {
				t.Errorf("Spec() = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := src.loads.Load(); n < 1 || n > 16 {
		t.Errorf("loads = %d", n)
	}
	if st := s.Stats()["diagrams"]; st.Entries != 1 {
		t.Errorf("entries = %d, want 1", st.Entries)
	}
}
