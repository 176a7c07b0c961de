package health

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func statusChecker(name string, s Status) Checker {
	return NewCheckerFunc(name, func(context.Context) Result {
		return Result{Status: s, Message: name}
	})
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator()
	if agg.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", agg.config.Timeout, DefaultTimeout)
	}

	agg = NewAggregator(AggregatorConfig{Timeout: -1, MaxConcurrency: 2})
	if agg.config.Timeout != DefaultTimeout || agg.config.MaxConcurrency != 2 {
		t.Errorf("config = %+v", agg.config)
	}
}

func TestAggregator_RegisterOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Register("b", statusChecker("b", StatusHealthy))
	agg.Register("a", statusChecker("a", StatusHealthy))
	agg.Register("b", statusChecker("b2", StatusDegraded))

	if got := agg.CheckerNames(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("CheckerNames() = %v", got)
	}

	r, err := agg.Check(context.Background(), "b")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if r.Message != "b2" {
		t.Errorf("re-registering should replace the checker, got %q", r.Message)
	}

	agg.Unregister("b")
	agg.Unregister("missing")
	if got := agg.CheckerNames(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("CheckerNames() after Unregister = %v", got)
	}
}

func TestAggregator_CheckNotFound(t *testing.T) {
	agg := NewAggregator()
	if _, err := agg.Check(context.Background(), "nope"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check() error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator()
	agg.Register("a", statusChecker("a", StatusHealthy))
	agg.Register("b", statusChecker("b", StatusDegraded))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["b"].Status != StatusDegraded {
		t.Errorf("b = %v", results["b"].Status)
	}
	if results["a"].Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}

func TestAggregator_CheckAllEmpty(t *testing.T) {
	results := NewAggregator().CheckAll(context.Background())
	if results == nil || len(results) != 0 {
		t.Errorf("CheckAll() = %v, want empty map", results)
	}
}

func TestAggregator_CheckAllRunsConcurrently(t *testing.T) {
	agg := NewAggregator()
	release := make(chan struct{})
	var started atomic.Int32

	for _, name := range []string{"a", "b", "c"} {
		agg.Register(name, NewCheckerFunc(name, func(ctx context.Context) Result {
			if started.Add(1) == 3 {
				close(release)
			}
			select {
			case <-release:
				return Healthy("ok")
			case <-ctx.Done():
				return Unhealthy("stuck", ctx.Err())
			}
		}))
	}

	results := agg.CheckAll(context.Background())
	if agg.OverallStatus(results) != StatusHealthy {
		t.Errorf("checks did not run concurrently: %+v", results)
	}
}

func TestAggregator_MaxConcurrency(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{MaxConcurrency: 1})
	var running, peak atomic.Int32

	for _, name := range []string{"a", "b", "c"} {
		agg.Register(name, NewCheckerFunc(name, func(context.Context) Result {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return Healthy("ok")
		}))
	}

	agg.CheckAll(context.Background())
	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)

	agg.Register("slow", NewCheckerFunc("slow", func(context.Context) Result {
		<-block
		return Healthy("late")
	}))
	agg.Register("fast", statusChecker("fast", StatusHealthy))

	results := agg.CheckAll(context.Background())
	if !errors.Is(results["slow"].Error, ErrCheckTimeout) {
		t.Errorf("slow = %+v, want timeout", results["slow"])
	}
	if results["fast"].Status != StatusHealthy {
		t.Errorf("fast = %+v", results["fast"])
	}
	if agg.OverallStatus(results) != StatusUnhealthy {
		t.Error("a timed-out check should make the overall status unhealthy")
	}
}

func TestAggregator_OverallStatus(t *testing.T) {
	agg := NewAggregator()
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", map[string]Result{"a": {Status: StatusHealthy}}, StatusHealthy},
		{"degraded wins over healthy", map[string]Result{"a": {Status: StatusHealthy}, "b": {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", map[string]Result{"a": {Status: StatusUnhealthy}, "b": {Status: StatusDegraded}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := agg.OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregator_AsChecker(t *testing.T) {
	agg := NewAggregator()
	agg.Register("a", statusChecker("a", StatusHealthy))
	agg.Register("b", statusChecker("b", StatusDegraded))

	c := agg.Checker()
	if c.Name() != "aggregate" {
		t.Errorf("Name() = %q", c.Name())
	}
	r := c.Check(context.Background())
	if r.Status != StatusDegraded || r.Message != "some checks degraded" {
		t.Errorf("Check() = %+v", r)
	}
	if _, ok := r.Details["b"]; !ok {
		t.Errorf("details missing b: %v", r.Details)
	}
}
