// Package resilience guards calls to a backing store.
//
// A Guard composes three layers around one operation, outermost first:
//
//   - Breaker: stops calling a store that keeps failing and tries it
//     again after ResetTimeout.
//   - Retry: re-runs transient failures with exponential backoff.
//   - Timeout: bounds each attempt.
//
// Errors wrapped with Permanent are returned at once and never count
// against the breaker, which suits "not found" style answers.
//
//	g, _ := resilience.NewGuard(resilience.Config{
//	    Timeout: 2 * time.Second,
//	    Retry:   resilience.RetryConfig{MaxAttempts: 3},
//	    Breaker: resilience.BreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second},
//	})
//	spec, err := resilience.Do(ctx, g, func(ctx context.Context) (*diagram.Spec, error) {
//	    return store.Load(ctx, id)
//	})
//
// All types are safe for concurrent use.
package resilience
