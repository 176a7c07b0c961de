package perf

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jonwraymond/diagramops/health"
	"github.com/jonwraymond/diagramops/observe"
	"github.com/jonwraymond/diagramops/resilience"
)

// newSourceGuard builds the guard around Source calls and logs breaker
// transitions and retries.
func newSourceGuard(cfg resilience.Config, logger observe.Logger, clk clock.Clock) (*resilience.Guard, error) {
	ctx := context.Background()
	cfg.Breaker.OnStateChange = func(from, to resilience.State) {
		fields := []observe.Field{
			{Key: "from", Value: from.String()},
			{Key: "to", Value: to.String()},
		}
		if to == resilience.StateOpen {
			logger.Warn(ctx, "source circuit opened", fields...)
			return
		}
		logger.Info(ctx, "source circuit state changed", fields...)
	}
	cfg.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug(ctx, "retrying source load",
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay", Value: delay.String()},
			observe.Field{Key: "error", Value: err},
		)
	}
	return resilience.NewGuard(cfg, resilience.WithClock(clk))
}

// newBreakerChecker reports an open circuit as unhealthy and a probing one
// as degraded.
func newBreakerChecker(name string, b *resilience.Breaker) health.Checker {
	return health.NewCheckerFunc(name, func(context.Context) health.Result {
		st := b.Stats()
		details := map[string]any{
			"state":    st.State.String(),
			"failures": st.Failures,
		}
		switch st.State {
		case resilience.StateOpen:
			return health.Unhealthy("source circuit open", resilience.ErrCircuitOpen).WithDetails(details)
		case resilience.StateHalfOpen:
			return health.Degraded("source circuit half-open").WithDetails(details)
		default:
			return health.Healthy("source reachable").WithDetails(details)
		}
	})
}
