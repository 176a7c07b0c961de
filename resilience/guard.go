package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Config configures a Guard.
type Config struct {
	// Timeout bounds each attempt. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// Validate checks every layer.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	return c.Breaker.Validate()
}

// GuardOption configures a Guard.
type GuardOption func(*Config)

// WithClock sets the time source for both retry waits and the breaker.
func WithClock(c clock.Clock) GuardOption {
	return func(cfg *Config) {
		if c != nil {
			cfg.Retry.Clock = c
			cfg.Breaker.Clock = c
		}
	}
}

// Guard runs operations through breaker, retry and timeout.
type Guard struct {
	timeout time.Duration
	retry   *Retry
	breaker *Breaker
}

// NewGuard validates cfg and builds the layers.
func NewGuard(cfg Config, opts ...GuardOption) (*Guard, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Guard{
		timeout: cfg.Timeout,
		retry:   NewRetry(cfg.Retry),
		breaker: NewBreaker(cfg.Breaker),
	}, nil
}

// Breaker exposes the breaker, e.g. for health checks.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// Execute runs op through the guard.
func (g *Guard) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op through g and returns its value. The breaker sees one
// outcome per call, after retries are exhausted. With a Timeout set, an
// abandoned attempt can overlap the next one; op must tolerate that.
func Do[T any](ctx context.Context, g *Guard, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retry.Execute(ctx, func(ctx context.Context) error {
			v, err := withTimeout(ctx, g.timeout, op)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	})
	return out, err
}

type result[T any] struct {
	v   T
	err error
}

// withTimeout runs op under a deadline. An op that ignores its context is
// abandoned when the deadline passes and may still be running when the
// next retry starts, so op must be safe to run concurrently with itself.
func withTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := op(tctx)
		done <- result[T]{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s: %w", ErrTimeout, d, r.err)
		}
		return r.v, r.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}
