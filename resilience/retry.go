package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 100 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
	defaultMultiplier   = 2.0
)

// RetryConfig configures a Retry.
type RetryConfig struct {
	// MaxAttempts counts the first call. One disables retries.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the wait before the second attempt.
	// Default: 100ms
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the wait between attempts, before jitter.
	// Default: 5s
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay after each attempt.
	// Default: 2.0
	Multiplier float64 `yaml:"multiplier"`

	// Jitter adds up to 25% random delay.
	Jitter bool `yaml:"jitter"`

	// RetryIf decides whether err is retried.
	// Default: non-nil errors except Permanent errors, ErrCircuitOpen and
	// context errors. ErrTimeout is retried.
	RetryIf func(err error) bool `yaml:"-"`

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`

	// Clock is the time source for waits. Default: the wall clock.
	Clock clock.Clock `yaml:"-"`
}

// Validate rejects negative settings. Zero selects the default.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidConfig)
	case c.InitialDelay < 0 || c.MaxDelay < 0:
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidConfig)
	case c.Multiplier < 0:
		return fmt.Errorf("%w: multiplier must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Retry re-runs failed operations with exponential backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry applies defaults to config.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaultInitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaultMaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaultMultiplier
	}
	if config.RetryIf == nil {
		config.RetryIf = retryable
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Retry{config: config}
}

func retryable(err error) bool {
	switch {
	case err == nil, IsPermanent(err), errors.Is(err, ErrCircuitOpen), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrTimeout):
		return true
	}
	return !errors.Is(err, context.DeadlineExceeded)
}

// Execute runs op until it succeeds, returns an error RetryIf rejects, or
// MaxAttempts is reached. The last error is returned. A done ctx stops
// the wait and returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.config.MaxAttempts || !r.config.RetryIf(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		t := r.config.Clock.Timer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// delay returns the wait after the given attempt.
func (r *Retry) delay(attempt int) time.Duration {
	d := r.config.MaxDelay
	if f := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)); f < float64(d) {
		d = time.Duration(f)
	}
	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
