package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls with ErrCircuitOpen.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit.
	// Default: 5
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30s
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMaxRequests caps concurrent trial calls while half-open.
	// Default: 1
	HalfOpenMaxRequests int `yaml:"half_open_max_requests"`

	// OnStateChange is called on every transition, with the breaker lock
	// held. It must not call back into the breaker.
	OnStateChange func(from, to State) `yaml:"-"`

	// IsFailure decides whether err counts against the breaker.
	// Default: non-nil errors except cancellation and Permanent errors.
	IsFailure func(err error) bool `yaml:"-"`

	// Clock is the time source. Default: the wall clock.
	Clock clock.Clock `yaml:"-"`
}

// Validate rejects negative settings. Zero selects the default.
func (c BreakerConfig) Validate() error {
	switch {
	case c.MaxFailures < 0:
		return fmt.Errorf("%w: max_failures must not be negative", ErrInvalidConfig)
	case c.ResetTimeout < 0:
		return fmt.Errorf("%w: reset_timeout must not be negative", ErrInvalidConfig)
	case c.HalfOpenMaxRequests < 0:
		return fmt.Errorf("%w: half_open_max_requests must not be negative", ErrInvalidConfig)
	}
	return nil
}

// BreakerStats is a point-in-time view of a Breaker.
type BreakerStats struct {
	State       State
	Failures    int
	LastFailure time.Time
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	config BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCount int
}

// NewBreaker returns a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaultMaxFailures
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaultResetTimeout
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = isFailure
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Breaker{config: config, state: StateClosed}
}

func isFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !IsPermanent(err)
}

// Execute runs op unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := op(ctx)
	b.after(err)
	return err
}

// State returns the current state. An open circuit whose ResetTimeout has
// elapsed reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:       b.currentLocked(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// Reset closes the circuit and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenCount = 0
	b.transitionLocked(StateClosed)
}

// Config returns the effective configuration.
func (b *Breaker) Config() BreakerConfig {
	return b.config
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.config.IsFailure(err)
	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		b.lastFailure = b.config.Clock.Now()
		if b.failures >= b.config.MaxFailures {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			b.lastFailure = b.config.Clock.Now()
			b.transitionLocked(StateOpen)
			return
		}
		b.failures = 0
		b.transitionLocked(StateClosed)
	}
}

func (b *Breaker) currentLocked() State {
	if b.state == StateOpen && b.config.Clock.Since(b.lastFailure) >= b.config.ResetTimeout {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateHalfOpen {
		b.halfOpenCount = 0
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
