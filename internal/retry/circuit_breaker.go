package retry

import (
	"fmt"
	"sync"
	"time"

	"tlex/config"
	ncerr "tlex/internal/errors"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State is where a Breaker stands.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen refuses calls until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets trial calls through to see if the peer is back.
	StateHalfOpen
)

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

// ── Configuration ────────────────────────────────────────────────────

// BreakerConfig configures a [Breaker].  Zero fields take defaults.
type BreakerConfig struct {
	// Threshold is how many consecutive failures open the circuit
	// (default 5).
	Threshold int
	// Cooldown is how long the circuit stays open before a trial call
	// is allowed (default config.DefaultBreakerCooldown).
	Cooldown time.Duration
	// Trials is how many trial calls must succeed in a row to close
	// the circuit again (default 1).
	Trials int
	// OnStateChange runs under the breaker's lock on every transition.
	OnStateChange func(from, to State)
	// IsFailure picks the errors that count against the circuit.  A
	// server that answered and refused the handshake was still reached.
	// Nil counts every error.
	IsFailure func(err error) bool
}

// OpenError is returned instead of calling through an open circuit.
type OpenError struct {
	Failures int
	RetryIn  time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%v: %d consecutive failures, retry in %v",
		ncerr.ErrCircuitOpen, e.Failures, e.RetryIn.Truncate(time.Second))
}

func (e *OpenError) Unwrap() error { return ncerr.ErrCircuitOpen }

// ── Breaker ──────────────────────────────────────────────────────────

// Breaker stops a client from dialling a server that keeps failing.
// Safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	passed   int
	openedAt time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = config.DefaultBreakerCooldown
	}
	if cfg.Trials <= 0 {
		cfg.Trials = 1
	}
	return &Breaker{cfg: cfg}
}

// Execute calls fn unless the circuit is open, in which case it returns
// an *OpenError without calling fn.  fn's own error is returned as is.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// CurrentState returns the breaker's state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.passed = 0, 0
	b.moveTo(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if wait := b.cfg.Cooldown - time.Since(b.openedAt); wait > 0 {
		return &OpenError{Failures: b.failures, RetryIn: wait}
	}
	b.passed = 0
	b.moveTo(StateHalfOpen)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))
	if !failed {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.passed++
			if b.passed >= b.cfg.Trials {
				b.moveTo(StateClosed)
			}
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = time.Now()
		b.moveTo(StateOpen)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
