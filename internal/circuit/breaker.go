package circuit

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Calls short-circuited
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// ErrOpen is returned by Allow while the breaker is open and cooling down.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips after a run of consecutive failures and short-circuits
// further calls until a cooldown passes. The first call after cooldown
// probes in half-open state; success closes the breaker, failure reopens it.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	maxFailures  int
	cooldown     time.Duration
	failures     int
	lastTripTime time.Time
	now          func() time.Time
}

// NewBreaker creates a closed breaker. maxFailures is the consecutive
// failure count that trips it; cooldown is how long it stays open.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. Callers must follow a
// successful Allow with exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastTripTime) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
	}
	return nil
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.state = StateClosed
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.lastTripTime = b.now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
