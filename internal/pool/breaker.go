// Package pool governs access to the backing store: a bounded connection
// pool with liveness validation and checkout timeouts, fronted by a circuit
// breaker that fails fast while the store is unhealthy.
package pool

import (
	"errors"
	"sync"
	"time"

	"claviger.org/internal/obs"
)

var (
	// ErrCircuitOpen is returned without contacting the store while the
	// breaker is open. Callers should surface it as service-unavailable.
	ErrCircuitOpen = errors.New("pool: circuit breaker is open")

	// ErrPoolTimeout is returned when a connection checkout exceeds the
	// configured timeout instead of blocking indefinitely.
	ErrPoolTimeout = errors.New("pool: connection checkout timed out")
)

// BreakerState enumerates the circuit breaker state machine.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Breaker is a failure-isolation gate. Consecutive failures past the
// threshold open it; after the cooldown the next request is let through as
// a probe (half-open), and its outcome decides whether the circuit closes
// again or re-opens.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time

	now func() time.Time
}

// NewBreaker constructs a closed breaker.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	obs.SetBreakerState(name, float64(StateClosed))
	return b
}

// Allow reports whether a request may proceed. While open it returns
// ErrCircuitOpen until the cooldown has elapsed, at which point the breaker
// moves to half-open and the request goes through as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// Success records a successful request and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// Failure records a failed request. In half-open it re-opens immediately;
// in closed it opens once the threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.transition(StateOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the mutex held.
func (b *Breaker) transition(next BreakerState) {
	b.state = next
	obs.SetBreakerState(b.name, float64(next))
}
