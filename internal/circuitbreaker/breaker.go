// Package circuitbreaker guards downstream dependencies with a per-method
// CLOSED/OPEN/HALF_OPEN state machine.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes a breaker.
type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive successes in half-open close it again.
	SuccessThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// OnStateChange, when set, observes transitions.
	OnStateChange func(method string, from, to State)
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker is a single circuit. Use a Registry for per-method breakers.
type Breaker struct {
	cfg    Config
	method string

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	openedAt     time.Time
	totalTrips   int64
	totalAllowed int64
	totalDenied  int64
	now          func() time.Time
}

// NewBreaker creates a breaker for one method.
func NewBreaker(method string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	return &Breaker{cfg: cfg, method: method, state: StateClosed, now: time.Now}
}

// Allow reports whether a call may proceed. When denied, retryAfter hints
// how long until the next probe is admitted.
func (b *Breaker) Allow() (allowed bool, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cfg.RecoveryTimeout {
			b.totalDenied++
			return false, b.cfg.RecoveryTimeout - elapsed
		}
		b.transition(StateHalfOpen)
	}
	b.totalAllowed++
	return true, 0
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateOpen:
		// A success while open is a late completion; recovery is timer-driven.
	}
}

// RecordFailure notes a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateOpen:
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a breaker snapshot.
type Stats struct {
	Method  string `json:"method"`
	State   string `json:"state"`
	Trips   int64  `json:"trips"`
	Allowed int64  `json:"allowed"`
	Denied  int64  `json:"denied"`
}

// Stats returns a snapshot of counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Method:  b.method,
		State:   b.state.String(),
		Trips:   b.totalTrips,
		Allowed: b.totalAllowed,
		Denied:  b.totalDenied,
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.successes = 0
		b.totalTrips++
	case StateHalfOpen:
		b.successes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.method, from, to)
	}
}

// Registry holds one breaker per method name.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry; every breaker shares cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: map[string]*Breaker{}}
}

// For returns the breaker for a method, creating it on first use.
func (r *Registry) For(method string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[method]
	if !ok {
		b = NewBreaker(method, r.cfg)
		r.breakers[method] = b
	}
	return b
}

// Stats snapshots every breaker.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	return out
}
