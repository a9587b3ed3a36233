package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Now()
	b := NewBreaker("searchEndpoints", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	allowed, retryAfter := b.Allow()
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenProbeAndRecovery(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	// Before the recovery timeout, calls are denied.
	allowed, _ := b.Allow()
	assert.False(t, allowed)

	// After the timeout, one probe is admitted (half-open).
	*now = now.Add(11 * time.Second)
	allowed, _ = b.Allow()
	assert.True(t, allowed)
	assert.Equal(t, StateHalfOpen, b.State())

	// Two consecutive successes close the circuit.
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	*now = now.Add(11 * time.Second)
	allowed, _ := b.Allow()
	require.True(t, allowed)

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestRegistryIsPerMethod(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute})

	r.For("getSchema").RecordFailure()
	assert.Equal(t, StateOpen, r.For("getSchema").State())
	assert.Equal(t, StateClosed, r.For("searchEndpoints").State())

	stats := r.Stats()
	assert.Len(t, stats, 2)
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker("m", Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
		OnStateChange: func(method string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	b.RecordFailure()
	assert.Equal(t, []string{"closed->open"}, transitions)
}
