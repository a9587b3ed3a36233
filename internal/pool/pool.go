// Package pool bounds handler concurrency with a fixed number of slots.
// Acquisition waits up to a deadline; release is the caller's deferred duty.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	srverrors "openapi-mcp-server/internal/errors"
)

// Pool is a bounded slot pool. The zero value is unusable; call New.
type Pool struct {
	slots chan struct{}

	acquired int64
	timeouts int64
}

// New creates a pool with the given capacity.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{slots: make(chan struct{}, capacity)}
}

// Acquire obtains a slot, waiting up to timeout. On failure it returns a
// RESOURCE_EXHAUSTED error. The returned release function is idempotent and
// must be called on every exit path.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (release func(), err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		atomic.AddInt64(&p.acquired, 1)
		var released int32
		return func() {
			if atomic.CompareAndSwapInt32(&released, 0, 1) {
				<-p.slots
			}
		}, nil
	case <-timer.C:
		atomic.AddInt64(&p.timeouts, 1)
		return nil, srverrors.New(srverrors.CodeResourceExhausted, "concurrency limit reached").
			WithDetail("capacity", cap(p.slots)).
			WithDetail("wait_ms", timeout.Milliseconds())
	case <-ctx.Done():
		atomic.AddInt64(&p.timeouts, 1)
		return nil, srverrors.Wrap(srverrors.CodeTimeout, "cancelled while waiting for a slot", ctx.Err())
	}
}

// InUse returns the number of currently held slots.
func (p *Pool) InUse() int { return len(p.slots) }

// Capacity returns the pool capacity.
func (p *Pool) Capacity() int { return cap(p.slots) }

// Utilization returns the held fraction in [0, 1].
func (p *Pool) Utilization() float64 {
	return float64(len(p.slots)) / float64(cap(p.slots))
}

// Stats is a point-in-time pool snapshot.
type Stats struct {
	Capacity int   `json:"capacity"`
	InUse    int   `json:"in_use"`
	Acquired int64 `json:"total_acquired"`
	Timeouts int64 `json:"total_timeouts"`
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity: cap(p.slots),
		InUse:    len(p.slots),
		Acquired: atomic.LoadInt64(&p.acquired),
		Timeouts: atomic.LoadInt64(&p.timeouts),
	}
}
