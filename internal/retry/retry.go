// Package retry runs operations with bounded exponential backoff and
// jitter. Only transient error classes are retried.
package retry

import (
	"context"
	"math/rand"
	"time"

	srverrors "openapi-mcp-server/internal/errors"
)

// Config tunes retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	// RetryIf decides whether an error is worth another attempt.
	RetryIf func(error) bool
}

// DefaultConfig retries transient failures up to three times.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		RetryIf:      srverrors.IsRetriable,
	}
}

// Operation is a retryable unit of work.
type Operation func(ctx context.Context) error

// Do runs op, retrying per cfg. It returns the last error, or nil once an
// attempt succeeds. Context cancellation stops retries immediately.
func Do(ctx context.Context, cfg Config, op Operation) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = srverrors.IsRetriable
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return srverrors.Wrap(srverrors.CodeTimeout, "cancelled before attempt", err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.RetryIf(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		select {
		case <-time.After(withJitter(delay, cfg.Jitter)):
		case <-ctx.Done():
			return srverrors.Wrap(srverrors.CodeTimeout, "cancelled during backoff", ctx.Err())
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

func withJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}
