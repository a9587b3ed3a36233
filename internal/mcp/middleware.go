package mcp

import (
	"context"
	"errors"
	"time"

	"openapi-mcp-server/internal/circuitbreaker"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/retry"
)

// toolCall is a bound tool invocation, parameters already decoded and
// validated, ready for the resilience chain.
type toolCall func(ctx context.Context) (interface{}, error)

// toolBinder turns raw tool parameters into a bound call, or a validation
// error when the parameters are malformed.
type toolBinder func(params map[string]interface{}) (toolCall, error)

// handlerFunc is the wire-level handler shape the SDK invokes.
type handlerFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// wrap binds parameters first, then runs the bound call through the
// per-method resilience chain: circuit breaker, bounded concurrency,
// deadline, retry on transient failures. Binding happens before the
// breaker is consulted, so malformed parameters are rejected as
// validation errors even while the circuit is open. Outcomes feed the
// metrics collector and the breaker.
func (s *Server) wrap(method string, bind toolBinder) handlerFunc {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		start := time.Now()
		result, err := s.dispatch(ctx, method, params, bind)
		if s.metrics != nil {
			s.metrics.Record(method, time.Since(start), err)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "tool call failed",
				"method", method,
				"code", string(srverrors.CodeOf(err)),
				"error", err.Error())
			return nil, srverrors.AsServerError(err).ToJSONRPC()
		}
		return result, nil
	}
}

func (s *Server) dispatch(ctx context.Context, method string, params map[string]interface{}, bind toolBinder) (interface{}, error) {
	call, err := bind(params)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, method, call)
}

func (s *Server) execute(ctx context.Context, method string, call toolCall) (interface{}, error) {
	breaker := s.breakers.For(method)
	if allowed, retryAfter := breaker.Allow(); !allowed {
		return nil, srverrors.CircuitOpen(method, retryAfter)
	}

	release, err := s.pool.Acquire(ctx, s.cfg.Server.PoolAcquireTimeout)
	if err != nil {
		breakerObserve(breaker, err)
		return nil, err
	}
	defer release()

	timeout := s.cfg.Server.TimeoutFor(method)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result interface{}
	err = retry.Do(callCtx, s.retryCfg, func(ctx context.Context) error {
		var callErr error
		result, callErr = call(ctx)
		return callErr
	})
	if errors.Is(err, context.DeadlineExceeded) {
		err = srverrors.Timeout(method, timeout)
	}

	breakerObserve(breaker, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// breakerObserve feeds an outcome to the breaker. Client errors do not
// count as downstream failures.
func breakerObserve(b *circuitbreaker.Breaker, err error) {
	if err == nil {
		b.RecordSuccess()
		return
	}
	if srverrors.CountsAgainstBreaker(err) {
		b.RecordFailure()
	}
}
