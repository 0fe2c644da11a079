// Package resilience retries portal operations with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"portalgrades/internal/portal"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("portalgrades/internal/resilience")

// Policy describes how an operation is retried. The delay before retry n
// (n starting at 1) is Base * Multiplier^(n-1) clamped to
// [MinDelay, MaxDelay].
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Multiplier  float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	// StepTimeout bounds a single attempt when non-zero, hitting it counts
	// as a transient failure.
	StepTimeout time.Duration
	// Retryable decides whether a failed attempt may be retried, nil means
	// DefaultRetryable.
	Retryable func(error) bool

	timer backoff.Timer
}

// DefaultPolicy is 3 attempts waiting 4s then 8s (capped at 10s).
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Base:        4 * time.Second,
		Multiplier:  2,
		MinDelay:    4 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// DefaultRetryable retries everything except rejected credentials and
// unknown portals.
func DefaultRetryable(err error) bool {
	return !portal.IsAuth(err) && !portal.IsUnknownPortal(err)
}

// WithTimer returns a copy of the policy that sleeps on t instead of the
// wall clock.
func (p Policy) WithTimer(t backoff.Timer) Policy {
	p.timer = t
	return p
}

// Delay is the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) && p.MaxDelay > 0 {
		return p.MaxDelay
	}
	if delay < float64(p.MinDelay) {
		return p.MinDelay
	}
	return time.Duration(delay)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return DefaultRetryable(err)
}

// policyBackOff adapts a Policy to backoff.BackOff, it stops once
// MaxAttempts attempts have been made.
type policyBackOff struct {
	policy  Policy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	return b.policy.Delay(b.attempt)
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

// Do runs op until it succeeds, fails with a non-retryable error or runs
// out of attempts, returning the number of attempts made and the last
// error. Non-retryable errors come back unchanged. If ctx ends while
// waiting to retry, the last error is joined with ctx's error.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) (int, error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("max_attempts", p.MaxAttempts),
	))
	defer span.End()

	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		err := p.attempt(ctx, name, op)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		slog.WarnContext(
			ctx, "retrying",
			"step", name,
			"attempt", attempts,
			"wait", next,
			"err", err,
		)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempts),
			attribute.String("wait", next.String()),
			attribute.String("err", err.Error()),
		))
	}

	b := backoff.WithContext(&policyBackOff{policy: p}, ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, p.timer)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err == nil {
		return attempts, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil && !errors.Is(lastErr, ctxErr) {
		err = errors.Join(lastErr, ctxErr)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return attempts, err
}

func (p Policy) attempt(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if p.StepTimeout <= 0 {
		return op(ctx)
	}

	stepCtx, cancel := context.WithTimeout(ctx, p.StepTimeout)
	defer cancel()
	err := op(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) && !portal.IsTransient(err) {
		return portal.Transient(name, fmt.Errorf("timed out after %s: %w", p.StepTimeout, err))
	}
	return err
}
