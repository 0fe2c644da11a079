// Package ratelimit is the token bucket every network step of a run waits
// on before it goes out.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultCapacity = 5
	DefaultPeriod   = time.Second
)

// Limiter is a token bucket holding at most capacity tokens that refills
// capacity tokens every period, continuously. It is safe for concurrent use.
type Limiter struct {
	limiter  *rate.Limiter
	capacity int
	period   time.Duration
}

func New(capacity int, period time.Duration) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("rate limit capacity must be positive, got %d", capacity)
	}
	if period <= 0 {
		return nil, fmt.Errorf("rate limit period must be positive, got %s", period)
	}
	perSecond := float64(capacity) / period.Seconds()
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), capacity),
		capacity: capacity,
		period:   period,
	}, nil
}

// Default is 5 tokens per second.
func Default() *Limiter {
	l, err := New(DefaultCapacity, DefaultPeriod)
	if err != nil {
		panic(err)
	}
	return l
}

// Acquire takes one token, waiting for the refill when the bucket is
// empty. It fails without consuming a token if ctx ends first (or would
// end before the token is available).
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Delay takes one token at now and returns how long the caller would have
// to wait for it.
func (l *Limiter) Delay(now time.Time) time.Duration {
	return l.limiter.ReserveN(now, 1).DelayFrom(now)
}

func (l *Limiter) Capacity() int {
	return l.capacity
}

func (l *Limiter) Period() time.Duration {
	return l.period
}
