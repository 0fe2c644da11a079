package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBurstNeverExceedsCapacity(t *testing.T) {
	l, err := New(5, time.Second)
	require.NoError(t, err)

	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.Zero(t, l.Delay(now), "token %d", i)
	}
	require.Equal(t, 200*time.Millisecond, l.Delay(now))
}

func TestLongRunRate(t *testing.T) {
	l, err := New(5, time.Second)
	require.NoError(t, err)

	// simulate a caller that always waits out its delay
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	start := now
	calls := 105
	for i := 0; i < calls; i++ {
		now = now.Add(l.Delay(now))
	}

	// the first 5 calls are free, the remaining 100 are paced at 5/s
	elapsed := now.Sub(start)
	require.InDelta(t, (20 * time.Second).Seconds(), elapsed.Seconds(), 0.01)
}

func TestRefillIsContinuous(t *testing.T) {
	l, err := New(2, time.Second)
	require.NoError(t, err)

	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.Zero(t, l.Delay(now))
	require.Zero(t, l.Delay(now))

	// half a period refills one token
	later := now.Add(500 * time.Millisecond)
	require.Zero(t, l.Delay(later))
	require.Equal(t, 500*time.Millisecond, l.Delay(later))
}

func TestAcquireCancelled(t *testing.T) {
	l, err := New(1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Acquire(ctx))
}

func TestInvalid(t *testing.T) {
	_, err := New(0, time.Second)
	require.Error(t, err)
	_, err = New(3, 0)
	require.Error(t, err)
}
