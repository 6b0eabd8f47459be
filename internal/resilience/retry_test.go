package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-estimator/internal/resilience"
)

var errTransient = errors.New("connection reset")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestRetrierRetriesTransientErrors(t *testing.T) {
	calls := 0
	r := resilience.Retrier{MaxAttempts: 3, BaseBackoff: time.Millisecond, Retryable: isTransient}
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("not found")
	calls := 0
	r := resilience.Retrier{MaxAttempts: 5, BaseBackoff: time.Millisecond, Retryable: isTransient}
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestRetrierExhaustsAttempts(t *testing.T) {
	calls := 0
	retried := 0
	r := resilience.Retrier{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Retryable:   isTransient,
		OnRetry: func(context.Context, int, time.Duration, error) {
			retried++
		},
	}
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, retried)
}

func TestRetrierOnceDoesNotRepeat(t *testing.T) {
	calls := 0
	r := resilience.Retrier{MaxAttempts: 3, BaseBackoff: time.Millisecond, Retryable: isTransient}
	err := r.Once(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 1, calls)
}

func TestRetrierRefusesWhenBreakerOpen(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	r := resilience.Retrier{Breaker: breaker, MaxAttempts: 3, BaseBackoff: time.Millisecond, Retryable: isTransient}

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 1, calls)

	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 1, calls)
}

func TestRetrierHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := resilience.Retrier{
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		Retryable:   isTransient,
		OnRetry: func(context.Context, int, time.Duration, error) {
			cancel()
		},
	}
	err := r.Do(ctx, func(context.Context) error { return errTransient })
	require.ErrorIs(t, err, context.Canceled)
}
