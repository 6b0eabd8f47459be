package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Retrier runs an operation with bounded attempts, exponential backoff and an
// optional breaker. Only errors accepted by Retryable are retried; any other
// error is returned after the first attempt.
type Retrier struct {
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Retryable   func(error) bool
	// OnRetry, when set, observes every failed attempt that will be retried.
	OnRetry func(ctx context.Context, attempt int, wait time.Duration, err error)
}

// Do executes fn applying retry semantics. When the breaker refuses a call
// ErrOpenCircuit is returned joined with the last observed error.
func (r Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	return r.run(ctx, r.MaxAttempts, fn)
}

// Once executes fn a single time, still honouring the breaker. Used for
// operations that are unsafe to repeat.
func (r Retrier) Once(ctx context.Context, fn func(context.Context) error) error {
	return r.run(ctx, 1, fn)
}

func (r Retrier) run(ctx context.Context, maxAttempts int, fn func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseBackoff := r.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 50 * time.Millisecond
	}
	retryable := r.Retryable
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.Breaker != nil && !r.Breaker.Allow(ctx) {
			if lastErr != nil {
				return errors.Join(ErrOpenCircuit, lastErr)
			}
			return ErrOpenCircuit
		}
		err := fn(ctx)
		transient := err != nil && retryable(err)
		if r.Breaker != nil {
			r.Breaker.Report(ctx, !transient)
		}
		if !transient {
			return err
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		wait := Backoff(baseBackoff, attempt, r.Jitter)
		if r.OnRetry != nil {
			r.OnRetry(ctx, attempt, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff doubles base for every attempt after the first. jitterPct spreads
// the result uniformly by up to that fraction in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (max(attempt, 1) - 1)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
