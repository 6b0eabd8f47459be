package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-estimator/internal/resilience"
)

// RetryStore decorates a Store with bounded retries and a circuit breaker for
// ErrUnavailable failures. Inserts run once: a retried insert whose first
// attempt committed would report a spurious conflict.
type RetryStore struct {
	next    Store
	retrier resilience.Retrier
}

// RetryConfig configures RetryStore.
type RetryConfig struct {
	Attempts     int
	BaseBackoff  time.Duration
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       zerolog.Logger
}

// NewRetryStore wraps next.
func NewRetryStore(next Store, cfg RetryConfig) (*RetryStore, error) {
	if next == nil {
		return nil, errors.New("catalog: store is required")
	}
	breaker := resilience.NewBreaker(cfg.MinRequests, cfg.FailureRatio, cfg.OpenFor).
		WithTarget("catalog_store").
		WithLogger(cfg.Logger)
	logger := cfg.Logger
	return &RetryStore{
		next: next,
		retrier: resilience.Retrier{
			Breaker:     breaker,
			BaseBackoff: cfg.BaseBackoff,
			MaxAttempts: cfg.Attempts,
			Jitter:      0.2,
			Retryable:   func(err error) bool { return errors.Is(err, ErrUnavailable) },
			OnRetry: func(ctx context.Context, attempt int, wait time.Duration, err error) {
				logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("catalog store unavailable, retrying")
			},
		},
	}, nil
}

func (s *RetryStore) do(ctx context.Context, op string, fn func(context.Context) error) error {
	r := s.retrier
	prev := r.OnRetry
	r.OnRetry = func(ctx context.Context, attempt int, wait time.Duration, err error) {
		resilience.RetryAttemptsTotal.WithLabelValues("catalog_store", op).Inc()
		if prev != nil {
			prev(ctx, attempt, wait, err)
		}
	}
	return unavailable(r.Do(ctx, fn))
}

func (s *RetryStore) List(ctx context.Context, f Filter) (items []Item, err error) {
	err = s.do(ctx, "list", func(ctx context.Context) error {
		items, err = s.next.List(ctx, f)
		return err
	})
	return items, err
}

func (s *RetryStore) Categories(ctx context.Context, tier Tier) (out []string, err error) {
	err = s.do(ctx, "categories", func(ctx context.Context) error {
		out, err = s.next.Categories(ctx, tier)
		return err
	})
	return out, err
}

func (s *RetryStore) GetByID(ctx context.Context, id uuid.UUID) (item Item, err error) {
	err = s.do(ctx, "get_by_id", func(ctx context.Context) error {
		item, err = s.next.GetByID(ctx, id)
		return err
	})
	return item, err
}

func (s *RetryStore) GetByCodeAndTier(ctx context.Context, code string, tier Tier, includeInactive bool) (item Item, err error) {
	err = s.do(ctx, "get_by_code", func(ctx context.Context) error {
		item, err = s.next.GetByCodeAndTier(ctx, code, tier, includeInactive)
		return err
	})
	return item, err
}

func (s *RetryStore) FindByCodes(ctx context.Context, tier Tier, codes []string, includeInactive bool) (items []Item, err error) {
	err = s.do(ctx, "find_by_codes", func(ctx context.Context) error {
		items, err = s.next.FindByCodes(ctx, tier, codes, includeInactive)
		return err
	})
	return items, err
}

func (s *RetryStore) Insert(ctx context.Context, item Item) (saved Item, err error) {
	err = unavailable(s.retrier.Once(ctx, func(ctx context.Context) error {
		saved, err = s.next.Insert(ctx, item)
		return err
	}))
	return saved, err
}

func (s *RetryStore) Update(ctx context.Context, id uuid.UUID, patch Patch, now time.Time) (item Item, err error) {
	err = s.do(ctx, "update", func(ctx context.Context) error {
		item, err = s.next.Update(ctx, id, patch, now)
		return err
	})
	return item, err
}

func (s *RetryStore) Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (item Item, changed bool, err error) {
	err = s.do(ctx, "deactivate", func(ctx context.Context) error {
		item, changed, err = s.next.Deactivate(ctx, id, now)
		return err
	})
	return item, changed, err
}

// unavailable makes an open breaker look like any other storage outage.
func unavailable(err error) error {
	if errors.Is(err, resilience.ErrOpenCircuit) && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
