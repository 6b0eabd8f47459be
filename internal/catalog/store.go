package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store errors. Implementations wrap the underlying cause so errors.Is works.
var (
	ErrNotFound    = errors.New("catalog: item not found")
	ErrConflict    = errors.New("catalog: code already exists for tier")
	ErrUnavailable = errors.New("catalog: storage unavailable")
)

// Store is the persistence port of the price catalog. Rows are never deleted.
type Store interface {
	List(ctx context.Context, f Filter) ([]Item, error)
	Categories(ctx context.Context, tier Tier) ([]string, error)
	GetByID(ctx context.Context, id uuid.UUID) (Item, error)
	GetByCodeAndTier(ctx context.Context, code string, tier Tier, includeInactive bool) (Item, error)
	// FindByCodes resolves many codes for one tier in a single round trip.
	FindByCodes(ctx context.Context, tier Tier, codes []string, includeInactive bool) ([]Item, error)
	Insert(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch, now time.Time) (Item, error)
	// Deactivate reports changed=false when the row was already inactive.
	Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (item Item, changed bool, err error)
}
