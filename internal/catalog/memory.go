package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the catalog in process. A single mutex serialises
// mutations so the (code, tier) uniqueness check and the write are atomic.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Item
}

// NewMemoryStore returns an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]Item)}
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		if f.Matches(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return f.Less(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) Categories(_ context.Context, tier Tier) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, item := range s.items {
		if !item.Active || item.Category == "" {
			continue
		}
		if tier != "" && item.Tier != tier {
			continue
		}
		seen[item.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) GetByCodeAndTier(_ context.Context, code string, tier Tier, includeInactive bool) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.findLocked(code, tier)
	if !ok || (!item.Active && !includeInactive) {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) FindByCodes(_ context.Context, tier Tier, codes []string, includeInactive bool) ([]Item, error) {
	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[c] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(wanted))
	for _, item := range s.items {
		if item.Tier != tier {
			continue
		}
		if _, ok := wanted[item.Code]; !ok {
			continue
		}
		if !item.Active && !includeInactive {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findLocked(item.Code, item.Tier); ok {
		return Item{}, fmt.Errorf("insert %s/%s: %w", item.Code, item.Tier, ErrConflict)
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, patch Patch, now time.Time) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	next := patch.Apply(current, now)
	if next.Code != current.Code || next.Tier != current.Tier {
		if other, ok := s.findLocked(next.Code, next.Tier); ok && other.ID != id {
			return Item{}, fmt.Errorf("update %s/%s: %w", next.Code, next.Tier, ErrConflict)
		}
	}
	s.items[id] = next
	return next, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id uuid.UUID, now time.Time) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, false, ErrNotFound
	}
	if !item.Active {
		return item, false, nil
	}
	item.Active = false
	item.LastUpdated = now
	s.items[id] = item
	return item, true, nil
}

func (s *MemoryStore) findLocked(code string, tier Tier) (Item, bool) {
	for _, item := range s.items {
		if item.Code == code && item.Tier == tier {
			return item, true
		}
	}
	return Item{}, false
}
