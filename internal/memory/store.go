// Package memory keeps an agent's persistent knowledge within hard size
// budgets: bounded selection into a run's context on the read path, and
// count-cap enforcement by archival on the write path.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// Store is the persistence boundary for memory items. Implementations must
// provide atomic upsert by (tenant, user, module, key), atomic bulk archive
// by id set, and atomic reads of "active items at level L".
type Store interface {
	// UpsertItem inserts the item or updates the value/pinned flag of the
	// existing item with the same (tenant, user, module, key). Level is
	// immutable: an upsert never changes the level of an existing item.
	// On update, the stored row's ID, Level, and CreatedAt are written back
	// into item so the caller sees the persisted identity.
	UpsertItem(ctx context.Context, item *models.MemoryItem) error

	// ActiveByLevel returns the non-archived items for a user at a level.
	ActiveByLevel(ctx context.Context, tenantID, userID string, level int) ([]*models.MemoryItem, error)

	// ArchiveIDs marks the given items archived in one atomic update.
	// Archival is monotonic; there is no unarchive.
	ArchiveIDs(ctx context.Context, ids []string) error

	// TouchLastSeen bumps LastSeenAt for the given items.
	TouchLastSeen(ctx context.Context, ids []string, at time.Time) error
}

// MemoryStore keeps items in memory. Used in tests and light embedding.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*models.MemoryItem
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.MemoryItem)}
}

func (s *MemoryStore) UpsertItem(ctx context.Context, item *models.MemoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.TenantID == item.TenantID &&
			existing.UserID == item.UserID &&
			existing.Module == item.Module &&
			existing.Key == item.Key {
			existing.Value = item.Value
			existing.Pinned = item.Pinned
			item.ID = existing.ID
			item.Level = existing.Level
			item.CreatedAt = existing.CreatedAt
			return nil
		}
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	clone := *item
	s.items[clone.ID] = &clone
	return nil
}

func (s *MemoryStore) ActiveByLevel(ctx context.Context, tenantID, userID string, level int) ([]*models.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MemoryItem
	for _, item := range s.items {
		if item.TenantID == tenantID && item.UserID == userID &&
			item.Level == level && !item.Archived {
			clone := *item
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ArchiveIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			item.Archived = true
		}
	}
	return nil
}

func (s *MemoryStore) TouchLastSeen(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			t := at
			item.LastSeenAt = &t
		}
	}
	return nil
}
