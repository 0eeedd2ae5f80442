package models

import (
	"time"
)

// Memory levels tier items by importance. Level 0 is the lowest priority
// (shortest retained value); level 5 is the highest-detail tier.
const (
	MemoryLevelMin = 0
	MemoryLevelMax = 5
)

// MemoryItem is one persistent knowledge item belonging to a single user.
//
// Lifecycle: created by memory-write processing; LastSeenAt is bumped whenever
// the item is selected into an active context; archived (never hard-deleted)
// once per-level capacity is exceeded and the item is neither pinned nor
// recently seen. Level never changes after creation, and archiving is
// monotonic.
type MemoryItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	// Level is the item's priority tier (0-5).
	Level int `json:"level"`

	// Module and Key qualify what the memory is about, e.g. "prefs.timezone".
	Module string `json:"module"`
	Key    string `json:"key"`

	Value string `json:"value"`

	// Pinned items are exempt from archival regardless of age.
	Pinned   bool `json:"pinned,omitempty"`
	Archived bool `json:"archived,omitempty"`

	// LastSeenAt is nil for items never selected into a context; such items
	// sort as oldest.
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Label renders the item's qualified name.
func (m *MemoryItem) Label() string {
	return m.Module + "." + m.Key
}
