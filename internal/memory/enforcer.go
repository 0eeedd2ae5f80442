package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/haasonsaas/warden/pkg/models"
)

// EnforcementConfig caps how many active items each level may hold.
type EnforcementConfig struct {
	// LevelCaps is the per-level active item-count cap.
	LevelCaps map[int]int `yaml:"level_caps"`
}

// DefaultEnforcementConfig returns the stock caps: high-churn low levels
// keep more items, detail-heavy high levels fewer.
func DefaultEnforcementConfig() EnforcementConfig {
	return EnforcementConfig{
		LevelCaps: map[int]int{
			0: 20,
			1: 20,
			2: 15,
			3: 15,
			4: 10,
			5: 10,
		},
	}
}

// Report summarizes one enforcement pass.
type Report struct {
	// ArchivedByLevel counts items archived per level.
	ArchivedByLevel map[int]int

	// ArchivedIDs lists every archived item.
	ArchivedIDs []string
}

// Total returns how many items the pass archived.
func (r Report) Total() int {
	return len(r.ArchivedIDs)
}

// Enforcer keeps per-level item counts within their caps by archiving the
// least-recently-seen unpinned items. Archival never deletes data; archived
// items simply become invisible to selection.
type Enforcer struct {
	store  Store
	config EnforcementConfig
}

// NewEnforcer creates an enforcer over the given store.
func NewEnforcer(store Store, config EnforcementConfig) *Enforcer {
	if config.LevelCaps == nil {
		config.LevelCaps = DefaultEnforcementConfig().LevelCaps
	}
	return &Enforcer{store: store, config: config}
}

// Enforce runs one pass for a user. For each level whose active count
// exceeds its cap, the oldest-seen unpinned items are archived until the
// count matches the cap; pinned items are exempt regardless of age. Each
// level's archive is a single atomic bulk update, so a concurrent selection
// sees either the pre- or post-archive state, never a partial one.
func (e *Enforcer) Enforce(ctx context.Context, tenantID, userID string) (Report, error) {
	report := Report{ArchivedByLevel: make(map[int]int)}

	for level := models.MemoryLevelMin; level <= models.MemoryLevelMax; level++ {
		cap, ok := e.config.LevelCaps[level]
		if !ok || cap <= 0 {
			continue
		}

		items, err := e.store.ActiveByLevel(ctx, tenantID, userID, level)
		if err != nil {
			return report, fmt.Errorf("enforce level %d: %w", level, err)
		}
		excess := len(items) - cap
		if excess <= 0 {
			continue
		}

		var candidates []*models.MemoryItem
		for _, item := range items {
			if !item.Pinned {
				candidates = append(candidates, item)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return lastSeen(candidates[i]).Before(lastSeen(candidates[j]))
		})
		if excess > len(candidates) {
			excess = len(candidates)
		}
		if excess == 0 {
			continue
		}

		ids := make([]string, excess)
		for i := 0; i < excess; i++ {
			ids[i] = candidates[i].ID
		}
		if err := e.store.ArchiveIDs(ctx, ids); err != nil {
			return report, fmt.Errorf("archive level %d: %w", level, err)
		}

		report.ArchivedByLevel[level] = excess
		report.ArchivedIDs = append(report.ArchivedIDs, ids...)
	}

	return report, nil
}
