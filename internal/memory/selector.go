package memory

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/warden/pkg/models"
)

// SelectionConfig bounds what Select may inject into a run's context.
type SelectionConfig struct {
	// PerLevelLimit caps how many items each level contributes.
	PerLevelLimit int `yaml:"per_level_limit"`

	// CharBudget caps the cumulative rendered length across all levels.
	CharBudget int `yaml:"char_budget"`

	// ValueLimits caps the rendered value length per level. Higher levels
	// carry more detail.
	ValueLimits map[int]int `yaml:"value_limits"`
}

// DefaultSelectionConfig returns the stock bounds: 5 items per level,
// 1200 chars total, value caps growing from 50 (level 0) to 300 (level 5).
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		PerLevelLimit: 5,
		CharBudget:    1200,
		ValueLimits: map[int]int{
			0: 50,
			1: 100,
			2: 150,
			3: 200,
			4: 250,
			5: 300,
		},
	}
}

// Selected is one memory item chosen for injection, already rendered.
type Selected struct {
	Item     *models.MemoryItem
	Rendered string
}

// Selector builds the bounded memory subset for a run's context.
type Selector struct {
	store  Store
	config SelectionConfig
	now    func() time.Time
}

// NewSelector creates a selector over the given store.
func NewSelector(store Store, config SelectionConfig) *Selector {
	if config.PerLevelLimit <= 0 {
		config.PerLevelLimit = DefaultSelectionConfig().PerLevelLimit
	}
	if config.CharBudget <= 0 {
		config.CharBudget = DefaultSelectionConfig().CharBudget
	}
	if config.ValueLimits == nil {
		config.ValueLimits = DefaultSelectionConfig().ValueLimits
	}
	return &Selector{store: store, config: config, now: time.Now}
}

// Select picks the bounded, ordered memory subset for a user.
//
// Within each level, active items sort descending by LastSeenAt (never-seen
// items sort as oldest) and the top PerLevelLimit survive. Levels fill in
// order 0 through 5, and selection stops the moment the running rendered
// length would exceed the character budget. Low levels therefore fill
// first; higher levels risk being cut when earlier levels consume the
// budget. LastSeenAt is bumped for every item actually selected.
func (s *Selector) Select(ctx context.Context, tenantID, userID string) ([]Selected, error) {
	var (
		out  []Selected
		used int
	)

levels:
	for level := models.MemoryLevelMin; level <= models.MemoryLevelMax; level++ {
		items, err := s.store.ActiveByLevel(ctx, tenantID, userID, level)
		if err != nil {
			return nil, fmt.Errorf("select level %d: %w", level, err)
		}

		sort.SliceStable(items, func(i, j int) bool {
			return lastSeen(items[i]).After(lastSeen(items[j]))
		})
		if len(items) > s.config.PerLevelLimit {
			items = items[:s.config.PerLevelLimit]
		}

		for _, item := range items {
			rendered := s.render(item)
			if used+len(rendered) > s.config.CharBudget {
				break levels
			}
			used += len(rendered)
			out = append(out, Selected{Item: item, Rendered: rendered})
		}
	}

	if len(out) > 0 {
		ids := make([]string, len(out))
		for i, sel := range out {
			ids[i] = sel.Item.ID
		}
		if err := s.store.TouchLastSeen(ctx, ids, s.now().UTC()); err != nil {
			return nil, fmt.Errorf("touch selected items: %w", err)
		}
	}

	return out, nil
}

// render formats one item as "- module.key: value" with the level's value
// cap applied.
func (s *Selector) render(item *models.MemoryItem) string {
	value := item.Value
	if limit, ok := s.config.ValueLimits[item.Level]; ok {
		value = truncate(value, limit)
	}
	return "- " + item.Label() + ": " + value
}

// truncate caps value at limit bytes without splitting a multibyte rune.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	for limit > 0 && !utf8.RuneStart(value[limit]) {
		limit--
	}
	return value[:limit]
}

func lastSeen(item *models.MemoryItem) time.Time {
	if item.LastSeenAt == nil {
		return time.Time{}
	}
	return *item.LastSeenAt
}
