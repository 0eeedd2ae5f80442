package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/warden/pkg/models"
)

// ErrSecretValue indicates the write path refused a secret-shaped value.
var ErrSecretValue = errors.New("memory value looks like a secret")

// ErrInvalidLevel indicates a level outside the 0-5 range.
var ErrInvalidLevel = errors.New("memory level out of range")

// WriteRequest is one memory-write job's payload.
type WriteRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Level    int    `json:"level"`
	Module   string `json:"module"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Pinned   bool   `json:"pinned,omitempty"`
}

// Writer processes memory writes: it guards the boundary against
// secret-shaped values and upserts by (tenant, user, module, key).
type Writer struct {
	store Store
}

// NewWriter creates a writer over the given store.
func NewWriter(store Store) *Writer {
	return &Writer{store: store}
}

// Write validates and persists one memory value. Secret-shaped values are
// refused, not redacted, so the caller knows nothing was stored. The
// returned item carries the stored identity: on an update of an existing
// (tenant, user, module, key) row it keeps that row's ID, level, and
// creation time.
func (w *Writer) Write(ctx context.Context, req WriteRequest) (*models.MemoryItem, error) {
	if req.Level < models.MemoryLevelMin || req.Level > models.MemoryLevelMax {
		return nil, fmt.Errorf("level %d: %w", req.Level, ErrInvalidLevel)
	}
	if req.Module == "" || req.Key == "" {
		return nil, fmt.Errorf("module and key are required")
	}
	if LooksLikeSecret(req.Value) {
		return nil, ErrSecretValue
	}

	item := &models.MemoryItem{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		Level:     req.Level,
		Module:    req.Module,
		Key:       req.Key,
		Value:     req.Value,
		Pinned:    req.Pinned,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.store.UpsertItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
