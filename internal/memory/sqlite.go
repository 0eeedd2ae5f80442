package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore persists memory items in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Pass ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			module TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			pinned INTEGER NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			last_seen_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, user_id, module, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("create memory_items table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_memory_items_user_level ON memory_items(tenant_id, user_id, level, archived)",
		"CREATE INDEX IF NOT EXISTS idx_memory_items_last_seen ON memory_items(last_seen_at)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertItem inserts or updates by (tenant, user, module, key) in a single
// statement. The conflict branch deliberately leaves level untouched: level
// is immutable after creation. The RETURNING clause reads the stored row
// back into item, so on conflict the caller sees the original row's
// identity rather than the freshly generated one.
func (s *SQLiteStore) UpsertItem(ctx context.Context, item *models.MemoryItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO memory_items (id, tenant_id, user_id, level, module, key, value, pinned, archived, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (tenant_id, user_id, module, key) DO UPDATE SET
			value = excluded.value,
			pinned = excluded.pinned
		RETURNING id, level, created_at
	`,
		item.ID, item.TenantID, item.UserID, item.Level, item.Module, item.Key,
		item.Value, boolToInt(item.Pinned), item.LastSeenAt, createdAt,
	).Scan(&item.ID, &item.Level, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert memory item: %w", err)
	}
	return nil
}

// ActiveByLevel reads the non-archived items at a level in one query.
func (s *SQLiteStore) ActiveByLevel(ctx context.Context, tenantID, userID string, level int) ([]*models.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, level, module, key, value, pinned, archived, last_seen_at, created_at
		FROM memory_items
		WHERE tenant_id = ? AND user_id = ? AND level = ? AND archived = 0
	`, tenantID, userID, level)
	if err != nil {
		return nil, fmt.Errorf("query memory items: %w", err)
	}
	defer rows.Close()

	var items []*models.MemoryItem
	for rows.Next() {
		var (
			item       models.MemoryItem
			pinned     int
			archived   int
			lastSeenAt sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.TenantID, &item.UserID, &item.Level,
			&item.Module, &item.Key, &item.Value,
			&pinned, &archived, &lastSeenAt, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		item.Pinned = pinned != 0
		item.Archived = archived != 0
		if lastSeenAt.Valid {
			t := lastSeenAt.Time
			item.LastSeenAt = &t
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// ArchiveIDs archives the given items in one statement, so concurrent
// selectors see either none or all of the batch archived.
func (s *SQLiteStore) ArchiveIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE memory_items SET archived = 1 WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	if _, err := s.db.ExecContext(ctx, query, stringArgs(ids)...); err != nil {
		return fmt.Errorf("archive memory items: %w", err)
	}
	return nil
}

// TouchLastSeen bumps LastSeenAt for the selected items.
func (s *SQLiteStore) TouchLastSeen(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE memory_items SET last_seen_at = ? WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	args := append([]any{at}, stringArgs(ids)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch memory items: %w", err)
	}
	return nil
}

// ListMemoryUsers enumerates every (tenant, user) pair with active items,
// for the enforcement sweep.
func (s *SQLiteStore) ListMemoryUsers(ctx context.Context) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT tenant_id, user_id FROM memory_items WHERE archived = 0")
	if err != nil {
		return nil, fmt.Errorf("list memory users: %w", err)
	}
	defer rows.Close()

	var users [][2]string
	for rows.Next() {
		var tenant, user string
		if err := rows.Scan(&tenant, &user); err != nil {
			return nil, fmt.Errorf("list memory users: %w", err)
		}
		users = append(users, [2]string{tenant, user})
	}
	return users, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
