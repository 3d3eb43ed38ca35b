package pinned

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dealshelf/curator/engine/catalog"
)

// PGBackend keeps pinned deals in the pinned_deals table.
type PGBackend struct {
	db *sql.DB
}

// NewPGBackend wraps an open database.
func NewPGBackend(db *sql.DB) *PGBackend {
	return &PGBackend{db: db}
}

var _ Backend = (*PGBackend)(nil)

// EnsureSchema creates the pinned_deals table if it does not exist.
func (b *PGBackend) EnsureSchema(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS pinned_deals (
		id        TEXT PRIMARY KEY,
		deal      JSONB       NOT NULL,
		pinned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("pinned: create pinned_deals table: %w", err)
	}
	return nil
}

// List returns every entry, most recently pinned first. Rows whose deal does
// not decode are skipped.
func (b *PGBackend) List(ctx context.Context) ([]catalog.PinnedEntry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, deal, pinned_at FROM pinned_deals ORDER BY pinned_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.PinnedEntry
	for rows.Next() {
		var (
			e   catalog.PinnedEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &raw, &e.PinnedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Deal); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Put upserts e.
func (b *PGBackend) Put(ctx context.Context, e catalog.PinnedEntry) error {
	raw, err := json.Marshal(e.Deal)
	if err != nil {
		return fmt.Errorf("pinned: encode %s: %w", e.ID, err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO pinned_deals (id, deal, pinned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET deal = EXCLUDED.deal, pinned_at = EXCLUDED.pinned_at
	`, e.ID, raw, e.PinnedAt)
	return err
}

// Delete removes the entry with id. Missing ids are not an error.
func (b *PGBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM pinned_deals WHERE id = $1`, id)
	return err
}
