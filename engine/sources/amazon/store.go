package amazon

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dealshelf/curator/pkg/pgutil"
)

// PGStore keeps feed documents in the products table.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the products table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS products (
		source     VARCHAR(50) NOT NULL,
		doc_id     TEXT        NOT NULL,
		doc        JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (source, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_products_source ON products (source);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("amazon: create products table: %w", err)
	}
	return nil
}

// Docs returns the documents of source in insertion-stable order.
func (s *PGStore) Docs(ctx context.Context, source string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM products WHERE source = $1 ORDER BY doc_id`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Put upserts documents keyed by id in one transaction.
func (s *PGStore) Put(ctx context.Context, source string, docs map[string]any) error {
	return pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO products (source, doc_id, doc, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (source, doc_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
		`)
		if err != nil {
			return fmt.Errorf("amazon: prepare upsert: %w", err)
		}
		defer stmt.Close()

		for id, doc := range docs {
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("amazon: encode %s: %w", id, err)
			}
			if _, err := stmt.ExecContext(ctx, source, id, raw); err != nil {
				return fmt.Errorf("amazon: upsert %s: %w", id, err)
			}
		}
		return nil
	})
}
