//go:build !sqlite_fts5

package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/starford/fiche/internal/models"
)

func initFTS(_ *sqlx.DB) error {
	// FTS5 not available; search uses LIKE over records.data.
	return nil
}

func ftsUpsert(_ context.Context, _ *sqlx.Tx, _, _ string, _ models.Data) error {
	// Data is already stored in the records table; nothing extra to do.
	return nil
}

func ftsDelete(_ context.Context, _ *sqlx.Tx, _ string) error { return nil }

// SearchRecords performs a LIKE-based search (fallback when FTS5 is not
// compiled in). An empty templateID searches every template.
func (db *DB) SearchRecords(ctx context.Context, templateID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	var out []SearchResult
	err := db.conn.SelectContext(ctx, &out, `
		SELECT id AS record_id, template_id, substr(data, 1, 200) AS snippet
		FROM records
		WHERE data LIKE ? AND (? = '' OR template_id = ?)
		ORDER BY updated_at DESC
		LIMIT ?
	`, like, templateID, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return out, nil
}
