//go:build sqlite_fts5

package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/starford/fiche/internal/models"
)

func initFTS(conn *sqlx.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			record_id UNINDEXED,
			template_id UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sqlx.Tx, id, templateID string, data models.Data) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM records_fts WHERE record_id = ?`, id)
	_, err := tx.ExecContext(ctx, `INSERT INTO records_fts (record_id, template_id, body) VALUES (?, ?, ?)`,
		id, templateID, searchText(data))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sqlx.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM records_fts WHERE record_id = ?`, id)
	return err
}

// SearchRecords performs an FTS5 full-text search and returns matching
// records with snippets. An empty templateID searches every template.
func (db *DB) SearchRecords(ctx context.Context, templateID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []SearchResult
	err := db.conn.SelectContext(ctx, &out, `
		SELECT record_id,
		       template_id,
		       snippet(records_fts, 2, '<b>', '</b>', '...', 32) AS snippet
		FROM records_fts
		WHERE records_fts MATCH ? AND (? = '' OR template_id = ?)
		ORDER BY rank
		LIMIT ?
	`, query, templateID, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return out, nil
}
