package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

// RecordStore is the persistence contract the form engine relies on.
// Consumers depend on it rather than on *DB.
type RecordStore interface {
	InsertRecord(ctx context.Context, templateID string, data models.Data, createdBy string) (*models.Record, error)
	UpdateRecord(ctx context.Context, id string, data models.Data) (*models.Record, error)
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]models.Record, int, error)
	DeleteRecord(ctx context.Context, id string) error
	SearchRecords(ctx context.Context, templateID, query string, limit int) ([]SearchResult, error)
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)

type recordRow struct {
	ID         string            `db:"id"`
	TemplateID string            `db:"template_id"`
	Data       JSON[models.Data] `db:"data"`
	CreatedBy  string            `db:"created_by"`
	CreatedAt  time.Time         `db:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at"`
}

func (r recordRow) model() *models.Record {
	data := r.Data.Data
	if data == nil {
		data = models.Data{}
	}
	return &models.Record{
		ID:         r.ID,
		TemplateID: r.TemplateID,
		Data:       data,
		CreatedAt:  r.CreatedAt,
		CreatedBy:  r.CreatedBy,
		UpdatedAt:  r.UpdatedAt,
	}
}

// SearchResult is one search hit.
type SearchResult struct {
	RecordID   string `db:"record_id" json:"record_id"`
	TemplateID string `db:"template_id" json:"collection_id"`
	Snippet    string `db:"snippet" json:"snippet"`
}

const recordCols = "id, template_id, data, created_by, created_at, updated_at"

// InsertRecord stores new record data and returns the record with its id.
func (db *DB) InsertRecord(ctx context.Context, templateID string, data models.Data, createdBy string) (*models.Record, error) {
	if templateID == "" {
		return nil, fmt.Errorf("%w: template id is required", apperr.ErrInvalid)
	}
	if data == nil {
		data = models.Data{}
	}
	ts := now()
	row := recordRow{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		Data:       JSON[models.Data]{Data: data},
		CreatedBy:  createdBy,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO records (id, template_id, data, created_by, created_at, updated_at)
			VALUES (:id, :template_id, :data, :created_by, :created_at, :updated_at)
		`, row)
		if err != nil {
			return translate(err, "insert record")
		}
		return ftsUpsert(ctx, tx, row.ID, row.TemplateID, data)
	})
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

// UpdateRecord replaces the whole data map of a record.
func (db *DB) UpdateRecord(ctx context.Context, id string, data models.Data) (*models.Record, error) {
	if data == nil {
		data = models.Data{}
	}
	var templateID string
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &templateID, `SELECT template_id FROM records WHERE id = ?`, id); err != nil {
			return translate(err, "update record")
		}
		_, err := tx.ExecContext(ctx, `UPDATE records SET data = ?, updated_at = ? WHERE id = ?`,
			JSON[models.Data]{Data: data}, now(), id)
		if err != nil {
			return translate(err, "update record")
		}
		return ftsUpsert(ctx, tx, id, templateID, data)
	})
	if err != nil {
		return nil, err
	}
	return db.GetRecord(ctx, id)
}

// GetRecord returns one record.
func (db *DB) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var r recordRow
	if err := db.conn.GetContext(ctx, &r, `SELECT `+recordCols+` FROM records WHERE id = ?`, id); err != nil {
		return nil, translate(err, "get record")
	}
	return r.model(), nil
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	TemplateID string
	CreatedBy  string
	Limit      int
	Offset     int
}

// ListRecords returns a page of a template's records, most recently updated
// first, and the total number of matches.
func (db *DB) ListRecords(ctx context.Context, f RecordFilter) ([]models.Record, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	where := func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("template_id", f.TemplateID))
		if f.CreatedBy != "" {
			sb.Where(sb.Equal("created_by", f.CreatedBy))
		}
	}

	cb := sqlbuilder.SQLite.NewSelectBuilder()
	cb.Select("count(*)").From("records")
	where(cb)
	countSQL, countArgs := cb.Build()
	var total int
	if err := db.conn.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, translate(err, "count records")
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(recordCols).From("records")
	where(sb)
	sb.OrderBy("updated_at").Desc().Limit(f.Limit).Offset(f.Offset)
	query, args := sb.Build()

	var rows []recordRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, translate(err, "list records")
	}
	out := make([]models.Record, len(rows))
	for i, r := range rows {
		out[i] = *r.model()
	}
	return out, total, nil
}

// DeleteRecord removes a record and its search entry.
func (db *DB) DeleteRecord(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		if err != nil {
			return translate(err, "delete record")
		}
		if err := requireAffected(res, "record"); err != nil {
			return err
		}
		return ftsDelete(ctx, tx, id)
	})
}

// CountRecordsWithKey returns how many records of templateID hold a non-empty
// value under key.
func (db *DB) CountRecordsWithKey(ctx context.Context, templateID, key string) (int, error) {
	rows, err := db.templateRecords(ctx, db.conn, templateID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if v, ok := r.Data.Data[key]; ok && !models.IsEmpty(v) {
			n++
		}
	}
	return n, nil
}

// FileReferenced reports whether any record of templateID other than
// exceptID lists url in one of its values.
func (db *DB) FileReferenced(ctx context.Context, templateID, url, exceptID string) (bool, error) {
	rows, err := db.templateRecords(ctx, db.conn, templateID)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.ID == exceptID {
			continue
		}
		for _, v := range r.Data.Data {
			for _, u := range models.AsURLs(v) {
				if u == url {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// MigrateKey copies data[from] into data[to] for every record of templateID
// that has a value under from and none under to. The old key is kept. It
// returns the number of records changed.
func (db *DB) MigrateKey(ctx context.Context, templateID, from, to string) (int, error) {
	if from == "" || to == "" || from == to {
		return 0, fmt.Errorf("%w: migrate needs two distinct keys", apperr.ErrInvalid)
	}
	changed := 0
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := db.templateRecords(ctx, tx, templateID)
		if err != nil {
			return err
		}
		ts := now()
		for _, r := range rows {
			data := r.Data.Data
			v, ok := data[from]
			if !ok || models.IsEmpty(v) || !models.IsEmpty(data[to]) {
				continue
			}
			data = data.Clone()
			data[to] = v
			if _, err := tx.ExecContext(ctx, `UPDATE records SET data = ?, updated_at = ? WHERE id = ?`,
				JSON[models.Data]{Data: data}, ts, r.ID); err != nil {
				return translate(err, "migrate key")
			}
			if err := ftsUpsert(ctx, tx, r.ID, templateID, data); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Stats are aggregate counts for dashboards.
type Stats struct {
	Companies  int `db:"companies" json:"companies"`
	Activities int `db:"activities" json:"activities"`
	Templates  int `db:"templates" json:"templates"`
	Records    int `db:"records" json:"records"`
}

// Stats counts catalog entries and records.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.GetContext(ctx, &s, `
		SELECT
			(SELECT count(*) FROM companies)  AS companies,
			(SELECT count(*) FROM activities) AS activities,
			(SELECT count(*) FROM templates)  AS templates,
			(SELECT count(*) FROM records)    AS records
	`)
	if err != nil {
		return Stats{}, translate(err, "stats")
	}
	return s, nil
}

func (db *DB) templateRecords(ctx context.Context, q sqlx.QueryerContext, templateID string) ([]recordRow, error) {
	var rows []recordRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT `+recordCols+` FROM records WHERE template_id = ?`, templateID); err != nil {
		return nil, translate(err, "template records")
	}
	return rows, nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", what, apperr.ErrNotFound)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

// searchText flattens the string-like values of data for the search index,
// in key order so the text is stable.
func searchText(data models.Data) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		s := models.AsString(data[k])
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}
	return b.String()
}
