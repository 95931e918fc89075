package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

type companyRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type activityRow struct {
	ID        string    `db:"id"`
	CompanyID string    `db:"company_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type templateRow struct {
	ID         string               `db:"id"`
	ActivityID string               `db:"activity_id"`
	Name       string               `db:"name"`
	Fields     JSON[[]models.Field] `db:"fields"`
	Version    int64                `db:"version"`
	CreatedAt  time.Time            `db:"created_at"`
	UpdatedAt  time.Time            `db:"updated_at"`
}

func (r templateRow) model() *models.Template {
	fields := r.Fields.Data
	if fields == nil {
		fields = []models.Field{}
	}
	return &models.Template{
		ID:         r.ID,
		Name:       r.Name,
		ActivityID: r.ActivityID,
		Fields:     fields,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", apperr.ErrInvalid)
	}
	return name, nil
}

// CreateCompany inserts a tenant.
func (db *DB) CreateCompany(ctx context.Context, name string) (*models.Company, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	c := &models.Company{ID: uuid.NewString(), Name: name, CreatedAt: now()}
	_, err = db.conn.ExecContext(ctx, `INSERT INTO companies (id, name, created_at) VALUES (?, ?, ?)`, c.ID, c.Name, c.CreatedAt)
	if err != nil {
		return nil, translate(err, "create company")
	}
	return c, nil
}

// GetCompany returns one tenant.
func (db *DB) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var r companyRow
	if err := db.conn.GetContext(ctx, &r, `SELECT id, name, created_at FROM companies WHERE id = ?`, id); err != nil {
		return nil, translate(err, "get company")
	}
	return &models.Company{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}, nil
}

// EnsureCompany returns the company called name, creating it when missing.
func (db *DB) EnsureCompany(ctx context.Context, name string) (*models.Company, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	var r companyRow
	err = db.conn.GetContext(ctx, &r, `SELECT id, name, created_at FROM companies WHERE name = ?`, name)
	if err == nil {
		return &models.Company{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}, nil
	}
	if err := translate(err, "find company"); !isNotFound(err) {
		return nil, err
	}
	return db.CreateCompany(ctx, name)
}

// ListCompanies returns every tenant ordered by name.
func (db *DB) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var rows []companyRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT id, name, created_at FROM companies ORDER BY name`); err != nil {
		return nil, translate(err, "list companies")
	}
	out := make([]models.Company, len(rows))
	for i, r := range rows {
		out[i] = models.Company{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// CreateActivity inserts an activity under companyID.
func (db *DB) CreateActivity(ctx context.Context, companyID, name string) (*models.Activity, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	a := &models.Activity{ID: uuid.NewString(), CompanyID: companyID, Name: name, CreatedAt: now()}
	_, err = db.conn.ExecContext(ctx, `INSERT INTO activities (id, company_id, name, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.CompanyID, a.Name, a.CreatedAt)
	if err != nil {
		return nil, translate(err, "create activity")
	}
	return a, nil
}

// GetActivity returns one activity.
func (db *DB) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	var r activityRow
	err := db.conn.GetContext(ctx, &r, `SELECT id, company_id, name, created_at FROM activities WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err, "get activity")
	}
	return &models.Activity{ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, CreatedAt: r.CreatedAt}, nil
}

// EnsureActivity returns the activity called name under companyID, creating
// it when missing.
func (db *DB) EnsureActivity(ctx context.Context, companyID, name string) (*models.Activity, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	var r activityRow
	err = db.conn.GetContext(ctx, &r, `SELECT id, company_id, name, created_at FROM activities WHERE company_id = ? AND name = ?`, companyID, name)
	if err == nil {
		return &models.Activity{ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, CreatedAt: r.CreatedAt}, nil
	}
	if err := translate(err, "find activity"); !isNotFound(err) {
		return nil, err
	}
	return db.CreateActivity(ctx, companyID, name)
}

// ListActivities returns the activities of a company; an empty companyID
// lists all of them.
func (db *DB) ListActivities(ctx context.Context, companyID string) ([]models.Activity, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "company_id", "name", "created_at").From("activities")
	if companyID != "" {
		sb.Where(sb.Equal("company_id", companyID))
	}
	sb.OrderBy("name")
	query, args := sb.Build()

	var rows []activityRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translate(err, "list activities")
	}
	out := make([]models.Activity, len(rows))
	for i, r := range rows {
		out[i] = models.Activity{ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// DeleteActivity removes an activity and its templates. Records of those
// templates are kept.
func (db *DB) DeleteActivity(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return translate(err, "delete activity")
	}
	return requireAffected(res, "activity")
}

const templateCols = "t.id, t.activity_id, t.name, t.fields, t.version, t.created_at, t.updated_at"

// CreateTemplate inserts tpl with a fresh id at version 1.
func (db *DB) CreateTemplate(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	name, err := requireName(tpl.Name)
	if err != nil {
		return nil, err
	}
	ts := now()
	row := templateRow{
		ID:         uuid.NewString(),
		ActivityID: tpl.ActivityID,
		Name:       name,
		Fields:     JSON[[]models.Field]{Data: tpl.Fields},
		Version:    1,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	_, err = db.conn.NamedExecContext(ctx, `
		INSERT INTO templates (id, activity_id, name, fields, version, created_at, updated_at)
		VALUES (:id, :activity_id, :name, :fields, :version, :created_at, :updated_at)
	`, row)
	if err != nil {
		return nil, translate(err, "create template")
	}
	return row.model(), nil
}

// GetTemplate returns one template.
func (db *DB) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var r templateRow
	err := db.conn.GetContext(ctx, &r, `SELECT `+templateCols+` FROM templates t WHERE t.id = ?`, id)
	if err != nil {
		return nil, translate(err, "get template")
	}
	return r.model(), nil
}

// FindTemplate returns the template called name under activityID.
func (db *DB) FindTemplate(ctx context.Context, activityID, name string) (*models.Template, error) {
	var r templateRow
	err := db.conn.GetContext(ctx, &r, `SELECT `+templateCols+` FROM templates t WHERE t.activity_id = ? AND t.name = ?`, activityID, name)
	if err != nil {
		return nil, translate(err, "find template")
	}
	return r.model(), nil
}

// TemplateFilter narrows ListTemplates. Empty members match everything.
type TemplateFilter struct {
	CompanyID  string
	ActivityID string
}

// ListTemplates returns templates ordered by name.
func (db *DB) ListTemplates(ctx context.Context, f TemplateFilter) ([]models.Template, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(templateCols).From("templates t").Join("activities a", "a.id = t.activity_id")
	if f.CompanyID != "" {
		sb.Where(sb.Equal("a.company_id", f.CompanyID))
	}
	if f.ActivityID != "" {
		sb.Where(sb.Equal("t.activity_id", f.ActivityID))
	}
	sb.OrderBy("t.name")
	query, args := sb.Build()

	var rows []templateRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translate(err, "list templates")
	}
	out := make([]models.Template, len(rows))
	for i, r := range rows {
		out[i] = *r.model()
	}
	return out, nil
}

// TemplateUpdate is a whole-template write. Nil members are left unchanged.
type TemplateUpdate struct {
	Name   *string
	Fields []models.Field
	// IfVersion, when non-zero, makes the write fail with apperr.ErrConflict
	// unless the stored version still equals it.
	IfVersion int64
}

// UpdateTemplate overwrites the template's name and/or field list and bumps
// its version. Without IfVersion the last write wins.
func (db *DB) UpdateTemplate(ctx context.Context, id string, u TemplateUpdate) (*models.Template, error) {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("templates")
	assignments := []string{ub.Assign("updated_at", now()), ub.Incr("version")}
	if u.Name != nil {
		name, err := requireName(*u.Name)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, ub.Assign("name", name))
	}
	if u.Fields != nil {
		fields, err := JSON[[]models.Field]{Data: u.Fields}.Value()
		if err != nil {
			return nil, fmt.Errorf("store: encode fields: %w", err)
		}
		assignments = append(assignments, ub.Assign("fields", fields))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", id))
	if u.IfVersion != 0 {
		ub.Where(ub.Equal("version", u.IfVersion))
	}
	query, args := ub.Build()

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "update template")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := db.GetTemplate(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: template %s is at version %d, not %d", apperr.ErrConflict, id, current.Version, u.IfVersion)
	}
	return db.GetTemplate(ctx, id)
}

// DeleteTemplate removes a template. Its records are left in place.
func (db *DB) DeleteTemplate(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return translate(err, "delete template")
	}
	return requireAffected(res, "template")
}

// TemplateCompany resolves the tenant owning a template.
func (db *DB) TemplateCompany(ctx context.Context, templateID string) (string, error) {
	var companyID string
	err := db.conn.GetContext(ctx, &companyID, `
		SELECT a.company_id FROM templates t
		JOIN activities a ON a.id = t.activity_id
		WHERE t.id = ?
	`, templateID)
	if err != nil {
		return "", translate(err, "template company")
	}
	return companyID, nil
}
