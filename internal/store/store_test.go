package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "fiche-test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedTemplate creates company → activity → template and returns the template.
func seedTemplate(t *testing.T, db *DB, fields ...models.Field) *models.Template {
	t.Helper()
	ctx := context.Background()
	c, err := db.EnsureCompany(ctx, "Acme")
	if err != nil {
		t.Fatal(err)
	}
	a, err := db.EnsureActivity(ctx, c.ID, "Photovoltaïque")
	if err != nil {
		t.Fatal(err)
	}
	tpl, err := db.CreateTemplate(ctx, &models.Template{Name: "Visite technique", ActivityID: a.ID, Fields: fields})
	if err != nil {
		t.Fatal(err)
	}
	return tpl
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"companies", "activities", "templates", "records"} {
		var count int
		if err := db.conn.Get(&count, `SELECT count(*) FROM `+table); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := Migrate(path)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := Migrate(path)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != 1 || v2 != 1 {
		t.Errorf("versions = %d, %d", v1, v2)
	}
}

func TestCatalog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c, err := db.CreateCompany(ctx, "Acme")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateCompany(ctx, "Acme"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate company err = %v", err)
	}
	again, err := db.EnsureCompany(ctx, "Acme")
	if err != nil || again.ID != c.ID {
		t.Errorf("EnsureCompany = %+v, %v", again, err)
	}
	if _, err := db.CreateActivity(ctx, "missing", "X"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("activity without company err = %v", err)
	}
	a, err := db.CreateActivity(ctx, c.ID, "Isolation")
	if err != nil {
		t.Fatal(err)
	}
	acts, err := db.ListActivities(ctx, c.ID)
	if err != nil || len(acts) != 1 {
		t.Fatalf("ListActivities = %v, %v", acts, err)
	}

	other, _ := db.CreateCompany(ctx, "Other")
	oa, _ := db.CreateActivity(ctx, other.ID, "Isolation")
	_, _ = db.CreateTemplate(ctx, &models.Template{Name: "B", ActivityID: oa.ID})
	tpl, err := db.CreateTemplate(ctx, &models.Template{Name: "A", ActivityID: a.ID, Fields: []models.Field{
		{Name: "Kbis", Type: models.FileList, RequiredForExport: true},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Version != 1 {
		t.Errorf("version = %d", tpl.Version)
	}

	list, err := db.ListTemplates(ctx, TemplateFilter{CompanyID: c.ID})
	if err != nil || len(list) != 1 || list[0].ID != tpl.ID {
		t.Fatalf("ListTemplates = %+v, %v", list, err)
	}
	if list[0].Fields[0].Type != models.FileList || !list[0].Fields[0].RequiredForExport {
		t.Errorf("fields not round-tripped: %+v", list[0].Fields)
	}
	company, err := db.TemplateCompany(ctx, tpl.ID)
	if err != nil || company != c.ID {
		t.Errorf("TemplateCompany = %q, %v", company, err)
	}
	all, _ := db.ListTemplates(ctx, TemplateFilter{})
	if len(all) != 2 {
		t.Errorf("all templates = %d", len(all))
	}
}

func TestUpdateTemplateVersioning(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tpl := seedTemplate(t, db, models.Field{Name: "Nom", Type: models.ShortText})

	fields := append(tpl.Fields, models.Field{Name: "Ville", Type: models.ShortText})
	up, err := db.UpdateTemplate(ctx, tpl.ID, TemplateUpdate{Fields: fields, IfVersion: 1})
	if err != nil {
		t.Fatal(err)
	}
	if up.Version != 2 || len(up.Fields) != 2 {
		t.Errorf("updated = %+v", up)
	}

	// A writer still holding version 1 is rejected.
	if _, err := db.UpdateTemplate(ctx, tpl.ID, TemplateUpdate{Fields: tpl.Fields, IfVersion: 1}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale write err = %v", err)
	}
	// Without a version the last write wins.
	name := "Visite"
	up, err = db.UpdateTemplate(ctx, tpl.ID, TemplateUpdate{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if up.Version != 3 || up.Name != "Visite" || len(up.Fields) != 2 {
		t.Errorf("lww = %+v", up)
	}
	if _, err := db.UpdateTemplate(ctx, "missing", TemplateUpdate{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing template err = %v", err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tpl := seedTemplate(t, db)

	rec, err := db.InsertRecord(ctx, tpl.ID, models.Data{"Société": "OldCo", "Surface": 42.5}, "u1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["Société"] != "OldCo" || got.Data["Surface"] != 42.5 || got.CreatedBy != "u1" {
		t.Errorf("record = %+v", got)
	}

	got.Data["Société"] = "NewCo"
	up, err := db.UpdateRecord(ctx, rec.ID, got.Data)
	if err != nil {
		t.Fatal(err)
	}
	if up.Data["Société"] != "NewCo" {
		t.Errorf("updated = %+v", up.Data)
	}

	_, _ = db.InsertRecord(ctx, tpl.ID, models.Data{"Société": "Second"}, "u2")
	list, total, err := db.ListRecords(ctx, RecordFilter{TemplateID: tpl.ID, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(list) != 1 {
		t.Errorf("total = %d, page = %d", total, len(list))
	}
	mine, total, _ := db.ListRecords(ctx, RecordFilter{TemplateID: tpl.ID, CreatedBy: "u1"})
	if total != 1 || mine[0].ID != rec.ID {
		t.Errorf("filtered = %+v", mine)
	}

	if err := db.DeleteRecord(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetRecord(ctx, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted record err = %v", err)
	}
	if err := db.DeleteRecord(ctx, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if _, err := db.UpdateRecord(ctx, rec.ID, models.Data{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update deleted err = %v", err)
	}
}

func TestDeleteTemplateOrphansRecords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tpl := seedTemplate(t, db)
	rec, _ := db.InsertRecord(ctx, tpl.ID, models.Data{"a": "b"}, "u1")

	if err := db.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetRecord(ctx, rec.ID); err != nil {
		t.Errorf("record removed with its template: %v", err)
	}
}

func TestCountAndMigrateKey(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tpl := seedTemplate(t, db)
	r1, _ := db.InsertRecord(ctx, tpl.ID, models.Data{"Société": "A"}, "u")
	r2, _ := db.InsertRecord(ctx, tpl.ID, models.Data{"Société": "B", "Raison sociale": "kept"}, "u")
	_, _ = db.InsertRecord(ctx, tpl.ID, models.Data{"Société": ""}, "u")

	n, err := db.CountRecordsWithKey(ctx, tpl.ID, "Société")
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	changed, err := db.MigrateKey(ctx, tpl.ID, "Société", "Raison sociale")
	if err != nil {
		t.Fatal(err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}
	got1, _ := db.GetRecord(ctx, r1.ID)
	if got1.Data["Raison sociale"] != "A" || got1.Data["Société"] != "A" {
		t.Errorf("r1 = %+v", got1.Data)
	}
	got2, _ := db.GetRecord(ctx, r2.ID)
	if got2.Data["Raison sociale"] != "kept" {
		t.Errorf("existing target overwritten: %+v", got2.Data)
	}
	if _, err := db.MigrateKey(ctx, tpl.ID, "a", "a"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("same keys err = %v", err)
	}
}

func TestSearchRecords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tpl := seedTemplate(t, db)
	rec, _ := db.InsertRecord(ctx, tpl.ID, models.Data{"Nom": "Dupont", "Ville": "Lyon"}, "u")
	_, _ = db.InsertRecord(ctx, tpl.ID, models.Data{"Nom": "Martin", "Ville": "Paris"}, "u")

	hits, err := db.SearchRecords(ctx, tpl.ID, "Dupont", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].RecordID != rec.ID {
		t.Errorf("hits = %+v", hits)
	}
	hits, _ = db.SearchRecords(ctx, "other-template", "Dupont", 10)
	if len(hits) != 0 {
		t.Errorf("search leaked across templates: %+v", hits)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tpl := seedTemplate(t, db)
	_, _ = db.InsertRecord(ctx, tpl.ID, models.Data{}, "u")
	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s != (Stats{Companies: 1, Activities: 1, Templates: 1, Records: 1}) {
		t.Errorf("stats = %+v", s)
	}
}
