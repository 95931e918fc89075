// Package testutil provides shared test helpers for setting up databases,
// file storage and a seeded tenant.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/storage"
	"github.com/starford/fiche/internal/store"
)

// TestDB creates a migrated temporary SQLite database that is closed on cleanup.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "fiche-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFiles creates a temporary file store serving URLs under /files/.
func TestFiles(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root, "/files/")
	if err != nil {
		t.Fatal(err)
	}
	return root, fs
}

// Tenant is a seeded company with one activity.
type Tenant struct {
	Company  *models.Company
	Activity *models.Activity
}

// Admin returns an admin identity of the tenant.
func (tn Tenant) Admin() models.Identity {
	return models.Identity{UserID: "admin-1", CompanyID: tn.Company.ID, Role: models.RoleAdmin}
}

// User returns a plain user identity of the tenant.
func (tn Tenant) User(userID string) models.Identity {
	return models.Identity{UserID: userID, CompanyID: tn.Company.ID, Role: models.RoleUser}
}

// SeedTenant creates (or reuses) company and activity rows by name.
func SeedTenant(t *testing.T, db *store.DB, company, activity string) Tenant {
	t.Helper()
	ctx := context.Background()
	c, err := db.EnsureCompany(ctx, company)
	if err != nil {
		t.Fatal(err)
	}
	a, err := db.EnsureActivity(ctx, c.ID, activity)
	if err != nil {
		t.Fatal(err)
	}
	return Tenant{Company: c, Activity: a}
}

// SeedTemplate stores a template with fields under the tenant's activity.
func SeedTemplate(t *testing.T, db *store.DB, tn Tenant, name string, fields ...models.Field) *models.Template {
	t.Helper()
	tpl, err := db.CreateTemplate(context.Background(), &models.Template{Name: name, ActivityID: tn.Activity.ID, Fields: fields})
	if err != nil {
		t.Fatal(err)
	}
	return tpl
}
