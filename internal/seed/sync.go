package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/checksum"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/store"
)

// Catalog is the subset of the store a seeder writes to.
type Catalog interface {
	EnsureCompany(ctx context.Context, name string) (*models.Company, error)
	EnsureActivity(ctx context.Context, companyID, name string) (*models.Activity, error)
	FindTemplate(ctx context.Context, activityID, name string) (*models.Template, error)
	CreateTemplate(ctx context.Context, tpl *models.Template) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id string, u store.TemplateUpdate) (*models.Template, error)
}

// EventCallback is called after a seed file changed a template.
// kind is "created" or "updated".
type EventCallback func(kind string, tpl *models.Template)

// Seeder applies the files of one directory. Files it has already applied
// unchanged are skipped by checksum.
type Seeder struct {
	dir    string
	cat    Catalog
	logger *slog.Logger

	mu   sync.Mutex
	sums map[string]string
}

// New returns a Seeder for dir.
func New(dir string, cat Catalog, logger *slog.Logger) *Seeder {
	return &Seeder{dir: dir, cat: cat, logger: logger, sums: make(map[string]string)}
}

// Sync applies every seed file in the directory tree. Bad files are logged
// and skipped.
func (s *Seeder) Sync(ctx context.Context, cb EventCallback) error {
	return filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsSeedFile(p) {
			return nil
		}
		s.applyFile(ctx, p, cb)
		return nil
	})
}

// applyFile reads, parses and applies one file, logging failures.
func (s *Seeder) applyFile(ctx context.Context, p string, cb EventCallback) {
	rel, err := filepath.Rel(s.dir, p)
	if err != nil {
		rel = p
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("seed: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return
	}
	sum := checksum.Sum(data)
	s.mu.Lock()
	same := s.sums[rel] == sum
	s.mu.Unlock()
	if same {
		return
	}

	def, err := Parse(data)
	if err != nil {
		s.logger.Warn("seed: parse failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	tpl, kind, err := Apply(ctx, s.cat, def)
	if err != nil {
		s.logger.Warn("seed: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.sums[rel] = sum
	s.mu.Unlock()

	if kind == "" {
		return
	}
	s.logger.Info("seed: template "+kind,
		slog.String("path", rel),
		slog.String("template_id", tpl.ID),
		slog.Int64("version", tpl.Version))
	if cb != nil {
		cb(kind, tpl)
	}
}

// forget drops the checksum of a removed file so re-adding it applies again.
func (s *Seeder) forget(p string) {
	rel, err := filepath.Rel(s.dir, p)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.sums, rel)
	s.mu.Unlock()
}

// Apply upserts def: company and activity are created when missing, the
// template is created or has its whole field list replaced. kind is
// "created", "updated" or "" when the stored template already matched.
func Apply(ctx context.Context, cat Catalog, def *Definition) (*models.Template, string, error) {
	company, err := cat.EnsureCompany(ctx, def.Company)
	if err != nil {
		return nil, "", fmt.Errorf("seed: company %q: %w", def.Company, err)
	}
	activity, err := cat.EnsureActivity(ctx, company.ID, def.Activity)
	if err != nil {
		return nil, "", fmt.Errorf("seed: activity %q: %w", def.Activity, err)
	}
	existing, err := cat.FindTemplate(ctx, activity.ID, def.Name)
	if errors.Is(err, apperr.ErrNotFound) {
		tpl, err := cat.CreateTemplate(ctx, &models.Template{Name: def.Name, ActivityID: activity.ID, Fields: def.Fields})
		if err != nil {
			return nil, "", fmt.Errorf("seed: create template %q: %w", def.Name, err)
		}
		return tpl, "created", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("seed: find template %q: %w", def.Name, err)
	}
	if sameFields(existing.Fields, def.Fields) {
		return existing, "", nil
	}
	tpl, err := cat.UpdateTemplate(ctx, existing.ID, store.TemplateUpdate{Fields: def.Fields})
	if err != nil {
		return nil, "", fmt.Errorf("seed: update template %q: %w", def.Name, err)
	}
	return tpl, "updated", nil
}

func sameFields(a, b []models.Field) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
