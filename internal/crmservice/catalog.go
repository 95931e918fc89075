package crmservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/metrics"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/reconcile"
	"github.com/starford/fiche/internal/sse"
	"github.com/starford/fiche/internal/store"
)

// CreateCompany registers a tenant. Only super admins may.
func (s *Service) CreateCompany(ctx context.Context, id models.Identity, name string) (*models.Company, error) {
	if id.Role != models.RoleSuperAdmin {
		return nil, apperr.ErrForbidden
	}
	return s.db.CreateCompany(ctx, name)
}

// ListCompanies returns every tenant for super admins and the caller's own
// company otherwise.
func (s *Service) ListCompanies(ctx context.Context, id models.Identity) ([]models.Company, error) {
	if id.Role == models.RoleSuperAdmin {
		return s.db.ListCompanies(ctx)
	}
	if id.CompanyID == "" {
		return []models.Company{}, nil
	}
	c, err := s.db.GetCompany(ctx, id.CompanyID)
	if err != nil {
		return nil, err
	}
	return []models.Company{*c}, nil
}

// companyOf picks the company an activity call is about: the explicit one,
// or the caller's own.
func companyOf(id models.Identity, companyID string) (string, error) {
	if companyID == "" {
		companyID = id.CompanyID
	}
	if companyID == "" {
		return "", fmt.Errorf("%w: company id is required", apperr.ErrInvalid)
	}
	if !id.CanAccess(companyID) {
		return "", apperr.ErrForbidden
	}
	return companyID, nil
}

// CreateActivity adds an activity to a company.
func (s *Service) CreateActivity(ctx context.Context, id models.Identity, companyID, name string) (*models.Activity, error) {
	companyID, err := companyOf(id, companyID)
	if err != nil {
		return nil, err
	}
	if !id.IsAdmin() {
		return nil, apperr.ErrForbidden
	}
	return s.db.CreateActivity(ctx, companyID, name)
}

// ListActivities returns a company's activities.
func (s *Service) ListActivities(ctx context.Context, id models.Identity, companyID string) ([]models.Activity, error) {
	companyID, err := companyOf(id, companyID)
	if err != nil {
		return nil, err
	}
	return s.db.ListActivities(ctx, companyID)
}

// DeleteActivity removes an activity with its templates. Records of those
// templates are orphaned, not deleted.
func (s *Service) DeleteActivity(ctx context.Context, id models.Identity, activityID string) error {
	a, err := s.db.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if !id.CanAccess(a.CompanyID) {
		return fmt.Errorf("activity %s: %w", activityID, apperr.ErrNotFound)
	}
	if !id.IsAdmin() {
		return apperr.ErrForbidden
	}
	return s.db.DeleteActivity(ctx, activityID)
}

// CreateTemplate validates fields and stores a new template under activityID.
func (s *Service) CreateTemplate(ctx context.Context, id models.Identity, activityID, name string, fields []models.Field) (*models.Template, error) {
	a, err := s.db.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !id.CanAccess(a.CompanyID) {
		return nil, fmt.Errorf("activity %s: %w", activityID, apperr.ErrNotFound)
	}
	if !id.IsAdmin() {
		return nil, apperr.ErrForbidden
	}
	clean, err := reconcile.Replace(fields)
	if err != nil {
		return nil, err
	}
	tpl, err := s.db.CreateTemplate(ctx, &models.Template{ActivityID: activityID, Name: name, Fields: clean})
	if err != nil {
		return nil, err
	}
	s.publish(sse.TemplateUpdated, a.CompanyID, sse.Change{ID: tpl.ID, Version: tpl.Version})
	return tpl, nil
}

// GetTemplate returns one template.
func (s *Service) GetTemplate(ctx context.Context, id models.Identity, templateID string) (*models.Template, error) {
	tpl, _, err := s.template(ctx, id, templateID)
	return tpl, err
}

// ListTemplates returns templates visible to the caller. Everyone but a super
// admin is restricted to their own company.
func (s *Service) ListTemplates(ctx context.Context, id models.Identity, f store.TemplateFilter) ([]models.Template, error) {
	if id.Role != models.RoleSuperAdmin {
		if f.CompanyID != "" && f.CompanyID != id.CompanyID {
			return nil, apperr.ErrForbidden
		}
		if id.CompanyID == "" {
			return []models.Template{}, nil
		}
		f.CompanyID = id.CompanyID
	}
	return s.db.ListTemplates(ctx, f)
}

// FieldEdit is the outcome of a field-list operation.
type FieldEdit struct {
	Template *models.Template `json:"template"`
	Notice   *RenameNotice    `json:"notice,omitempty"`
}

// RenameNotice tells the editor that existing records still hold values
// under the old key and will show the renamed field as empty.
type RenameNotice struct {
	reconcile.Notice
	AffectedRecords int `json:"affected_records"`
}

// EditFields applies one reconcile operation to a template's field list.
// A non-zero ifVersion turns the write into a compare-and-swap.
func (s *Service) EditFields(ctx context.Context, id models.Identity, templateID string, op reconcile.Op, ifVersion int64) (*FieldEdit, error) {
	tpl, companyID, err := s.adminTemplate(ctx, id, templateID)
	if err != nil {
		return nil, err
	}
	if ifVersion != 0 && ifVersion != tpl.Version {
		return nil, fmt.Errorf("template %s is at version %d: %w", templateID, tpl.Version, apperr.ErrConflict)
	}
	res, err := reconcile.Apply(tpl.Fields, op)
	if err != nil {
		return nil, err
	}
	updated, err := s.db.UpdateTemplate(ctx, templateID, store.TemplateUpdate{Fields: res.Fields, IfVersion: ifVersion})
	if err != nil {
		return nil, err
	}

	out := &FieldEdit{Template: updated}
	if res.Notice != nil {
		n, err := s.db.CountRecordsWithKey(ctx, templateID, res.Notice.OrphanedKey)
		if err != nil {
			return nil, err
		}
		out.Notice = &RenameNotice{Notice: *res.Notice, AffectedRecords: n}
		if n > 0 {
			metrics.RenameOrphansTotal.Add(float64(n))
			s.logger.Warn("field rename leaves record values under the old key",
				slog.String("template_id", templateID),
				slog.String("old_name", res.Notice.OrphanedKey),
				slog.String("new_name", res.Notice.NewKey),
				slog.Int("records", n),
			)
		}
	}
	s.publish(sse.TemplateUpdated, companyID, sse.Change{ID: updated.ID, Version: updated.Version})
	return out, nil
}

// RenameTemplate changes a template's display name.
func (s *Service) RenameTemplate(ctx context.Context, id models.Identity, templateID, name string, ifVersion int64) (*models.Template, error) {
	_, companyID, err := s.adminTemplate(ctx, id, templateID)
	if err != nil {
		return nil, err
	}
	updated, err := s.db.UpdateTemplate(ctx, templateID, store.TemplateUpdate{Name: &name, IfVersion: ifVersion})
	if err != nil {
		return nil, err
	}
	s.publish(sse.TemplateUpdated, companyID, sse.Change{ID: updated.ID, Version: updated.Version})
	return updated, nil
}

// DeleteTemplate removes a template and leaves its records orphaned.
func (s *Service) DeleteTemplate(ctx context.Context, id models.Identity, templateID string) error {
	_, companyID, err := s.adminTemplate(ctx, id, templateID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteTemplate(ctx, templateID); err != nil {
		return err
	}
	s.publish(sse.TemplateUpdated, companyID, sse.Change{ID: templateID})
	return nil
}

// MigrateKey copies values from an old field key to a new one across the
// template's records. It is the optional follow-up to a rename.
func (s *Service) MigrateKey(ctx context.Context, id models.Identity, templateID, from, to string) (int, error) {
	_, _, err := s.adminTemplate(ctx, id, templateID)
	if err != nil {
		return 0, err
	}
	n, err := s.db.MigrateKey(ctx, templateID, from, to)
	if err != nil {
		return 0, err
	}
	s.logger.Info("migrated record key",
		slog.String("template_id", templateID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("records", n),
	)
	return n, nil
}
