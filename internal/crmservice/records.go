package crmservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/form"
	"github.com/starford/fiche/internal/metrics"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/sse"
	"github.com/starford/fiche/internal/storage"
	"github.com/starford/fiche/internal/store"
)

// Submission kinds used as metric labels.
const (
	kindCreate = "create"
	kindUpdate = "update"
)

// SubmitResult is a saved record together with the generation new widget
// keys for its template now carry.
type SubmitResult struct {
	Record     *models.Record `json:"record"`
	Generation uint64         `json:"generation"`
}

// Submit validates the form for ref and saves it as a new record, or over
// the source record when ref names one. On a validation failure nothing is
// written and the returned error is an *apperr.ValidationError.
func (s *Service) Submit(ctx context.Context, id models.Identity, ref FormRef) (*SubmitResult, error) {
	tpl, rec, companyID, err := s.openForm(ctx, id, ref)
	if err != nil {
		return nil, err
	}
	kind := kindCreate
	var existing models.Data
	if rec != nil {
		kind = kindUpdate
		existing = rec.Data
	}

	var (
		out     SubmitResult
		invalid *apperr.ValidationError
	)
	err = s.withSession(ctx, ref.SessionID, func(st *form.State) error {
		sub := form.Collect(st, tpl, rec)
		if v := form.Validate(sub); len(v) > 0 {
			// State is still saved: the render inside Collect may have
			// consumed pending auto-fill values.
			invalid = &apperr.ValidationError{Violations: v}
			return nil
		}
		data := form.Apply(existing, sub)
		saved, err := s.save(ctx, rec, tpl.ID, data, id.UserID)
		if err != nil {
			return err
		}
		out = SubmitResult{Record: saved, Generation: st.Complete(tpl.ID)}
		return nil
	})
	switch {
	case err != nil:
		metrics.SubmissionsTotal.WithLabelValues(kind, outcomeOf(err)).Inc()
		return nil, err
	case invalid != nil:
		s.countViolations(kind, tpl, invalid)
		return nil, invalid
	}
	metrics.SubmissionsTotal.WithLabelValues(kind, metrics.OutcomeOK).Inc()
	s.announce(kind, companyID, out.Record)
	return &out, nil
}

// CreateRecord validates raw field values against the template and stores
// them as a new record without going through a form session.
func (s *Service) CreateRecord(ctx context.Context, id models.Identity, templateID string, data models.Data) (*models.Record, error) {
	tpl, companyID, err := s.template(ctx, id, templateID)
	if err != nil {
		return nil, err
	}
	sub := form.FromData(tpl, data)
	if v := form.Validate(sub); len(v) > 0 {
		invalid := &apperr.ValidationError{Violations: v}
		s.countViolations(kindCreate, tpl, invalid)
		return nil, invalid
	}
	for _, e := range sub.Entries {
		if err := s.checkFileURLs(companyID, e.Uploads); err != nil {
			metrics.SubmissionsTotal.WithLabelValues(kindCreate, outcomeOf(err)).Inc()
			return nil, fmt.Errorf("field %s: %w", e.Field.Name, err)
		}
	}
	rec, err := s.db.InsertRecord(ctx, tpl.ID, form.Apply(nil, sub), id.UserID)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(kindCreate, outcomeOf(err)).Inc()
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues(kindCreate, metrics.OutcomeOK).Inc()
	s.announce(kindCreate, companyID, rec)
	return rec, nil
}

func (s *Service) save(ctx context.Context, rec *models.Record, templateID string, data models.Data, userID string) (*models.Record, error) {
	if rec == nil {
		return s.db.InsertRecord(ctx, templateID, data, userID)
	}
	return s.db.UpdateRecord(ctx, rec.ID, data)
}

func (s *Service) announce(kind, companyID string, rec *models.Record) {
	ev := sse.RecordCreated
	if kind == kindUpdate {
		ev = sse.RecordUpdated
	}
	s.publish(ev, companyID, sse.Change{ID: rec.ID, TemplateID: rec.TemplateID})
}

func (s *Service) countViolations(kind string, tpl *models.Template, ve *apperr.ValidationError) {
	metrics.SubmissionsTotal.WithLabelValues(kind, metrics.OutcomeInvalid).Inc()
	for _, v := range ve.Violations {
		t := "unknown"
		if v.Position >= 0 && v.Position < len(tpl.Fields) {
			t = tpl.Fields[v.Position].Type.WireName()
		}
		metrics.ValidationViolationsTotal.WithLabelValues(t).Inc()
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, apperr.ErrExportBlocked):
		return metrics.OutcomeBlocked
	case errors.Is(err, apperr.ErrInvalid):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}

// ListRecords pages through one template's records.
func (s *Service) ListRecords(ctx context.Context, id models.Identity, f store.RecordFilter) ([]models.Record, int, error) {
	if f.TemplateID == "" {
		return nil, 0, fmt.Errorf("%w: template id is required", apperr.ErrInvalid)
	}
	if _, _, err := s.template(ctx, id, f.TemplateID); err != nil {
		return nil, 0, err
	}
	return s.db.ListRecords(ctx, f)
}

// GetRecord returns one record. Records whose template was deleted are not
// reachable.
func (s *Service) GetRecord(ctx context.Context, id models.Identity, recordID string) (*models.Record, error) {
	rec, _, _, err := s.record(ctx, id, recordID)
	return rec, err
}

// SearchRecords runs a full-text search over one template's records. Only
// super admins may search without a template.
func (s *Service) SearchRecords(ctx context.Context, id models.Identity, templateID, query string, limit int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrInvalid)
	}
	if templateID == "" {
		if id.Role != models.RoleSuperAdmin {
			return nil, fmt.Errorf("%w: template id is required", apperr.ErrInvalid)
		}
	} else if _, _, err := s.template(ctx, id, templateID); err != nil {
		return nil, err
	}
	return s.db.SearchRecords(ctx, templateID, query, limit)
}

// DeleteRecord removes a record and the files only it referenced. Admins may
// delete any record of their company, users only their own.
func (s *Service) DeleteRecord(ctx context.Context, id models.Identity, recordID string) error {
	rec, tpl, companyID, err := s.record(ctx, id, recordID)
	if err != nil {
		return err
	}
	if !id.IsAdmin() && rec.CreatedBy != id.UserID {
		return apperr.ErrForbidden
	}
	if err := s.db.DeleteRecord(ctx, recordID); err != nil {
		return err
	}
	var urls []string
	for _, f := range tpl.Fields {
		if f.Type == models.FileList {
			urls = append(urls, models.AsURLs(rec.Data[f.Name])...)
		}
	}
	s.releaseFiles(ctx, companyID, tpl.ID, recordID, urls)
	s.publish(sse.RecordDeleted, companyID, sse.Change{ID: recordID, TemplateID: rec.TemplateID})
	return nil
}

// ExportRecord merges a record's documents into one PDF. Only files of the
// record's own company are read.
func (s *Service) ExportRecord(ctx context.Context, id models.Identity, recordID string) ([]byte, error) {
	rec, tpl, companyID, err := s.record(ctx, id, recordID)
	if err != nil {
		return nil, err
	}
	for _, f := range tpl.Fields {
		if f.Type != models.FileList {
			continue
		}
		if err := s.checkFileURLs(companyID, models.AsURLs(rec.Data[f.Name])); err != nil {
			metrics.ExportsTotal.WithLabelValues(outcomeOf(err)).Inc()
			return nil, fmt.Errorf("export %s: %w", recordID, err)
		}
	}
	start := time.Now()
	out, err := s.composer.Compose(storage.WithOwner(ctx, companyID), tpl, rec)
	metrics.ExportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(outcomeOf(err)).Inc()
		if !errors.Is(err, apperr.ErrExportBlocked) {
			s.logger.Warn("export failed",
				slog.String("record_id", recordID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	metrics.ExportsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return out, nil
}

// AttachToRecord stores a file and appends its URL to a file-list field of
// an existing record.
func (s *Service) AttachToRecord(ctx context.Context, id models.Identity, recordID, field string, file Upload) (*models.Record, error) {
	rec, tpl, companyID, err := s.record(ctx, id, recordID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, f := range tpl.Fields {
		if f.Name == field && f.Type == models.FileList {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q is not a file field of %s", apperr.ErrInvalid, field, tpl.Name)
	}
	u, err := s.files.Upload(file.Data, path.Join(companyID, tpl.ID, storage.SanitizeName(file.Name)))
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	data := rec.Data.Clone()
	data[field] = models.MergeURLs(models.AsURLs(data[field]), []string{u})
	updated, err := s.db.UpdateRecord(ctx, rec.ID, data)
	if err != nil {
		return nil, err
	}
	s.announce(kindUpdate, companyID, updated)
	return updated, nil
}

// checkFileURLs accepts local files of companyID and remote http(s) URLs.
func (s *Service) checkFileURLs(companyID string, urls []string) error {
	for _, u := range urls {
		if p, ok := s.files.PathOf(u); ok {
			if storage.Owner(p) != companyID {
				return fmt.Errorf("%w: file %s belongs to another company", apperr.ErrForbidden, u)
			}
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%w: %q is not a file URL", apperr.ErrInvalid, u)
		}
	}
	return nil
}

// ReadFile returns a stored file. The first path segment is the owning
// company.
func (s *Service) ReadFile(_ context.Context, id models.Identity, p string) ([]byte, error) {
	p = strings.TrimPrefix(p, "/")
	companyID := storage.Owner(p)
	if companyID == "" || !id.CanAccess(companyID) {
		return nil, fmt.Errorf("file %s: %w", p, apperr.ErrNotFound)
	}
	return s.files.Read(p)
}
