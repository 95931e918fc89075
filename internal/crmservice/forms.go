package crmservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/autofill"
	"github.com/starford/fiche/internal/form"
	"github.com/starford/fiche/internal/metrics"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/storage"
)

// FormRef addresses one open form: a template and, when editing, a record.
type FormRef struct {
	SessionID  string
	TemplateID string
	RecordID   string
}

// openForm loads the template and optional source record behind ref.
func (s *Service) openForm(ctx context.Context, id models.Identity, ref FormRef) (*models.Template, *models.Record, string, error) {
	tpl, companyID, err := s.template(ctx, id, ref.TemplateID)
	if err != nil {
		return nil, nil, "", err
	}
	if ref.RecordID == "" {
		return tpl, nil, companyID, nil
	}
	rec, err := s.db.GetRecord(ctx, ref.RecordID)
	if err != nil {
		return nil, nil, "", err
	}
	if rec.TemplateID != tpl.ID {
		return nil, nil, "", fmt.Errorf("record %s is not a %s record: %w", rec.ID, tpl.Name, apperr.ErrNotFound)
	}
	return tpl, rec, companyID, nil
}

// formError maps widget-key failures onto the shared error kinds.
func formError(err error) error {
	switch {
	case errors.Is(err, form.ErrStaleKey):
		return fmt.Errorf("%w: %w", apperr.ErrConflict, err)
	case errors.Is(err, form.ErrUnknownKey), errors.Is(err, form.ErrReadOnly), errors.Is(err, form.ErrWrongType):
		return fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
	}
	return err
}

// RenderForm renders the form for ref from the session's widget state.
func (s *Service) RenderForm(ctx context.Context, id models.Identity, ref FormRef) (*form.Form, error) {
	tpl, rec, _, err := s.openForm(ctx, id, ref)
	if err != nil {
		return nil, err
	}
	var out form.Form
	err = s.withSession(ctx, ref.SessionID, func(st *form.State) error {
		out = form.Render(st, tpl, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// mutate applies fn to the session state and returns the re-rendered form.
func (s *Service) mutate(ctx context.Context, id models.Identity, ref FormRef, fn func(st *form.State, tpl *models.Template, companyID string) error) (*form.Form, error) {
	tpl, rec, companyID, err := s.openForm(ctx, id, ref)
	if err != nil {
		return nil, err
	}
	var out form.Form
	err = s.withSession(ctx, ref.SessionID, func(st *form.State) error {
		if err := fn(st, tpl, companyID); err != nil {
			return formError(err)
		}
		out = form.Render(st, tpl, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetValue writes one widget value.
func (s *Service) SetValue(ctx context.Context, id models.Identity, ref FormRef, key string, value any) (*form.Form, error) {
	return s.mutate(ctx, id, ref, func(st *form.State, tpl *models.Template, _ string) error {
		return st.SetValue(tpl, ref.RecordID, key, value)
	})
}

// SetCopyMain toggles copying the main address into a work-address widget.
func (s *Service) SetCopyMain(ctx context.Context, id models.Identity, ref FormRef, key string, on bool) (*form.Form, error) {
	return s.mutate(ctx, id, ref, func(st *form.State, tpl *models.Template, _ string) error {
		return st.SetCopyMain(tpl, ref.RecordID, key, on)
	})
}

// Upload is one file sent to a file-list widget.
type Upload struct {
	Name string
	Data []byte
}

// Upload stores files and attaches their URLs to a file-list widget. The key
// is checked before anything is written. When a later file fails, the files
// already stored stay attached: the form is returned together with the error
// naming the failed file.
func (s *Service) Upload(ctx context.Context, id models.Identity, ref FormRef, key string, files ...Upload) (*form.Form, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file to upload", apperr.ErrInvalid)
	}
	var failed error
	out, err := s.mutate(ctx, id, ref, func(st *form.State, tpl *models.Template, companyID string) error {
		if err := st.CheckKey(tpl, key, models.FileList); err != nil {
			return err
		}
		urls := make([]string, 0, len(files))
		for _, f := range files {
			u, err := s.files.Upload(f.Data, path.Join(companyID, tpl.ID, storage.SanitizeName(f.Name)))
			if err != nil {
				metrics.UploadsTotal.WithLabelValues(metrics.OutcomeError).Inc()
				s.logger.Warn("upload failed",
					slog.String("template_id", tpl.ID),
					slog.String("file", f.Name),
					slog.Int("stored", len(urls)),
					slog.String("error", err.Error()),
				)
				failed = fmt.Errorf("upload %s: %w", f.Name, err)
				break
			}
			metrics.UploadsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
			urls = append(urls, u)
		}
		if len(urls) == 0 {
			return failed
		}
		return st.AddUploads(tpl, ref.RecordID, key, urls...)
	})
	if err != nil {
		return nil, err
	}
	return out, failed
}

// AutofillResult is the form after a registry lookup.
type AutofillResult struct {
	Form   *form.Form          `json:"form"`
	Found  bool                `json:"found"`
	Filled []string            `json:"filled"`
	Info   *models.CompanyInfo `json:"info,omitempty"`
}

// Autofill looks identifier up and pre-fills matching fields on the next
// render. A failed or empty lookup still fills company-id fields and never
// fails the call.
func (s *Service) Autofill(ctx context.Context, id models.Identity, ref FormRef, identifier string) (*AutofillResult, error) {
	tpl, _, _, err := s.openForm(ctx, id, ref)
	if err != nil {
		return nil, err
	}
	info := s.lookupCompany(ctx, tpl.ID, identifier)
	values := autofill.Resolve(tpl.Fields, identifier, info)

	f, err := s.mutate(ctx, id, ref, func(st *form.State, tpl *models.Template, _ string) error {
		st.SetPending(tpl.ID, ref.RecordID, values)
		return nil
	})
	if err != nil {
		return nil, err
	}
	filled := make([]string, 0, len(values))
	for _, field := range tpl.Fields {
		if _, ok := values[field.Name]; ok && !slices.Contains(filled, field.Name) {
			filled = append(filled, field.Name)
		}
	}
	return &AutofillResult{Form: f, Found: info != nil, Filled: filled, Info: info}, nil
}

// LookupCompany queries the registry directly.
func (s *Service) LookupCompany(ctx context.Context, identifier string) (*models.CompanyInfo, error) {
	if s.lookup == nil {
		return nil, fmt.Errorf("%w: registry lookup is disabled", apperr.ErrLookupFailed)
	}
	info, err := s.lookup.Lookup(ctx, identifier)
	switch {
	case err != nil:
		metrics.LookupsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	case info == nil:
		metrics.LookupsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
	default:
		metrics.LookupsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	}
	return info, err
}

func (s *Service) lookupCompany(ctx context.Context, templateID, identifier string) *models.CompanyInfo {
	if s.lookup == nil {
		return nil
	}
	info, err := s.LookupCompany(ctx, identifier)
	if err != nil {
		s.logger.Warn("registry lookup failed",
			slog.String("template_id", templateID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return info
}

// ResetForm discards the widget state of one form. Files uploaded into it
// and not referenced by any record are deleted.
func (s *Service) ResetForm(ctx context.Context, id models.Identity, ref FormRef) error {
	tpl, _, companyID, err := s.openForm(ctx, id, ref)
	if err != nil {
		return err
	}
	var discarded []string
	err = s.withSession(ctx, ref.SessionID, func(st *form.State) error {
		discarded = st.Reset(tpl.ID, ref.RecordID)
		return nil
	})
	if err != nil {
		return err
	}
	s.releaseFiles(ctx, companyID, tpl.ID, "", discarded)
	return nil
}

// releaseFiles deletes the stored files of companyID behind urls that no
// record of templateID other than exceptID references. Files of other
// companies are never touched. Failures are only logged.
func (s *Service) releaseFiles(ctx context.Context, companyID, templateID, exceptID string, urls []string) {
	for _, u := range urls {
		p, ok := s.files.PathOf(u)
		if !ok || storage.Owner(p) != companyID {
			continue
		}
		used, err := s.db.FileReferenced(ctx, templateID, u, exceptID)
		if err != nil || used {
			continue
		}
		if err := s.files.Delete(p); err != nil {
			s.logger.Warn("delete file failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}
