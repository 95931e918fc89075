// Package crmservice coordinates the catalog, the record store, per-session
// form state and the external collaborators behind one tenant-aware API.
package crmservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/export"
	"github.com/starford/fiche/internal/form"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/session"
	"github.com/starford/fiche/internal/sse"
	"github.com/starford/fiche/internal/storage"
	"github.com/starford/fiche/internal/store"
)

// Lookuper resolves a company identifier against a business registry.
// (nil, nil) means nothing was found.
type Lookuper interface {
	Lookup(ctx context.Context, identifier string) (*models.CompanyInfo, error)
}

// Deps are the collaborators of a Service. Lookup and Events may be nil.
type Deps struct {
	DB       *store.DB
	Files    storage.Provider
	Sessions session.Store
	Lookup   Lookuper
	Composer *export.Composer
	Events   *sse.Broker
	Logger   *slog.Logger
}

// Service implements every record-engine operation for an identified caller.
type Service struct {
	db       *store.DB
	files    storage.Provider
	sessions session.Store
	lookup   Lookuper
	composer *export.Composer
	events   *sse.Broker
	logger   *slog.Logger
	locks    sessionLocks
}

// New creates a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       d.DB,
		files:    d.Files,
		sessions: d.Sessions,
		lookup:   d.Lookup,
		composer: d.Composer,
		events:   d.Events,
		logger:   logger,
		locks:    sessionLocks{m: make(map[string]*sessionLock)},
	}
}

// Ready reports whether the database and the session backend answer.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if p, ok := s.sessions.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
	}
	return nil
}

// Stats returns catalog and record counts. Only super admins see them.
func (s *Service) Stats(ctx context.Context, id models.Identity) (store.Stats, error) {
	if id.Role != models.RoleSuperAdmin {
		return store.Stats{}, apperr.ErrForbidden
	}
	return s.db.Stats(ctx)
}

func (s *Service) publish(kind, companyID string, c sse.Change) {
	if s.events != nil {
		s.events.PublishChange(kind, companyID, c)
	}
}

// template loads a template the caller may read and returns its company.
func (s *Service) template(ctx context.Context, id models.Identity, templateID string) (*models.Template, string, error) {
	companyID, err := s.db.TemplateCompany(ctx, templateID)
	if err != nil {
		return nil, "", err
	}
	if !id.CanAccess(companyID) {
		// Other tenants' templates are reported as missing.
		return nil, "", fmt.Errorf("template %s: %w", templateID, apperr.ErrNotFound)
	}
	tpl, err := s.db.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, "", err
	}
	return tpl, companyID, nil
}

// adminTemplate is template plus the admin-role check for mutations.
func (s *Service) adminTemplate(ctx context.Context, id models.Identity, templateID string) (*models.Template, string, error) {
	tpl, companyID, err := s.template(ctx, id, templateID)
	if err != nil {
		return nil, "", err
	}
	if !id.IsAdmin() {
		return nil, "", apperr.ErrForbidden
	}
	return tpl, companyID, nil
}

// record loads a record the caller may read, with its template.
func (s *Service) record(ctx context.Context, id models.Identity, recordID string) (*models.Record, *models.Template, string, error) {
	rec, err := s.db.GetRecord(ctx, recordID)
	if err != nil {
		return nil, nil, "", err
	}
	tpl, companyID, err := s.template(ctx, id, rec.TemplateID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("record %s: %w", recordID, apperr.ErrNotFound)
	}
	return rec, tpl, companyID, nil
}

// withSession runs fn on the caller's form state and saves it when fn
// returns nil. Calls for one session are serialised.
func (s *Service) withSession(ctx context.Context, sessionID string, fn func(st *form.State) error) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", apperr.ErrInvalid)
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	st, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.sessions.Save(ctx, sessionID, st)
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// sessionLocks is a keyed mutex; entries are dropped when unused.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	sl, ok := l.m[key]
	if !ok {
		sl = &sessionLock{}
		l.m[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
