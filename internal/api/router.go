package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/fiche/internal/crmservice"
	"github.com/starford/fiche/internal/sse"
)

// RouterConfig controls authentication and request limits.
type RouterConfig struct {
	AuthEnabled    bool
	Token          string
	MaxUploadBytes int64
}

// NewRouter creates a chi router with all API routes mounted. It is meant to
// be mounted under /api. events may be nil, in which case /events is absent.
func NewRouter(svc *crmservice.Service, events *sse.Broker, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, events, cfg.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
	r.Use(IdentityMiddleware)

	// Catalog.
	r.Get("/companies", h.ListCompanies)
	r.Post("/companies", h.CreateCompany)
	r.Get("/activities", h.ListActivities)
	r.Post("/activities", h.CreateActivity)
	r.Delete("/activities/{id}", h.DeleteActivity)

	// Templates.
	r.Get("/templates", h.ListTemplates)
	r.Post("/templates", h.CreateTemplate)
	r.Route("/templates/{id}", func(r chi.Router) {
		r.Get("/", h.GetTemplate)
		r.Patch("/", h.RenameTemplate)
		r.Delete("/", h.DeleteTemplate)
		r.Post("/fields", h.EditFields)
		r.Post("/migrate-key", h.MigrateKey)

		r.Get("/records", h.ListRecords)
		r.Post("/records", h.CreateRecord)

		// Form session, addressed by X-Session-ID.
		r.Get("/form", h.RenderForm)
		r.Post("/form/value", h.SetValue)
		r.Post("/form/copy", h.SetCopyMain)
		r.Post("/form/upload", h.Upload)
		r.Post("/form/autofill", h.Autofill)
		r.Post("/form/submit", h.Submit)
		r.Post("/form/reset", h.ResetForm)
	})

	// Records.
	r.Get("/records/{id}", h.GetRecord)
	r.Delete("/records/{id}", h.DeleteRecord)
	r.Get("/records/{id}/export", h.ExportRecord)
	r.Get("/search", h.Search)

	r.Get("/lookup/{identifier}", h.Lookup)
	r.Get("/stats", h.Stats)
	r.Get("/files/*", h.ServeFile)

	if events != nil {
		r.Get("/events", h.Events)
	}

	return r
}
