package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fiche/internal/crmservice"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/reconcile"
	"github.com/starford/fiche/internal/sse"
	"github.com/starford/fiche/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc            *crmservice.Service
	events         *sse.Broker
	maxUploadBytes int64
}

// NewHandler creates a new Handler.
func NewHandler(svc *crmservice.Service, events *sse.Broker, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUpload
	}
	return &Handler{svc: svc, events: events, maxUploadBytes: maxUploadBytes}
}

// ListCompanies handles GET /api/companies.
//
//	@Summary		List companies visible to the caller
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{array}	models.Company
//	@Security		BearerAuth
//	@Router			/companies [get]
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListCompanies(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, "list companies", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateCompany handles POST /api/companies.
//
//	@Summary		Register a company (super admin only)
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCompanyRequest	true	"Company"
//	@Success		201		{object}	models.Company
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/companies [post]
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.CreateCompany(r.Context(), identity(r), req.Name)
	if err != nil {
		writeError(w, r, "create company", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListActivities handles GET /api/activities.
//
//	@Summary		List a company's activities
//	@Tags			catalog
//	@Produce		json
//	@Param			company_id	query	string	false	"Company (defaults to the caller's)"
//	@Success		200			{array}	models.Activity
//	@Security		BearerAuth
//	@Router			/activities [get]
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListActivities(r.Context(), identity(r), r.URL.Query().Get("company_id"))
	if err != nil {
		writeError(w, r, "list activities", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateActivity handles POST /api/activities.
//
//	@Summary		Create an activity (admin only)
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateActivityRequest	true	"Activity"
//	@Success		201		{object}	models.Activity
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities [post]
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.svc.CreateActivity(r.Context(), identity(r), req.CompanyID, req.Name)
	if err != nil {
		writeError(w, r, "create activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// DeleteActivity handles DELETE /api/activities/{id}.
//
//	@Summary		Delete an activity and its templates
//	@Tags			catalog
//	@Param			id	path	string	true	"Activity id"
//	@Success		204	"Activity deleted"
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities/{id} [delete]
func (h *Handler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteActivity(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTemplates handles GET /api/templates.
//
//	@Summary		List templates
//	@Tags			templates
//	@Produce		json
//	@Param			company_id	query	string	false	"Filter by company"
//	@Param			activity_id	query	string	false	"Filter by activity"
//	@Success		200			{array}	models.Template
//	@Security		BearerAuth
//	@Router			/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.ListTemplates(r.Context(), identity(r), store.TemplateFilter{
		CompanyID:  q.Get("company_id"),
		ActivityID: q.Get("activity_id"),
	})
	if err != nil {
		writeError(w, r, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateTemplate handles POST /api/templates.
//
//	@Summary		Create a template (admin only)
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTemplateRequest	true	"Template"
//	@Success		201		{object}	models.Template
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates [post]
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tpl, err := h.svc.CreateTemplate(r.Context(), identity(r), req.ActivityID, req.Name, req.Fields)
	if err != nil {
		writeError(w, r, "create template", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(tpl.Version, 10)))
	writeJSON(w, http.StatusCreated, tpl)
}

// GetTemplate handles GET /api/templates/{id}.
//
//	@Summary		Get a template
//	@Tags			templates
//	@Produce		json
//	@Param			id	path		string	true	"Template id"
//	@Success		200	{object}	models.Template
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id} [get]
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.svc.GetTemplate(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get template", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(tpl.Version, 10)))
	writeJSON(w, http.StatusOK, tpl)
}

// RenameTemplate handles PATCH /api/templates/{id}.
//
//	@Summary		Rename a template
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Template id"
//	@Param			If-Match	header		string					false	"Expected template version"
//	@Param			body		body		RenameTemplateRequest	true	"New name"
//	@Success		200			{object}	models.Template
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id} [patch]
func (h *Handler) RenameTemplate(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatch(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("If-Match must be a template version"))
		return
	}
	var req RenameTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tpl, err := h.svc.RenameTemplate(r.Context(), identity(r), chi.URLParam(r, "id"), req.Name, version)
	if err != nil {
		writeError(w, r, "rename template", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(tpl.Version, 10)))
	writeJSON(w, http.StatusOK, tpl)
}

// DeleteTemplate handles DELETE /api/templates/{id}.
//
//	@Summary		Delete a template; its records are kept as orphans
//	@Tags			templates
//	@Param			id	path	string	true	"Template id"
//	@Success		204	"Template deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id} [delete]
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTemplate(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditFields handles POST /api/templates/{id}/fields.
//
//	@Summary		Apply one field-list operation
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string			true	"Template id"
//	@Param			If-Match	header		string			false	"Expected template version"
//	@Param			body		body		reconcile.Op	true	"Operation"
//	@Success		200			{object}	crmservice.FieldEdit
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/fields [post]
func (h *Handler) EditFields(w http.ResponseWriter, r *http.Request) {
	version, ok := ifMatch(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("If-Match must be a template version"))
		return
	}
	var op reconcile.Op
	if !decodeJSON(w, r, &op) {
		return
	}
	edit, err := h.svc.EditFields(r.Context(), identity(r), chi.URLParam(r, "id"), op, version)
	if err != nil {
		writeError(w, r, "edit fields", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(edit.Template.Version, 10)))
	writeJSON(w, http.StatusOK, edit)
}

// MigrateKey handles POST /api/templates/{id}/migrate-key.
//
//	@Summary		Copy record values from an old field key to a new one
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Template id"
//	@Param			body	body		MigrateKeyRequest	true	"Keys"
//	@Success		200		{object}	MigrateKeyResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/migrate-key [post]
func (h *Handler) MigrateKey(w http.ResponseWriter, r *http.Request) {
	var req MigrateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.MigrateKey(r.Context(), identity(r), chi.URLParam(r, "id"), req.From, req.To)
	if err != nil {
		writeError(w, r, "migrate key", err)
		return
	}
	writeJSON(w, http.StatusOK, MigrateKeyResponse{Migrated: n})
}

// ListRecords handles GET /api/templates/{id}/records.
//
//	@Summary		List a template's records
//	@Tags			records
//	@Produce		json
//	@Param			id			path		string	true	"Template id"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			created_by	query		string	false	"Filter by creator"
//	@Success		200			{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	records, total, err := h.svc.ListRecords(r.Context(), identity(r), store.RecordFilter{
		TemplateID: chi.URLParam(r, "id"),
		CreatedBy:  q.Get("created_by"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, "list records", err)
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: records, Total: total})
}

// CreateRecord handles POST /api/templates/{id}/records.
//
//	@Summary		Store raw field values as a new record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Template id"
//	@Param			body	body		CreateRecordRequest	true	"Record data"
//	@Success		201		{object}	models.Record
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.svc.CreateRecord(r.Context(), identity(r), chi.URLParam(r, "id"), req.Data)
	if err != nil {
		writeError(w, r, "create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	models.Record
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetRecord(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/records/{id}.
//
//	@Summary		Delete a record (admin or creator)
//	@Tags			records
//	@Param			id	path	string	true	"Record id"
//	@Success		204	"Record deleted"
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRecord(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportRecord handles GET /api/records/{id}/export.
//
//	@Summary		Merge a record's documents into one PDF
//	@Tags			records
//	@Produce		application/pdf
//	@Param			id	path	string	true	"Record id"
//	@Success		200	{file}	binary
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/export [get]
func (h *Handler) ExportRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pdf, err := h.svc.ExportRecord(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, "export record", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across a template's records
//	@Tags			records
//	@Produce		json
//	@Param			q			query		string	true	"Search query"
//	@Param			template_id	query		string	false	"Template (required unless super admin)"
//	@Param			limit		query		int		false	"Max results"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	results, err := h.svc.SearchRecords(r.Context(), identity(r), q.Get("template_id"), q.Get("q"), limit)
	if err != nil {
		writeError(w, r, "search", err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Lookup handles GET /api/lookup/{identifier}.
//
//	@Summary		Look a company identifier up in the business registry
//	@Tags			registry
//	@Produce		json
//	@Param			identifier	path		string	true	"Company identifier"
//	@Success		200			{object}	models.CompanyInfo
//	@Failure		404			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lookup/{identifier} [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.LookupCompany(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(w, r, "lookup", err)
		return
	}
	if info == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no company found"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Stats handles GET /api/stats.
//
//	@Summary		Catalog and record counts (super admin only)
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	store.Stats
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Events handles GET /api/events. Super admins receive every tenant's events.
//
//	@Summary		Live record and template updates (SSE)
//	@Tags			events
//	@Produce		text/event-stream
//	@Success		200
//	@Security		BearerAuth
//	@Router			/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	company := id.CompanyID
	if id.Role == models.RoleSuperAdmin {
		company = ""
	} else if company == "" {
		writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
		return
	}
	h.events.Stream(w, r, company)
}
