package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fiche/internal/crmservice"
)

func formRef(r *http.Request, recordID string) crmservice.FormRef {
	return crmservice.FormRef{
		SessionID:  r.Header.Get(HeaderSessionID),
		TemplateID: chi.URLParam(r, "id"),
		RecordID:   recordID,
	}
}

// RenderForm handles GET /api/templates/{id}/form.
//
//	@Summary		Render the form for a new or existing record
//	@Tags			forms
//	@Produce		json
//	@Param			id				path		string	true	"Template id"
//	@Param			record_id		query		string	false	"Record being edited"
//	@Param			X-Session-ID	header		string	true	"Form session"
//	@Success		200				{object}	form.Form
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/form [get]
func (h *Handler) RenderForm(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.RenderForm(r.Context(), identity(r), formRef(r, r.URL.Query().Get("record_id")))
	if err != nil {
		writeError(w, r, "render form", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// SetValue handles POST /api/templates/{id}/form/value.
//
//	@Summary		Write one widget value
//	@Tags			forms
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string			true	"Template id"
//	@Param			X-Session-ID	header		string			true	"Form session"
//	@Param			body			body		SetValueRequest	true	"Widget value"
//	@Success		200				{object}	form.Form
//	@Failure		400				{object}	errResponse
//	@Failure		409				{object}	errResponse	"Stale widget key"
//	@Security		BearerAuth
//	@Router			/templates/{id}/form/value [post]
func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	var req SetValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.svc.SetValue(r.Context(), identity(r), formRef(r, req.RecordID), req.Key, req.Value)
	if err != nil {
		writeError(w, r, "set value", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// SetCopyMain handles POST /api/templates/{id}/form/copy.
//
//	@Summary		Toggle copying the main address into a work-address field
//	@Tags			forms
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string			true	"Template id"
//	@Param			X-Session-ID	header		string			true	"Form session"
//	@Param			body			body		CopyMainRequest	true	"Toggle"
//	@Success		200				{object}	form.Form
//	@Security		BearerAuth
//	@Router			/templates/{id}/form/copy [post]
func (h *Handler) SetCopyMain(w http.ResponseWriter, r *http.Request) {
	var req CopyMainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.svc.SetCopyMain(r.Context(), identity(r), formRef(r, req.RecordID), req.Key, req.On)
	if err != nil {
		writeError(w, r, "set copy main", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Autofill handles POST /api/templates/{id}/form/autofill.
//
//	@Summary		Pre-fill company fields from the business registry
//	@Tags			forms
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string			true	"Template id"
//	@Param			X-Session-ID	header		string			true	"Form session"
//	@Param			body			body		AutofillRequest	true	"Identifier"
//	@Success		200				{object}	crmservice.AutofillResult
//	@Security		BearerAuth
//	@Router			/templates/{id}/form/autofill [post]
func (h *Handler) Autofill(w http.ResponseWriter, r *http.Request) {
	var req AutofillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Autofill(r.Context(), identity(r), formRef(r, req.RecordID), req.Identifier)
	if err != nil {
		writeError(w, r, "autofill", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Submit handles POST /api/templates/{id}/form/submit.
//
//	@Summary		Validate and save the form
//	@Tags			forms
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string		true	"Template id"
//	@Param			X-Session-ID	header		string		true	"Form session"
//	@Param			body			body		FormRequest	false	"Record being edited"
//	@Success		201				{object}	crmservice.SubmitResult	"Record created"
//	@Success		200				{object}	crmservice.SubmitResult	"Record updated"
//	@Failure		422				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/form/submit [post]
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req FormRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Submit(r.Context(), identity(r), formRef(r, req.RecordID))
	if err != nil {
		writeError(w, r, "submit", err)
		return
	}
	status := http.StatusOK
	if req.RecordID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// ResetForm handles POST /api/templates/{id}/form/reset.
//
//	@Summary		Discard the form's unsaved state
//	@Tags			forms
//	@Accept			json
//	@Param			id				path	string		true	"Template id"
//	@Param			X-Session-ID	header	string		true	"Form session"
//	@Param			body			body	FormRequest	false	"Record being edited"
//	@Success		204				"Form reset"
//	@Security		BearerAuth
//	@Router			/templates/{id}/form/reset [post]
func (h *Handler) ResetForm(w http.ResponseWriter, r *http.Request) {
	var req FormRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ResetForm(r.Context(), identity(r), formRef(r, req.RecordID)); err != nil {
		writeError(w, r, "reset form", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
