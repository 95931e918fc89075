package api

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fiche/internal/crmservice"
)

const defaultMaxUpload = 50 << 20 // 50 MB

// Upload handles POST /api/templates/{id}/form/upload (multipart/form-data:
// "key", optional "record_id", one or more "file" parts).
//
//	@Summary		Attach files to a file-list widget
//	@Tags			forms
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id				path		string	true	"Template id"
//	@Param			X-Session-ID	header		string	true	"Form session"
//	@Param			key				formData	string	true	"Widget key"
//	@Param			record_id		formData	string	false	"Record being edited"
//	@Param			file			formData	file	true	"File"
//	@Success		200				{object}	form.Form
//	@Failure		400				{object}	errResponse
//	@Failure		502				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/form/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}

	uploads := make([]crmservice.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
			return
		}
		uploads = append(uploads, crmservice.Upload{Name: fh.Filename, Data: data})
	}

	ref := formRef(r, r.FormValue("record_id"))
	form, err := h.svc.Upload(r.Context(), identity(r), ref, r.FormValue("key"), uploads...)
	if err != nil {
		writeError(w, r, "upload", err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// ServeFile handles GET /api/files/*.
//
//	@Summary		Download a stored file
//	@Tags			files
//	@Param			path	path	string	true	"File path"
//	@Success		200		{file}	binary
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	p, err := url.PathUnescape(raw)
	if err != nil || p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, err := h.svc.ReadFile(r.Context(), identity(r), p)
	if err != nil {
		writeError(w, r, "serve file", err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(p)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
