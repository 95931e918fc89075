package api

import (
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/store"
)

// CreateCompanyRequest is the request body for registering a tenant.
type CreateCompanyRequest struct {
	Name string `json:"name" example:"Acme" validate:"required"`
}

// CreateActivityRequest is the request body for creating an activity.
// CompanyID defaults to the caller's company.
type CreateActivityRequest struct {
	CompanyID string `json:"company_id,omitempty"`
	Name      string `json:"name" example:"Photovoltaïque" validate:"required"`
}

// CreateTemplateRequest is the request body for creating a template.
type CreateTemplateRequest struct {
	ActivityID string         `json:"activity_id" validate:"required"`
	Name       string         `json:"name" example:"Visite technique" validate:"required"`
	Fields     []models.Field `json:"fields"`
}

// RenameTemplateRequest is the request body for renaming a template.
type RenameTemplateRequest struct {
	Name string `json:"name" example:"Visite technique v2" validate:"required"`
}

// MigrateKeyRequest is the request body for copying values between keys.
type MigrateKeyRequest struct {
	From string `json:"from" example:"Ville" validate:"required"`
	To   string `json:"to" example:"Commune" validate:"required"`
}

// MigrateKeyResponse reports how many records were changed.
type MigrateKeyResponse struct {
	Migrated int `json:"migrated" example:"12"`
}

// SetValueRequest writes one widget value.
type SetValueRequest struct {
	RecordID string `json:"record_id,omitempty"`
	Key      string `json:"key" example:"tpl/0/Nom/g0" validate:"required"`
	Value    any    `json:"value"`
}

// CopyMainRequest toggles copying the main address into a work-address widget.
type CopyMainRequest struct {
	RecordID string `json:"record_id,omitempty"`
	Key      string `json:"key" validate:"required"`
	On       bool   `json:"on"`
}

// FormRequest addresses a form without further input (submit, reset).
type FormRequest struct {
	RecordID string `json:"record_id,omitempty"`
}

// AutofillRequest asks for a registry lookup on a company identifier.
type AutofillRequest struct {
	RecordID   string `json:"record_id,omitempty"`
	Identifier string `json:"identifier" example:"404 833 048 00022" validate:"required"`
}

// CreateRecordRequest stores raw field values as a new record.
type CreateRecordRequest struct {
	Data models.Data `json:"data" validate:"required"`
}

// RecordListResponse wraps paginated record listings.
type RecordListResponse struct {
	Records []models.Record `json:"records" validate:"required"`
	Total   int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}
