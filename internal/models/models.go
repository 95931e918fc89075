// Package models defines the domain types for Fiche.
package models

import "time"

// Field describes one input slot of a template. Name is the record data key
// and is only unique within a template.
type Field struct {
	Name              string    `json:"name" yaml:"name"`
	Type              FieldType `json:"type" yaml:"type"`
	Required          bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Section           string    `json:"section,omitempty" yaml:"section,omitempty"`
	RequiredForExport bool      `json:"required_for_export,omitempty" yaml:"required_for_export,omitempty"`
}

// IsRequired reports whether the field must be filled before a record is saved.
// Section headers never are, regardless of the stored flag.
func (f Field) IsRequired() bool {
	return f.Required && f.Type.HasValue()
}

// BlocksExport reports whether an empty value must stop a document export.
func (f Field) BlocksExport() bool {
	return f.RequiredForExport && f.Type == FileList
}

// Template is an ordered schema of fields describing one kind of record.
type Template struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ActivityID string    `json:"activity_id"`
	Fields     []Field   `json:"fields"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Activity groups templates under one business line of a company.
type Activity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CompanyID string    `json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Company is a tenant.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is one stored instance of data for a template. Data may hold keys for
// fields that no longer exist and may lack keys for fields added later.
type Record struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"collection_id"`
	Data       Data      `json:"data"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Roles.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Identity is the resolved caller of one request.
type Identity struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

// IsAdmin reports whether the caller may edit templates and activities.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin || id.Role == RoleSuperAdmin
}

// CanAccess reports whether the caller may see data owned by companyID.
func (id Identity) CanAccess(companyID string) bool {
	return id.Role == RoleSuperAdmin || (id.CompanyID != "" && id.CompanyID == companyID)
}

// CompanyInfo is what a business-registry lookup returns for an identifier.
type CompanyInfo struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	TaxID      string `json:"tax_id"`
}
