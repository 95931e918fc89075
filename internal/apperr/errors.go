// Package apperr holds the error kinds shared across service boundaries.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalid        = errors.New("invalid")
	ErrFieldCollision = errors.New("field name collision")
	ErrExportBlocked  = errors.New("export blocked")
	ErrLookupFailed   = errors.New("lookup failed")
	ErrUploadFailed   = errors.New("upload failed")
	ErrMergeFailed    = errors.New("merge failed")
)

// Violation is one failed constraint on a submitted field.
type Violation struct {
	Field    string `json:"field"`
	Position int    `json:"position"`
	Message  string `json:"message"`
}

// ValidationError aborts a submission. It matches ErrInvalid.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		names[i] = v.Field
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// ExportBlockedError lists the file fields that must be filled before export.
// It matches ErrExportBlocked.
type ExportBlockedError struct {
	Fields []string
}

func (e *ExportBlockedError) Error() string {
	return fmt.Sprintf("export blocked: missing documents for %s", strings.Join(e.Fields, ", "))
}

func (e *ExportBlockedError) Is(target error) bool {
	return target == ErrExportBlocked
}
