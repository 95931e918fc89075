// Package reconcile edits a template's field list. Every operation returns a
// new slice and never touches stored records: removed fields leave orphaned
// keys behind and renamed fields start from an empty key.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

// Kind names a field-list operation.
type Kind string

const (
	KindAppend   Kind = "append"
	KindRemove   Kind = "remove"
	KindReorder  Kind = "reorder"
	KindSetFlags Kind = "set_flags"
	KindRename   Kind = "rename"
	KindRetype   Kind = "retype"
	KindReplace  Kind = "replace"
)

// Op is one requested edit. Only the members relevant to Kind are read.
type Op struct {
	Kind              Kind              `json:"kind"`
	Field             *models.Field     `json:"field,omitempty"`
	Fields            []models.Field    `json:"fields,omitempty"`
	Names             []string          `json:"names,omitempty"`
	Order             []int             `json:"order,omitempty"`
	Position          int               `json:"position"`
	Name              string            `json:"name,omitempty"`
	Type              *models.FieldType `json:"type,omitempty"`
	Required          *bool             `json:"required,omitempty"`
	RequiredForExport *bool             `json:"required_for_export,omitempty"`
}

// Notice reports a side effect on existing records the caller should surface.
type Notice struct {
	OrphanedKey string `json:"orphaned_key"`
	NewKey      string `json:"new_key"`
}

// Result is the outcome of Apply.
type Result struct {
	Fields []models.Field
	Notice *Notice
}

// Apply dispatches op against fields.
func Apply(fields []models.Field, op Op) (Result, error) {
	var (
		out []models.Field
		n   *Notice
		err error
	)
	switch op.Kind {
	case KindAppend:
		if op.Field == nil {
			return Result{}, fmt.Errorf("%w: append needs a field", apperr.ErrInvalid)
		}
		out, err = Append(fields, *op.Field)
	case KindRemove:
		out, err = Remove(fields, op.Names...)
	case KindReorder:
		out, err = Reorder(fields, op.Order)
	case KindSetFlags:
		out, err = SetFlags(fields, op.Position, op.Required, op.RequiredForExport)
	case KindRename:
		out, n, err = Rename(fields, op.Position, op.Name)
	case KindRetype:
		if op.Type == nil {
			return Result{}, fmt.Errorf("%w: retype needs a type", apperr.ErrInvalid)
		}
		out, err = Retype(fields, op.Position, *op.Type)
	case KindReplace:
		out, err = Replace(op.Fields)
	default:
		return Result{}, fmt.Errorf("%w: unknown operation %q", apperr.ErrInvalid, op.Kind)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Fields: out, Notice: n}, nil
}

// Append adds f at the end of the list.
func Append(fields []models.Field, f models.Field) ([]models.Field, error) {
	f, err := clean(f)
	if err != nil {
		return nil, err
	}
	if err := checkCollision(fields, -1, f); err != nil {
		return nil, err
	}
	out := make([]models.Field, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, f), nil
}

// Remove drops every field whose name is in names.
func Remove(fields []models.Field, names ...string) ([]models.Field, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no field names to remove", apperr.ErrInvalid)
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make([]models.Field, 0, len(fields))
	for _, f := range fields {
		if _, ok := drop[f.Name]; ok {
			continue
		}
		out = append(out, f)
	}
	if len(out) == len(fields) {
		return nil, fmt.Errorf("%w: no field named %s", apperr.ErrNotFound, strings.Join(names, ", "))
	}
	return out, nil
}

// Reorder returns fields rearranged so that position i holds fields[order[i]].
// order must be a permutation of the current positions.
func Reorder(fields []models.Field, order []int) ([]models.Field, error) {
	if len(order) != len(fields) {
		return nil, fmt.Errorf("%w: order has %d positions, template has %d fields", apperr.ErrInvalid, len(order), len(fields))
	}
	used := make([]bool, len(fields))
	out := make([]models.Field, len(fields))
	for i, from := range order {
		if from < 0 || from >= len(fields) || used[from] {
			return nil, fmt.Errorf("%w: order is not a permutation", apperr.ErrInvalid)
		}
		used[from] = true
		out[i] = fields[from]
	}
	return out, nil
}

// SetFlags changes required and/or required-for-export on one field.
func SetFlags(fields []models.Field, pos int, required, requiredForExport *bool) ([]models.Field, error) {
	if err := checkPosition(fields, pos); err != nil {
		return nil, err
	}
	out := copyFields(fields)
	f := &out[pos]
	if required != nil {
		f.Required = *required
	}
	if requiredForExport != nil {
		if *requiredForExport && f.Type != models.FileList {
			return nil, fmt.Errorf("%w: required_for_export only applies to file lists", apperr.ErrInvalid)
		}
		f.RequiredForExport = *requiredForExport
	}
	return out, nil
}

// Rename changes a field's name. Existing records keep their value under the
// old key, which the returned notice names.
func Rename(fields []models.Field, pos int, name string) ([]models.Field, *Notice, error) {
	if err := checkPosition(fields, pos); err != nil {
		return nil, nil, err
	}
	renamed := fields[pos]
	old := renamed.Name
	renamed.Name = name
	renamed, err := clean(renamed)
	if err != nil {
		return nil, nil, err
	}
	if renamed.Name == old {
		return copyFields(fields), nil, nil
	}
	if err := checkCollision(fields, pos, renamed); err != nil {
		return nil, nil, err
	}
	out := copyFields(fields)
	out[pos] = renamed
	var n *Notice
	if renamed.Type.HasValue() {
		n = &Notice{OrphanedKey: old, NewKey: renamed.Name}
	}
	return out, n, nil
}

// Retype changes a field's type. Stored values are kept and reinterpreted on
// the next render.
func Retype(fields []models.Field, pos int, t models.FieldType) ([]models.Field, error) {
	if err := checkPosition(fields, pos); err != nil {
		return nil, err
	}
	retyped := fields[pos]
	retyped.Type = t
	retyped, err := clean(retyped)
	if err != nil {
		return nil, err
	}
	if err := checkCollision(fields, pos, retyped); err != nil {
		return nil, err
	}
	out := copyFields(fields)
	out[pos] = retyped
	return out, nil
}

// Replace validates a whole new field list. It is the last-write-wins
// overwrite used by bulk edits and seed files.
func Replace(fields []models.Field) ([]models.Field, error) {
	out := make([]models.Field, 0, len(fields))
	for _, f := range fields {
		cf, err := clean(f)
		if err != nil {
			return nil, err
		}
		if err := checkCollision(out, -1, cf); err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, nil
}

// clean trims the name, checks the type and drops flags that do not apply.
func clean(f models.Field) (models.Field, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Section = strings.TrimSpace(f.Section)
	if f.Name == "" {
		return f, fmt.Errorf("%w: field name is required", apperr.ErrInvalid)
	}
	if !f.Type.Valid() {
		return f, fmt.Errorf("%w: field %q has an unknown type", apperr.ErrInvalid, f.Name)
	}
	if f.Type == models.SectionHeader {
		f.Required = false
	}
	if f.Type != models.FileList {
		f.RequiredForExport = false
	}
	return f, nil
}

// checkCollision rejects f when another value-bearing field (other than the
// one at skip) already uses its name with a different type. Same-name,
// same-type duplicates are allowed; they bind by position.
func checkCollision(fields []models.Field, skip int, f models.Field) error {
	if !f.Type.HasValue() {
		return nil
	}
	for i, other := range fields {
		if i == skip || !other.Type.HasValue() {
			continue
		}
		if other.Name == f.Name && other.Type != f.Type {
			return fmt.Errorf("%w: %q is already a %s field", apperr.ErrFieldCollision, f.Name, other.Type.WireName())
		}
	}
	return nil
}

func checkPosition(fields []models.Field, pos int) error {
	if pos < 0 || pos >= len(fields) {
		return fmt.Errorf("%w: no field at position %d", apperr.ErrNotFound, pos)
	}
	return nil
}

func copyFields(fields []models.Field) []models.Field {
	return append([]models.Field(nil), fields...)
}
