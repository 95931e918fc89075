package models

import (
	"fmt"
	"strings"
)

//go:generate go tool stringer -type=FieldType

// FieldType is the closed set of input kinds a template field can take.
type FieldType int

const (
	ShortText FieldType = iota
	LongText
	Number
	Date
	Checkbox
	FileList
	CompanyID
	Address
	WorkAddress
	SectionHeader
)

const fieldTypeCount = int(SectionHeader) + 1

// wireNames are the persisted names; they must stay stable for stored templates.
var wireNames = [fieldTypeCount]string{
	ShortText:     "short_text",
	LongText:      "long_text",
	Number:        "number",
	Date:          "date",
	Checkbox:      "checkbox",
	FileList:      "file_list",
	CompanyID:     "company_id",
	Address:       "address",
	WorkAddress:   "work_address",
	SectionHeader: "section_header",
}

// legacyLabels maps the UI labels older templates were saved with.
var legacyLabels = map[string]FieldType{
	"texte court":     ShortText,
	"texte":           ShortText,
	"texte long":      LongText,
	"nombre":          Number,
	"date":            Date,
	"case à cocher":   Checkbox,
	"fichier":         FileList,
	"fichier/photo":   FileList,
	"siret":           CompanyID,
	"siren":           CompanyID,
	"adresse":         Address,
	"adresse travaux": WorkAddress,
	"séparateur":      SectionHeader,
	"section":         SectionHeader,
}

// AllFieldTypes returns every declared field type in declaration order.
func AllFieldTypes() []FieldType {
	out := make([]FieldType, 0, fieldTypeCount)
	for t := FieldType(0); int(t) < fieldTypeCount; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is one of the declared field types.
func (t FieldType) Valid() bool {
	return t >= 0 && int(t) < fieldTypeCount
}

// WireName returns the persisted name of t.
func (t FieldType) WireName() string {
	if !t.Valid() {
		return ""
	}
	return wireNames[t]
}

// HasValue reports whether fields of this type bind a value in record data.
func (t FieldType) HasValue() bool {
	return t != SectionHeader
}

// ParseFieldType accepts a wire name or a legacy label (case-insensitive).
func ParseFieldType(s string) (FieldType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for t, name := range wireNames {
		if name == key {
			return FieldType(t), nil
		}
	}
	if t, ok := legacyLabels[key]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("models: unknown field type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t FieldType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("models: invalid field type %d", int(t))
	}
	return []byte(wireNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FieldType) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
