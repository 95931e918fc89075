package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/fiche/internal/models"
)

// Source tells where a widget's displayed value came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceRecord   Source = "record"
	SourceState    Source = "state"
	SourceAutofill Source = "autofill"
	SourceMain     Source = "main_address"

	// SourceUnreadable marks a stored value whose shape does not fit the
	// field's current type, typically after a retype. The widget shows it
	// empty and submission leaves the stored value alone.
	SourceUnreadable Source = "unreadable"
)

// Widget is one rendered field. Section headers render as a layout break with
// no key and no value.
type Widget struct {
	Key               string           `json:"key,omitempty"`
	Position          int              `json:"position"`
	Name              string           `json:"name"`
	Type              models.FieldType `json:"type"`
	Section           string           `json:"section,omitempty"`
	Required          bool             `json:"required,omitempty"`
	RequiredForExport bool             `json:"required_for_export,omitempty"`
	Break             bool             `json:"break,omitempty"`
	Value             any              `json:"value,omitempty"`
	Source            Source           `json:"source,omitempty"`
	ReadOnly          bool             `json:"read_only,omitempty"`
	CopyMain          bool             `json:"copy_main,omitempty"`
	MainAddress       string           `json:"main_address,omitempty"`
	Attached          []string         `json:"attached,omitempty"`
	Uploads           []string         `json:"uploads,omitempty"`
}

// Form is the result of one rendering pass.
type Form struct {
	TemplateID string   `json:"template_id"`
	RecordID   string   `json:"record_id,omitempty"`
	Generation uint64   `json:"generation"`
	Widgets    []Widget `json:"widgets"`
}

// binding is how a field type takes part in rendering.
type binding int

const (
	bindScalar binding = iota
	bindBool
	bindFiles
	bindMainAddress
	bindWorkAddress
	bindBreak
)

// bindingOf is exhaustive over models.FieldType; an undeclared type panics
// rather than falling back to a text input.
func bindingOf(t models.FieldType) binding {
	switch t {
	case models.ShortText, models.LongText, models.Number, models.Date, models.CompanyID:
		return bindScalar
	case models.Checkbox:
		return bindBool
	case models.FileList:
		return bindFiles
	case models.Address:
		return bindMainAddress
	case models.WorkAddress:
		return bindWorkAddress
	case models.SectionHeader:
		return bindBreak
	}
	panic(fmt.Sprintf("form: unhandled field type %v", t))
}

var workSiteWords = []string{"travaux", "chantier", "installation"}

// isAddressLike reports whether a short text field acts as the main address
// for following work-address fields.
func isAddressLike(f models.Field) bool {
	if f.Type != models.ShortText {
		return false
	}
	name := strings.ToLower(f.Name)
	if !strings.Contains(name, "adresse") && !strings.Contains(name, "address") {
		return false
	}
	for _, w := range workSiteWords {
		if strings.Contains(name, w) {
			return false
		}
	}
	return true
}

// Render walks tpl's fields once, in order, and produces one widget per
// field. rec may be nil for a new record. Record values are read afresh on
// every pass; only user writes live in the widget state. Pending auto-fill
// values are consumed and kept as if the user had typed them.
func Render(st *State, tpl *models.Template, rec *models.Record) Form {
	recordID := ""
	var data models.Data
	if rec != nil {
		recordID = rec.ID
		data = rec.Data
	}
	sc := st.scope(tpl.ID, recordID)
	pending := sc.Pending
	sc.Pending = nil

	out := Form{
		TemplateID: tpl.ID,
		RecordID:   recordID,
		Generation: sc.Generation,
		Widgets:    make([]Widget, 0, len(tpl.Fields)),
	}

	// mainAddress is the fold accumulator: the latest main address seen so far.
	mainAddress := ""

	for pos, f := range tpl.Fields {
		w := Widget{
			Position:          pos,
			Name:              f.Name,
			Type:              f.Type,
			Section:           f.Section,
			Required:          f.IsRequired(),
			RequiredForExport: f.BlocksExport(),
		}
		b := bindingOf(f.Type)
		if b == bindBreak {
			w.Break = true
			out.Widgets = append(out.Widgets, w)
			continue
		}

		k := Key{TemplateID: tpl.ID, Position: pos, FieldName: f.Name, Generation: sc.Generation}
		ks := k.String()
		w.Key = ks
		stored, hasStored := data[f.Name]

		switch b {
		case bindScalar, bindMainAddress:
			w.Value, w.Source = seedScalar(sc, ks, f, pending, stored, hasStored)
			if b == bindMainAddress || isAddressLike(f) {
				mainAddress = models.AsString(w.Value)
			}

		case bindBool:
			if v, ok := sc.Values[ks]; ok {
				w.Value, w.Source = models.AsBool(v), SourceState
			} else if hasStored && !isScalar(stored) {
				w.Value, w.Source = false, SourceUnreadable
			} else if hasStored {
				w.Value, w.Source = models.AsBool(stored), SourceRecord
			} else {
				w.Value, w.Source = false, SourceDefault
			}

		case bindFiles:
			w.Attached = models.AsURLs(stored)
			w.Uploads = append([]string(nil), sc.Uploads[ks]...)

		case bindWorkAddress:
			w.MainAddress = mainAddress
			if sc.CopyMain[ks] {
				w.CopyMain = true
				w.ReadOnly = true
				w.Value, w.Source = mainAddress, SourceMain
				sc.Values[ks] = w.Value
			} else {
				w.Value, w.Source = seedScalar(sc, ks, f, pending, stored, hasStored)
			}
		}

		out.Widgets = append(out.Widgets, w)
	}
	return out
}

// seedScalar applies the seed priority: pending auto-fill, then the value
// already held by the widget, then the stored record value, then empty.
// A consumed auto-fill value is written into the widget state.
func seedScalar(sc *Scope, ks string, f models.Field, pending map[string]any, stored any, hasStored bool) (any, Source) {
	if v, ok := pending[f.Name]; ok {
		sc.Values[ks] = normalize(f.Type, v)
		return sc.Values[ks], SourceAutofill
	}
	if v, ok := sc.Values[ks]; ok {
		return normalize(f.Type, v), SourceState
	}
	if hasStored && !isScalar(stored) {
		return emptyValue(f.Type), SourceUnreadable
	}
	if hasStored {
		return normalize(f.Type, stored), SourceRecord
	}
	return emptyValue(f.Type), SourceDefault
}

// isScalar reports whether a stored value can seed a single-value widget.
func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, int, int64:
		return true
	}
	return false
}

func emptyValue(t models.FieldType) any {
	switch bindingOf(t) {
	case bindBool:
		return false
	case bindFiles, bindBreak:
		return nil
	}
	if t == models.Number {
		return nil
	}
	return ""
}

// normalize coerces an incoming value to the shape stored for type t.
// Unparseable numbers are kept as text so the validator can report them.
func normalize(t models.FieldType, v any) any {
	switch bindingOf(t) {
	case bindBool:
		return models.AsBool(v)
	case bindFiles:
		return models.AsURLs(v)
	case bindBreak:
		return nil
	}
	if t == models.Number {
		switch x := v.(type) {
		case nil:
			return nil
		case float64:
			return x
		case int:
			return float64(x)
		case int64:
			return float64(x)
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(x, ",", "."))
			if s == "" {
				return nil
			}
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return n
			}
			return x
		}
	}
	if v == nil {
		return ""
	}
	return models.AsString(v)
}
