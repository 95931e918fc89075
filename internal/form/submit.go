package form

import (
	"github.com/starford/fiche/internal/models"
)

// Entry is the submitted state of one value-bearing field.
type Entry struct {
	Position int          `json:"position"`
	Field    models.Field `json:"field"`
	Value    any          `json:"value,omitempty"`
	// Attached and Uploads are only set for file lists: URLs already on the
	// record and URLs uploaded in this generation.
	Attached []string `json:"attached,omitempty"`
	Uploads  []string `json:"uploads,omitempty"`
	// Keep leaves the stored value untouched: it could not be shown in the
	// field's current type and the user did not replace it.
	Keep bool `json:"keep,omitempty"`
}

// Submission is everything a form would persist, in field order.
type Submission struct {
	TemplateID string  `json:"template_id"`
	RecordID   string  `json:"record_id,omitempty"`
	Generation uint64  `json:"generation"`
	Entries    []Entry `json:"entries"`
}

// Collect renders the form and gathers its values for validation and
// persistence. It shares Render's seeding so what is saved is what was shown.
func Collect(st *State, tpl *models.Template, rec *models.Record) Submission {
	f := Render(st, tpl, rec)
	sub := Submission{
		TemplateID: f.TemplateID,
		RecordID:   f.RecordID,
		Generation: f.Generation,
		Entries:    make([]Entry, 0, len(f.Widgets)),
	}
	for _, w := range f.Widgets {
		if w.Break {
			continue
		}
		e := Entry{Position: w.Position, Field: tpl.Fields[w.Position]}
		if w.Type == models.FileList {
			e.Attached = w.Attached
			e.Uploads = w.Uploads
		} else {
			e.Value = w.Value
			e.Keep = w.Source == SourceUnreadable
		}
		sub.Entries = append(sub.Entries, e)
	}
	return sub
}

// Apply merges sub into a copy of existing record data. Keys the submission
// does not mention, including orphaned ones, are kept. File lists are the
// union of attached and newly uploaded URLs. Kept entries are skipped. When
// two fields share a name the later position wins.
func Apply(existing models.Data, sub Submission) models.Data {
	out := existing.Clone()
	for _, e := range sub.Entries {
		name := e.Field.Name
		if e.Keep {
			continue
		}
		if e.Field.Type == models.FileList {
			out[name] = models.MergeURLs(e.Attached, e.Uploads)
			continue
		}
		if e.Value == nil {
			delete(out, name)
			continue
		}
		out[name] = e.Value
	}
	return out
}

// FromData builds a submission from raw field values, for callers that write
// records without an interactive form. Values are normalised the way widget
// writes are; keys that match no field are left for Apply to ignore.
func FromData(tpl *models.Template, data models.Data) Submission {
	sub := Submission{TemplateID: tpl.ID, Entries: make([]Entry, 0, len(tpl.Fields))}
	for i, f := range tpl.Fields {
		e := Entry{Position: i, Field: f}
		v, ok := data[f.Name]
		switch bindingOf(f.Type) {
		case bindBreak:
			continue
		case bindFiles:
			e.Uploads = models.AsURLs(v)
		case bindBool:
			e.Value = models.AsBool(v)
		case bindScalar, bindMainAddress, bindWorkAddress:
			if ok {
				e.Value = normalize(f.Type, v)
			} else {
				e.Value = emptyValue(f.Type)
			}
		}
		sub.Entries = append(sub.Entries, e)
	}
	return sub
}
