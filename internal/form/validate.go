package form

import (
	"time"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

// DateLayout is the accepted shape of date values.
const DateLayout = time.DateOnly

// Validate returns the violations of sub; an empty result means the
// submission may be persisted. It has no side effects.
func Validate(sub Submission) []apperr.Violation {
	var out []apperr.Violation
	for _, e := range sub.Entries {
		if msg, bad := check(e); bad {
			out = append(out, apperr.Violation{Field: e.Field.Name, Position: e.Position, Message: msg})
		}
	}
	return out
}

func check(e Entry) (string, bool) {
	f := e.Field
	switch bindingOf(f.Type) {
	case bindBreak:
		return "", false
	case bindFiles:
		if f.IsRequired() && len(e.Uploads) == 0 && len(e.Attached) == 0 {
			return "at least one file is required", true
		}
		return "", false
	case bindBool:
		if f.IsRequired() && !models.AsBool(e.Value) {
			return "must be checked", true
		}
		return "", false
	case bindScalar, bindMainAddress, bindWorkAddress:
	}

	if models.IsEmpty(e.Value) {
		if f.IsRequired() {
			return "this field is required", true
		}
		return "", false
	}
	switch f.Type {
	case models.Number:
		if _, ok := e.Value.(float64); !ok {
			return "must be a number", true
		}
	case models.Date:
		if _, err := time.Parse(DateLayout, models.AsString(e.Value)); err != nil {
			return "must be a date (YYYY-MM-DD)", true
		}
	}
	return "", false
}
