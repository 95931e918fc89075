// Package form renders, validates and collects record data through a
// template's field list. All per-user widget state lives in an explicit State
// value that callers load and save around each interaction.
package form

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrStaleKey is returned for a widget key from an earlier generation.
	ErrStaleKey = errors.New("form: stale widget key")
	// ErrUnknownKey is returned when a key no longer matches the template.
	ErrUnknownKey = errors.New("form: unknown widget key")
	// ErrReadOnly is returned when writing a widget that is derived.
	ErrReadOnly = errors.New("form: widget is read-only")
	// ErrWrongType is returned when an operation does not apply to the field type.
	ErrWrongType = errors.New("form: operation not valid for field type")
)

// Key identifies one widget for one rendering generation. Position and name
// are both part of it: two fields may transiently share a name while a
// template is being edited.
type Key struct {
	TemplateID string
	Position   int
	FieldName  string
	Generation uint64
}

// String returns the stable textual form "<template>/<position>/<name>/g<generation>".
func (k Key) String() string {
	return k.TemplateID + "/" + strconv.Itoa(k.Position) + "/" + url.PathEscape(k.FieldName) + "/g" + strconv.FormatUint(k.Generation, 10)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 || parts[0] == "" || !strings.HasPrefix(parts[3], "g") {
		return Key{}, fmt.Errorf("%w: malformed %q", ErrUnknownKey, s)
	}
	pos, err := strconv.Atoi(parts[1])
	if err != nil || pos < 0 {
		return Key{}, fmt.Errorf("%w: bad position in %q", ErrUnknownKey, s)
	}
	name, err := url.PathUnescape(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("%w: bad name in %q", ErrUnknownKey, s)
	}
	gen, err := strconv.ParseUint(parts[3][1:], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("%w: bad generation in %q", ErrUnknownKey, s)
	}
	return Key{TemplateID: parts[0], Position: pos, FieldName: name, Generation: gen}, nil
}
