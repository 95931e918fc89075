package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Data is the free-form key/value bag of a record. Values are JSON-compatible:
// string, float64, bool, or a list of URLs.
type Data map[string]any

// Clone returns a shallow copy; URL lists are copied so callers can append safely.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		if urls, ok := v.([]string); ok {
			v = append([]string(nil), urls...)
		}
		out[k] = v
	}
	return out
}

// IsEmpty reports whether v counts as absent. Numeric zero is present.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

// AsString renders a scalar value as text.
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// AsBool interprets stored checkbox values, including the string forms older
// records were saved with.
func AsBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "oui", "yes", "on":
			return true
		}
		return false
	case float64:
		return x != 0
	default:
		return false
	}
}

// AsURLs returns the URL list held by a file field value. A single string is
// treated as a one-element list; JSON-decoded []any is converted.
func AsURLs(v any) []string {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}

// MergeURLs appends added to existing, skipping duplicates, preserving order.
func MergeURLs(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, u := range list {
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
