// Package normalize prepares a document for submission: null containers
// become empty containers and temporal extent dates take their canonical form.
package normalize

import (
	"regexp"

	"stacingest/domain/ingest"
)

// Kind is the container type a schema declares for a field
type Kind string

const (
	KindScalar Kind = ""
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// Shape describes which fields of a document are containers. Props holds
// object members; Items describes array elements.
type Shape struct {
	Kind  Kind
	Props map[string]*Shape
	Items *Shape
}

// Prop returns the shape of an object member, or nil when undeclared
func (s *Shape) Prop(name string) *Shape {
	if s == nil || s.Props == nil {
		return nil
	}
	return s.Props[name]
}

var dateTimePattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?)(Z|z|[+-]\d{2}(?::?\d{2})?)?$`)

// Normalize returns a normalized copy of doc. The input is not modified and
// Normalize(Normalize(d)) equals Normalize(d).
func Normalize(doc ingest.Document, shape *Shape) ingest.Document {
	out, _ := value(map[string]any(doc), shape).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}

	if extent, ok := out[ingest.FieldTemporalExtent].(map[string]any); ok {
		for _, field := range []string{ingest.FieldStartDate, ingest.FieldEndDate} {
			extent[field] = date(extent[field])
		}
	}
	return ingest.Document(out)
}

func value(v any, shape *Shape) any {
	if v == nil {
		switch {
		case shape == nil:
			return nil
		case shape.Kind == KindArray:
			return []any{}
		case shape.Kind == KindObject:
			return map[string]any{}
		default:
			return nil
		}
	}

	switch t := v.(type) {
	case ingest.Document:
		return value(map[string]any(t), shape)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = value(child, shape.Prop(k))
		}
		return out
	case []any:
		var items *Shape
		if shape != nil {
			items = shape.Items
		}
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = value(child, items)
		}
		return out
	default:
		return ingest.DeepCopy(v)
	}
}

// empty string and missing dates become null; other non-strings are left
// for the validator to report
func date(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return CanonicalDateTime(t)
	default:
		return v
	}
}

// CanonicalDateTime rewrites a space date/time separator to T and a bare
// or colon-less numeric offset to +HH:MM. Anything else is returned as is.
func CanonicalDateTime(s string) string {
	m := dateTimePattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	zone := m[3]
	if len(zone) > 1 {
		hours, minutes := zone[:3], "00"
		if rest := zone[3:]; rest != "" {
			if rest[0] == ':' {
				rest = rest[1:]
			}
			minutes = rest
		}
		zone = hours + ":" + minutes
	}
	return m[1] + "T" + m[2] + zone
}
