// Package summary models STAC summaries entries: a numeric range, a discrete
// set of values, or a raw JSON Schema fragment.
package summary

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags which variant a Value holds.
type Kind string

const (
	KindRange      Kind = "range"
	KindSet        Kind = "set"
	KindJSONSchema Kind = "jsonschema"
)

func (k Kind) Valid() bool {
	return k == KindRange || k == KindSet || k == KindJSONSchema
}

// Value is one summaries entry.
type Value struct {
	Kind    Kind
	Minimum float64
	Maximum float64
	Values  []string
	// Raw is the fragment for KindJSONSchema: an object, or a string holding
	// JSON text when the author typed it as text, or any other JSON value
	// read from an existing document.
	Raw any
}

// Range builds a numeric range entry.
func Range(minimum, maximum float64) Value {
	return Value{Kind: KindRange, Minimum: minimum, Maximum: maximum}
}

// Set builds a discrete value set entry.
func Set(values ...string) Value {
	out := make([]string, len(values))
	copy(out, values)
	return Value{Kind: KindSet, Values: out}
}

// Fragment builds a JSON Schema fragment entry.
func Fragment(raw any) Value {
	return Value{Kind: KindJSONSchema, Raw: raw}
}

// ToRaw renders the entry the way it is stored in a document.
func (v Value) ToRaw() any {
	switch v.Kind {
	case KindRange:
		return map[string]any{"minimum": v.Minimum, "maximum": v.Maximum}
	case KindSet:
		out := make([]any, len(v.Values))
		for i, s := range v.Values {
			out[i] = s
		}
		return out
	default:
		return copyRaw(v.Raw)
	}
}

// Infer classifies a stored value for display: strings are fragments,
// arrays are sets, objects with a minimum key are ranges, and anything else
// is a fragment.
func Infer(raw any) Kind {
	switch t := raw.(type) {
	case string:
		return KindJSONSchema
	case []any:
		return KindSet
	case map[string]any:
		if _, ok := t["minimum"]; ok {
			return KindRange
		}
	}
	return KindJSONSchema
}

// FromRaw converts a stored value back into an entry. Values whose inferred
// kind cannot hold them losslessly (a set with non-string members, a range
// object carrying extra keys) stay fragments so they survive merge/extract.
func FromRaw(raw any) Value {
	switch Infer(raw) {
	case KindSet:
		items := raw.([]any)
		values := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return Fragment(copyRaw(raw))
			}
			values = append(values, s)
		}
		return Value{Kind: KindSet, Values: values}
	case KindRange:
		obj := raw.(map[string]any)
		minimum, okMin := obj["minimum"].(float64)
		maximum, okMax := obj["maximum"].(float64)
		if okMin && okMax && len(obj) == 2 {
			return Range(minimum, maximum)
		}
		return Fragment(copyRaw(raw))
	default:
		return Fragment(copyRaw(raw))
	}
}

// FromMapping converts a stored summaries object into entries.
func FromMapping(raw map[string]any) map[string]Value {
	out := make(map[string]Value, len(raw))
	for k, v := range raw {
		out[k] = FromRaw(v)
	}
	return out
}

// ToMapping renders entries as a stored summaries object.
func ToMapping(entries map[string]Value) map[string]any {
	out := make(map[string]any, len(entries))
	for k, v := range entries {
		out[k] = v.ToRaw()
	}
	return out
}

// SortedKeys returns the keys of entries in lexical order.
func SortedKeys(entries map[string]Value) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type wireValue struct {
	Kind    Kind     `json:"kind"`
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
	Values  []string `json:"values,omitempty"`
	Schema  any      `json:"schema,omitempty"`
}

// MarshalJSON encodes the tagged form used by the HTTP API.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case KindRange:
		w.Minimum, w.Maximum = &v.Minimum, &v.Maximum
	case KindSet:
		w.Values = v.Values
		if w.Values == nil {
			w.Values = []string{}
		}
	default:
		w.Schema = v.Raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged form used by the HTTP API.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindRange:
		if w.Minimum == nil || w.Maximum == nil {
			return fmt.Errorf("range summary needs minimum and maximum")
		}
		*v = Range(*w.Minimum, *w.Maximum)
	case KindSet:
		*v = Set(w.Values...)
	case KindJSONSchema:
		*v = Fragment(w.Schema)
	default:
		return fmt.Errorf("unknown summary kind %q", w.Kind)
	}
	return nil
}

func copyRaw(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = copyRaw(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = copyRaw(child)
		}
		return out
	default:
		return v
	}
}
