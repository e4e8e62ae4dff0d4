package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Top-level field names the engine treats specially.
const (
	FieldSummaries      = "summaries"
	FieldStacExtensions = "stac_extensions"
	FieldTemporalExtent = "temporal_extent"
	FieldStartDate      = "startdate"
	FieldEndDate        = "enddate"
	FieldRenders        = "renders"
	FieldSampleFiles    = "sample_files"
	FieldStacVersion    = "stac_version"
	FieldTenant         = "tenant"
)

// Document is one ingest record as decoded JSON. Nested objects are plain
// map[string]any so they can be handed to schema validators unchanged.
type Document map[string]any

// Decode parses data as a JSON object.
func Decode(data []byte) (Document, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must be a JSON object")
	}
	return Document(obj), nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	return Document(DeepCopy(map[string]any(d)).(map[string]any))
}

// Keys returns the top-level keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present, even with a null value.
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the top-level value under key when it is a string.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Without returns a copy of the document lacking the given keys.
func (d Document) Without(keys ...string) Document {
	out := d.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Canonical returns the RFC 8785 canonical JSON encoding of the document.
func (d Document) Canonical() ([]byte, error) {
	return CanonicalJSON(map[string]any(d.orEmpty()))
}

// Fingerprint returns a sha256 hex digest of the canonical encoding.
func (d Document) Fingerprint() (string, error) {
	data, err := d.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalIndent renders the document the way it is committed: 2-space indent.
func (d Document) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(map[string]any(d.orEmpty()), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (d Document) orEmpty() Document {
	if d == nil {
		return Document{}
	}
	return d
}

// Equal reports whether two documents have the same canonical encoding.
func Equal(a, b Document) bool {
	ca, errA := a.Canonical()
	cb, errB := b.Canonical()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// ValueEqual compares two arbitrary JSON values canonically.
func ValueEqual(a, b any) bool {
	ca, errA := CanonicalJSON(a)
	cb, errB := CanonicalJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// CanonicalJSON marshals v and canonicalizes the result.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// DeepCopy copies a decoded JSON value. Named document maps are flattened
// to map[string]any.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case Document:
		return DeepCopy(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = DeepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = DeepCopy(child)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return v
	}
}
