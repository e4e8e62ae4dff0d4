// Package extension resolves STAC extension schemas into field descriptors
// and keeps the set of extensions loaded into an editing session.
package extension

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrFetch    = errors.New("extension schema fetch failed")
	ErrParse    = errors.New("extension schema is not a JSON schema object")
	ErrNoFields = errors.New("extension schema declares no fields")
)

// Schema paths read from an extension document
const (
	pathTitle    = "title"
	pathFields   = "definitions.fields.properties"
	pathRequired = "definitions.require_field.required"
)

// Field is one top-level property declared by an extension
type Field struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Descriptor is a resolved extension
type Descriptor struct {
	URL    string  `json:"url"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// FieldNames returns the declared names in declaration order
func (d Descriptor) FieldNames() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// Declares reports whether the extension declares name
func (d Descriptor) Declares(name string) bool {
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Parse builds a descriptor from a fetched schema body. Fields keep the
// order they are declared in; the title falls back to the URL.
func Parse(url string, body []byte) (Descriptor, error) {
	if !gjson.ValidBytes(body) {
		return Descriptor{}, fmt.Errorf("%w: %s: invalid JSON", ErrParse, url)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return Descriptor{}, fmt.Errorf("%w: %s: top level is %s", ErrParse, url, doc.Type)
	}

	title := strings.TrimSpace(doc.Get(pathTitle).String())
	if title == "" {
		title = url
	}

	required := map[string]bool{}
	for _, name := range doc.Get(pathRequired).Array() {
		if name.Type == gjson.String {
			required[name.String()] = true
		}
	}

	d := Descriptor{URL: url, Title: title}
	props := doc.Get(pathFields)
	if props.IsObject() {
		props.ForEach(func(key, _ gjson.Result) bool {
			d.Fields = append(d.Fields, Field{Name: key.String(), Required: required[key.String()]})
			return true
		})
	}
	if len(d.Fields) == 0 {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNoFields, url)
	}
	return d, nil
}
