// Package validation checks ingest documents against the base schema for
// their ingestion type plus the semantic rules declarative schemas miss.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/internal"
	"stacingest/internal/normalize"
)

// Mode selects whether undeclared top-level properties are violations
type Mode string

const (
	Strict     Mode = "strict"
	Permissive Mode = "permissive"
)

// ParseMode accepts "strict" or "permissive"; empty means permissive
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Strict:
		return Strict, nil
	case Permissive, "":
		return Permissive, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q", s)
	}
}

// ModeFor maps the strict-schema toggle to a mode
func ModeFor(strict bool) Mode {
	if strict {
		return Strict
	}
	return Permissive
}

// ErrorKind tells callers which rule produced a FieldError
type ErrorKind string

const (
	KindSchema     ErrorKind = "schema"
	KindAdditional ErrorKind = "additional"
	KindRequired   ErrorKind = "required"
	KindJSONParse  ErrorKind = "json_parse"
	KindJSONShape  ErrorKind = "json_shape"
	KindDateType   ErrorKind = "date_type"
	KindDateFormat ErrorKind = "date_format"
	KindDateOrder  ErrorKind = "date_order"
	KindSummary    ErrorKind = "summary"
	KindVersion    ErrorKind = "version"
)

// FieldError is one problem addressed by a dot-joined document path
type FieldError struct {
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

// Result collects every error found in one pass plus the top-level keys
// neither the base schema nor a loaded extension declares.
type Result struct {
	Errors     []FieldError `json:"errors"`
	Additional []string     `json:"additional"`
}

// Valid reports whether no errors were found
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Structural reports whether any error came from the schema itself rather
// than a semantic rule
func (r Result) Structural() bool {
	for _, e := range r.Errors {
		switch e.Kind {
		case KindSchema, KindAdditional, KindRequired:
			return true
		}
	}
	return false
}

// ErrorsAt returns the errors addressed to path
func (r Result) ErrorsAt(path string) []FieldError {
	var out []FieldError
	for _, e := range r.Errors {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}

// Err wraps the first error as core.ErrInvalidDocument, or returns nil
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	first := r.Errors[0]
	if first.Path == "" {
		return fmt.Errorf("%w: %s", core.ErrInvalidDocument, first.Message)
	}
	return fmt.Errorf("%w: %s: %s", core.ErrInvalidDocument, first.Path, first.Message)
}

// Options selects the schema a document is checked against
type Options struct {
	Type            ingest.IngestionType
	Mode            Mode
	ExtensionFields []string
}

const (
	msgAdditional = "Additional property is not allowed in strict mode."
	msgRequired   = "This field is required."
	schemaBaseURL = "https://stacingest.local/schemas/"
)

var printer = message.NewPrinter(language.English)

// Validator compiles base schemas on demand and caches them per ingestion
// type, mode and extension field set.
type Validator struct {
	mu       sync.Mutex
	base     map[ingest.IngestionType]*baseSchema
	compiled map[string]*jsonschema.Schema
	logger   *internal.Logger
}

// New loads the embedded base schemas
func New(logger *internal.Logger) (*Validator, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	base, err := loadBaseSchemas()
	if err != nil {
		return nil, fmt.Errorf("load base schemas: %w", err)
	}
	return &Validator{
		base:     base,
		compiled: make(map[string]*jsonschema.Schema),
		logger:   logger,
	}, nil
}

// BaseFields returns the top-level property names of the base schema
func (v *Validator) BaseFields(typ ingest.IngestionType) []string {
	b, ok := v.base[typ]
	if !ok {
		return nil
	}
	out := make([]string, len(b.props))
	copy(out, b.props)
	return out
}

// ContainerFields returns the container shape of the base schema, for the
// normalizer
func (v *Validator) ContainerFields(typ ingest.IngestionType) *normalize.Shape {
	if b, ok := v.base[typ]; ok {
		return b.shape
	}
	return nil
}

// Validate runs the schema and every semantic rule; it never stops at the
// first error.
func (v *Validator) Validate(doc ingest.Document, opts Options) Result {
	var res Result

	b, ok := v.base[opts.Type]
	if !ok {
		res.Errors = append(res.Errors, FieldError{
			Message: fmt.Sprintf("unknown ingestion type %q", opts.Type),
			Kind:    KindSchema,
		})
		return res
	}
	if opts.Mode == "" {
		opts.Mode = Permissive
	}

	res.Additional = additionalKeys(doc, b.props, opts.ExtensionFields)

	sch, err := v.schemaFor(opts, b)
	if err != nil {
		v.logger.Error("[Validator] compile %s/%s schema: %v", opts.Type, opts.Mode, err)
		res.Errors = append(res.Errors, FieldError{Message: err.Error(), Kind: KindSchema})
	} else if err := sch.Validate(map[string]any(doc.Clone())); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			flatten(ve, &res.Errors)
		} else {
			res.Errors = append(res.Errors, FieldError{Message: err.Error(), Kind: KindSchema})
		}
	}

	res.Errors = append(res.Errors, semanticErrors(doc)...)
	res.Errors = dedupe(res.Errors)
	return res
}

func (v *Validator) schemaFor(opts Options, b *baseSchema) (*jsonschema.Schema, error) {
	fields := make([]string, 0, len(opts.ExtensionFields))
	seen := make(map[string]bool, len(opts.ExtensionFields))
	for _, f := range opts.ExtensionFields {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	key := string(opts.Type) + "|" + string(opts.Mode)
	if opts.Mode == Strict {
		key += "|" + strings.Join(fields, ",")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[key]; ok {
		return sch, nil
	}

	root := ingest.DeepCopy(b.doc).(map[string]any)
	delete(root, "$id")
	props, _ := root["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
		root["properties"] = props
	}
	if opts.Mode == Strict {
		for _, f := range fields {
			if _, declared := props[f]; !declared {
				props[f] = true
			}
		}
		root["additionalProperties"] = false
	} else {
		root["additionalProperties"] = true
	}

	url := fmt.Sprintf("%s%s-%s.json", schemaBaseURL, opts.Type, opts.Mode)
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(url, root); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.logger.Debug("[Validator] compiled %s (%d extension fields)", key, len(fields))
	v.compiled[key] = sch
	return sch, nil
}

func additionalKeys(doc ingest.Document, base, extension []string) []string {
	declared := make(map[string]bool, len(base)+len(extension))
	for _, f := range base {
		declared[f] = true
	}
	for _, f := range extension {
		declared[f] = true
	}
	out := []string{}
	for _, k := range doc.Keys() {
		if !declared[k] {
			out = append(out, k)
		}
	}
	return out
}

// flatten reports only leaf errors; grouping nodes carry no message of their own
func flatten(ve *jsonschema.ValidationError, out *[]FieldError) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			flatten(cause, out)
		}
		return
	}

	switch k := ve.ErrorKind.(type) {
	case *kind.AdditionalProperties:
		for _, prop := range k.Properties {
			*out = append(*out, FieldError{Path: joinPath(ve.InstanceLocation, prop), Message: msgAdditional, Kind: KindAdditional})
		}
	case *kind.Required:
		for _, missing := range k.Missing {
			*out = append(*out, FieldError{Path: joinPath(ve.InstanceLocation, missing), Message: msgRequired, Kind: KindRequired})
		}
	default:
		*out = append(*out, FieldError{
			Path:    joinPath(ve.InstanceLocation),
			Message: ve.ErrorKind.LocalizedString(printer),
			Kind:    KindSchema,
		})
	}
}

func joinPath(location []string, extra ...string) string {
	parts := make([]string, 0, len(location)+len(extra))
	parts = append(parts, location...)
	parts = append(parts, extra...)
	return strings.Join(parts, ".")
}

func dedupe(errs []FieldError) []FieldError {
	seen := make(map[FieldError]bool, len(errs))
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
