// Package reconcile holds the working document of an editing session and
// keeps the form, raw JSON and summaries views consistent with it.
package reconcile

import (
	"errors"
	"fmt"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/domain/summary"
	"stacingest/internal/extension"
	"stacingest/internal/normalize"
	"stacingest/internal/summaries"
	"stacingest/internal/validation"
)

// ErrSummariesInRaw rejects raw documents that try to carry summaries
var ErrSummariesInRaw = errors.New("summaries are edited in the summaries editor, not in raw JSON")

// Validator is the part of validation.Validator the engine needs
type Validator interface {
	Validate(doc ingest.Document, opts validation.Options) validation.Result
	BaseFields(typ ingest.IngestionType) []string
	ContainerFields(typ ingest.IngestionType) *normalize.Shape
}

// Options configures a new Engine. BaseFields defaults to the validator's
// base schema properties.
type Options struct {
	Type       ingest.IngestionType
	BaseFields []string
	Validator  Validator
	Strict     bool
	Registry   *extension.Registry
	Summaries  *summaries.Store
}

// Engine owns the working document. The document never holds the
// summaries key; summaries live in the store and are merged on demand.
// Engine is not safe for concurrent use.
type Engine struct {
	typ       ingest.IngestionType
	base      map[string]bool
	validator Validator
	strict    bool

	doc      ingest.Document
	store    *summaries.Store
	registry *extension.Registry

	editing  bool
	identity string
}

// New creates an engine with an empty working document
func New(opts Options) (*Engine, error) {
	if !opts.Type.Valid() {
		return nil, fmt.Errorf("unknown ingestion type %q", opts.Type)
	}
	if opts.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	fields := opts.BaseFields
	if fields == nil {
		fields = opts.Validator.BaseFields(opts.Type)
	}
	base := make(map[string]bool, len(fields))
	for _, f := range fields {
		base[f] = true
	}
	if opts.Registry == nil {
		opts.Registry = extension.NewRegistry()
	}
	if opts.Summaries == nil {
		opts.Summaries = summaries.NewStore()
	}
	return &Engine{
		typ:       opts.Type,
		base:      base,
		validator: opts.Validator,
		strict:    opts.Strict,
		doc:       ingest.Document{},
		store:     opts.Summaries,
		registry:  opts.Registry,
	}, nil
}

func (e *Engine) Type() ingest.IngestionType           { return e.typ }
func (e *Engine) Strict() bool                         { return e.strict }
func (e *Engine) SetStrict(strict bool)                { e.strict = strict }
func (e *Engine) Registry() *extension.Registry        { return e.registry }
func (e *Engine) Summaries() *summaries.Store          { return e.store }
func (e *Engine) Mode() validation.Mode                { return validation.ModeFor(e.strict) }
func (e *Engine) EditMode() (identity string, ok bool) { return e.identity, e.editing }

// Load replaces the working document with an existing record and enters
// edit mode, capturing the identity value. Summaries move into the store.
func (e *Engine) Load(doc ingest.Document) error {
	identity, ok := e.typ.Identity(doc)
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrMissingIdentity, e.typ.IdentityField())
	}
	e.doc = e.store.Load(doc)
	e.editing = true
	e.identity = identity
	return nil
}

// Reset discards the working document, summaries, extensions and edit mode
func (e *Engine) Reset() {
	e.doc = ingest.Document{}
	e.store.Clear()
	e.registry.Reset()
	e.editing = false
	e.identity = ""
}

// ApplyFormChange merges a shallow update from the schema form. Only base
// keys are taken; summaries and keys hidden from the form are ignored. In
// edit mode a change to the identity field rejects the whole update.
func (e *Engine) ApplyFormChange(partial ingest.Document) error {
	accepted := make(map[string]any, len(partial))
	for key, value := range partial {
		if key == ingest.FieldSummaries || !e.base[key] {
			continue
		}
		if err := e.checkIdentityValue(key, value); err != nil {
			return err
		}
		accepted[key] = value
	}
	for key, value := range accepted {
		e.doc[key] = ingest.DeepCopy(value)
	}
	return nil
}

// ApplyExtensionChange merges an update from the section of the extension
// at url. Keys the extension does not declare are ignored.
func (e *Engine) ApplyExtensionChange(url string, partial ingest.Document) error {
	d, ok := e.registry.Get(url)
	if !ok {
		return core.NewNotFoundError("extension", url)
	}
	for key, value := range partial {
		if d.Declares(key) && !e.base[key] {
			e.doc[key] = ingest.DeepCopy(value)
		}
	}
	return nil
}

// ApplyAdditionalChange replaces the additional bucket wholesale: additional
// keys missing from next are deleted, keys that would classify as base or
// extension are ignored.
func (e *Engine) ApplyAdditionalChange(next ingest.Document) {
	current := e.Classify()
	for _, key := range current.Additional {
		if _, keep := next[key]; !keep {
			delete(e.doc, key)
		}
	}
	for key, value := range next {
		if key == ingest.FieldSummaries || e.base[key] || len(e.registry.FieldOwners(key)) > 0 {
			continue
		}
		e.doc[key] = ingest.DeepCopy(value)
	}
}

// ApplyRawJSONChange replaces the working document with full. The change is
// all or nothing: an identity mismatch in edit mode or a structural schema
// error leaves the working document untouched. Semantic errors are returned
// in the result without rejecting the change.
func (e *Engine) ApplyRawJSONChange(full ingest.Document) (validation.Result, error) {
	if full.Has(ingest.FieldSummaries) {
		return validation.Result{}, ErrSummariesInRaw
	}
	if e.editing {
		identity, ok := e.typ.Identity(full)
		if !ok || identity != e.identity {
			return validation.Result{}, fmt.Errorf("%w: %q must stay %q", core.ErrIdentityChanged, e.typ.IdentityField(), e.identity)
		}
	}

	candidate := full.Clone()
	res := e.ValidateDocument(e.store.Merge(candidate))
	if res.Structural() {
		return res, res.Err()
	}
	e.doc = candidate
	return res, nil
}

// ApplySummariesChange replaces the summaries mapping wholesale
func (e *Engine) ApplySummariesChange(entries map[string]summary.Value) {
	e.store.Replace(entries)
}

// AddSummary adds one entry; duplicate and empty keys are rejected
func (e *Engine) AddSummary(key string, value summary.Value) error {
	return e.store.Add(key, value)
}

// RemoveSummary removes one entry
func (e *Engine) RemoveSummary(key string) bool {
	return e.store.Remove(key)
}

// AddExtension loads d and records its URL in stac_extensions. Values
// already in the document are never changed; keys d declares simply
// classify as extension from now on.
func (e *Engine) AddExtension(d extension.Descriptor) error {
	list, err := extensionList(e.doc[ingest.FieldStacExtensions])
	if err != nil {
		return err
	}
	if err := e.registry.Add(d); err != nil {
		return err
	}
	for _, u := range list {
		if u == d.URL {
			e.doc[ingest.FieldStacExtensions] = list
			return nil
		}
	}
	e.doc[ingest.FieldStacExtensions] = append(list, d.URL)
	return nil
}

// extensionList copies a stac_extensions value into a fresh []any. A single
// URL string and []string are accepted as well.
func extensionList(v any) ([]any, error) {
	switch list := v.(type) {
	case nil:
		return []any{}, nil
	case string:
		return []any{list}, nil
	case []string:
		out := make([]any, len(list))
		for i, u := range list {
			out[i] = u
		}
		return out, nil
	case []any:
		for _, u := range list {
			if _, ok := u.(string); !ok {
				return nil, fmt.Errorf("%w: %s must list URL strings, got %T", core.ErrInvalidDocument, ingest.FieldStacExtensions, u)
			}
		}
		return append([]any(nil), list...), nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of URLs, got %T", core.ErrInvalidDocument, ingest.FieldStacExtensions, v)
	}
}

// RemoveExtension unloads url and drops it from stac_extensions. Keys it
// declared stay in the document and classify as additional unless another
// loaded extension declares them.
func (e *Engine) RemoveExtension(url string) bool {
	if !e.registry.Remove(url) {
		return false
	}
	if v, present := e.doc[ingest.FieldStacExtensions]; present {
		if list, err := extensionList(v); err == nil {
			kept := make([]any, 0, len(list))
			for _, u := range list {
				if u != url {
					kept = append(kept, u)
				}
			}
			e.doc[ingest.FieldStacExtensions] = kept
		}
	}
	return true
}

// Classify recomputes the classification of the current document
func (e *Engine) Classify() Classification {
	keys := e.doc.Keys()
	if e.store.Len() > 0 {
		keys = append(keys, ingest.FieldSummaries)
	}
	return Classify(keys, e.base, e.registry)
}

// FormView is what the schema form shows: base keys without summaries
func (e *Engine) FormView() ingest.Document {
	return e.pick(e.Classify().Base)
}

// RawView is everything but summaries
func (e *Engine) RawView() ingest.Document {
	return e.doc.Clone()
}

// AdditionalView holds the keys no schema declares
func (e *Engine) AdditionalView() ingest.Document {
	return e.pick(e.Classify().Additional)
}

// ExtensionView holds the keys owned by the extension at url
func (e *Engine) ExtensionView(url string) ingest.Document {
	return e.pick(e.Classify().ByExtension()[url])
}

// Document is the working document with summaries merged in
func (e *Engine) Document() ingest.Document {
	return e.store.Merge(e.doc)
}

// SubmissionDocument is Document after normalization
func (e *Engine) SubmissionDocument() ingest.Document {
	return normalize.Normalize(e.Document(), e.validator.ContainerFields(e.typ))
}

// Validate checks the merged document in the current mode
func (e *Engine) Validate() validation.Result {
	return e.ValidateDocument(e.Document())
}

// ValidateDocument checks doc with the engine's type, mode and extensions
func (e *Engine) ValidateDocument(doc ingest.Document) validation.Result {
	return e.validator.Validate(doc, validation.Options{
		Type:            e.typ,
		Mode:            e.Mode(),
		ExtensionFields: e.registry.FieldNames(),
	})
}

func (e *Engine) checkIdentityValue(key string, value any) error {
	if !e.editing || key != e.typ.IdentityField() {
		return nil
	}
	if s, ok := value.(string); ok && s == e.identity {
		return nil
	}
	return fmt.Errorf("%w: %q must stay %q", core.ErrIdentityChanged, key, e.identity)
}

func (e *Engine) pick(keys []string) ingest.Document {
	out := make(ingest.Document, len(keys))
	for _, k := range keys {
		if v, ok := e.doc[k]; ok {
			out[k] = ingest.DeepCopy(v)
		}
	}
	return out
}

// Snapshot is the persistable state of an engine
type Snapshot struct {
	Document   ingest.Document
	Summaries  map[string]any
	Extensions []extension.Descriptor
	Strict     bool
	Identity   string
	Editing    bool
}

// Snapshot captures the current state
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Document:   e.doc.Clone(),
		Summaries:  e.store.Mapping(),
		Extensions: e.registry.List(),
		Strict:     e.strict,
		Identity:   e.identity,
		Editing:    e.editing,
	}
}

// Restore replaces the engine state with s without validating it
func (e *Engine) Restore(s Snapshot) error {
	e.Reset()
	for _, d := range s.Extensions {
		if err := e.registry.Add(d); err != nil {
			return err
		}
	}
	e.doc = s.Document.Without(ingest.FieldSummaries)
	e.store.Replace(summary.FromMapping(s.Summaries))
	e.strict = s.Strict
	e.editing = s.Editing
	e.identity = s.Identity
	return nil
}
