// Package session ties one editing session together: the reconciliation
// engine, its extension registry and summaries, and the submission state
// machine. HTTP requests against one session are serialized here.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/domain/summary"
	"stacingest/internal"
	apperrors "stacingest/internal/errors"
	"stacingest/internal/extension"
	"stacingest/internal/reconcile"
	"stacingest/internal/submission"
	"stacingest/internal/summaries"
	"stacingest/internal/validation"
	"stacingest/ports"
)

// Resolver resolves extension schema URLs
type Resolver interface {
	Resolve(ctx context.Context, url string) (extension.Descriptor, error)
}

// ExtensionView is a loaded extension together with the values it owns
type ExtensionView struct {
	extension.Descriptor
	Values ingest.Document `json:"values"`
}

// View is everything a client needs to render the session
type View struct {
	ID             core.SessionID           `json:"id"`
	Type           ingest.IngestionType     `json:"type"`
	Strict         bool                     `json:"strict"`
	State          submission.State         `json:"state"`
	Submission     submission.Status        `json:"submission"`
	Form           ingest.Document          `json:"form"`
	Raw            ingest.Document          `json:"raw"`
	Additional     ingest.Document          `json:"additional"`
	Extensions     []ExtensionView          `json:"extensions"`
	Pending        []string                 `json:"pending"`
	Summaries      []summaries.Entry        `json:"summaries"`
	Classification reconcile.Classification `json:"classification"`
	Validation     validation.Result        `json:"validation"`
	UpdatedAt      core.Timestamp           `json:"updatedAt"`
}

// Session is one editing session. All methods are safe for concurrent use;
// collaborator calls run without holding the session lock.
type Session struct {
	mu        sync.Mutex
	id        core.SessionID
	owner     string
	engine    *reconcile.Engine
	orch      *submission.Orchestrator
	resolver  Resolver
	logger    *internal.Logger
	updatedAt core.Timestamp
}

func (s *Session) ID() core.SessionID            { return s.id }
func (s *Session) Owner() string                 { return s.owner }
func (s *Session) Type() ingest.IngestionType    { return s.engine.Type() }
func (s *Session) Submission() submission.Status { return s.orch.Status() }

// View renders the current state
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	e := s.engine
	status := s.orch.Status()

	exts := []ExtensionView{}
	for _, d := range e.Registry().List() {
		exts = append(exts, ExtensionView{Descriptor: d, Values: e.ExtensionView(d.URL)})
	}

	return View{
		ID:             s.id,
		Type:           e.Type(),
		Strict:         e.Strict(),
		State:          status.State,
		Submission:     status,
		Form:           e.FormView(),
		Raw:            e.RawView(),
		Additional:     e.AdditionalView(),
		Extensions:     exts,
		Pending:        e.Registry().Pending(),
		Summaries:      e.Summaries().List(),
		Classification: e.Classify(),
		Validation:     e.Validate(),
		UpdatedAt:      s.updatedAt,
	}
}

// Validate checks the working document in the current mode
func (s *Session) Validate() validation.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Validate()
}

// ApplyForm merges a form update
func (s *Session) ApplyForm(partial ingest.Document) error {
	return s.mutate(func(e *reconcile.Engine) error { return e.ApplyFormChange(partial) })
}

// ApplyExtensionValues merges an update from one extension's section
func (s *Session) ApplyExtensionValues(url string, partial ingest.Document) error {
	return s.mutate(func(e *reconcile.Engine) error { return e.ApplyExtensionChange(url, partial) })
}

// ApplyAdditional replaces the additional properties bucket
func (s *Session) ApplyAdditional(next ingest.Document) error {
	return s.mutate(func(e *reconcile.Engine) error {
		e.ApplyAdditionalChange(next)
		return nil
	})
}

// ApplyRaw replaces the working document from the raw JSON editor
func (s *Session) ApplyRaw(full ingest.Document) (validation.Result, error) {
	var res validation.Result
	err := s.mutate(func(e *reconcile.Engine) error {
		var err error
		res, err = e.ApplyRawJSONChange(full)
		return err
	})
	return res, err
}

// ReplaceSummaries swaps the whole summaries mapping
func (s *Session) ReplaceSummaries(entries map[string]summary.Value) error {
	return s.mutate(func(e *reconcile.Engine) error {
		e.ApplySummariesChange(entries)
		return nil
	})
}

// AddSummary adds one entry. An empty key takes the next free
// "new-summary" key. It returns the key used.
func (s *Session) AddSummary(key string, value summary.Value) (string, error) {
	err := s.mutate(func(e *reconcile.Engine) error {
		if strings.TrimSpace(key) == "" {
			key = e.Summaries().SuggestKey(summaries.DefaultKey)
		}
		return e.AddSummary(key, value)
	})
	return key, err
}

// RemoveSummary removes one entry
func (s *Session) RemoveSummary(key string) error {
	return s.mutate(func(e *reconcile.Engine) error {
		if !e.RemoveSummary(key) {
			return core.NewNotFoundError("summary", key)
		}
		return nil
	})
}

// SetStrict toggles strict schema mode
func (s *Session) SetStrict(strict bool) {
	_ = s.mutate(func(e *reconcile.Engine) error {
		e.SetStrict(strict)
		return nil
	})
}

// AddExtension resolves url and loads it. The resolution runs outside the
// lock; if the session was cleared or the extension removed meanwhile the
// result is dropped with core.ErrStaleOperation.
func (s *Session) AddExtension(ctx context.Context, url string) (extension.Descriptor, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return extension.Descriptor{}, apperrors.InvalidInput("extension url is required")
	}

	s.mu.Lock()
	registry := s.engine.Registry()
	if registry.Has(url) {
		s.mu.Unlock()
		s.logger.Info("[Session] %s: extension %s already added", s.id, url)
		return extension.Descriptor{}, fmt.Errorf("%w: %s", core.ErrAlreadyAdded, url)
	}
	if !registry.BeginPending(url) {
		s.mu.Unlock()
		return extension.Descriptor{}, fmt.Errorf("%w: %s is still resolving", core.ErrAlreadyAdded, url)
	}
	s.mu.Unlock()

	d, err := s.resolver.Resolve(ctx, url)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.engine.Registry().EndPending(url) {
		s.logger.Debug("[Session] %s: dropping late result for %s", s.id, url)
		return extension.Descriptor{}, core.ErrStaleOperation
	}
	if err != nil {
		return extension.Descriptor{}, err
	}
	if err := s.engine.AddExtension(d); err != nil {
		return extension.Descriptor{}, err
	}
	s.updatedAt = core.Now()
	return d, nil
}

// RemoveExtension unloads url, or abandons its pending resolution
func (s *Session) RemoveExtension(url string) error {
	return s.mutate(func(e *reconcile.Engine) error {
		if e.Registry().EndPending(url) {
			return nil
		}
		if !e.RemoveExtension(url) {
			return core.NewNotFoundError("extension", url)
		}
		return nil
	})
}

// LoadExisting pulls the record behind ref into the session for editing and
// then loads the extensions it lists. Extensions that fail to resolve are
// logged and skipped.
func (s *Session) LoadExisting(ctx context.Context, ref string) error {
	retrieved, err := s.orch.LoadExisting(ctx, ref)
	if err != nil {
		return err
	}

	if err := s.mutate(func(e *reconcile.Engine) error {
		e.Reset()
		return e.Load(retrieved.Content)
	}); err != nil {
		s.orch.Abort()
		return err
	}

	for _, url := range extensionURLs(retrieved.Content) {
		if _, err := s.AddExtension(ctx, url); err != nil {
			s.logger.Warn("[Session] %s: extension %s not loaded: %v", s.id, url, err)
		}
	}
	return nil
}

// Submit stages the normalized, merged document and starts the submission.
// A document missing its identity field or failing validation is not
// staged; the validation result is returned either way.
func (s *Session) Submit(ctx context.Context) (submission.Status, validation.Result, error) {
	s.mu.Lock()
	doc := s.engine.SubmissionDocument()
	res := s.engine.ValidateDocument(doc)
	typ := s.engine.Type()
	s.mu.Unlock()

	if _, ok := typ.Identity(doc); !ok {
		return s.orch.Status(), res, fmt.Errorf("%w: %q", core.ErrMissingIdentity, typ.IdentityField())
	}
	if !res.Valid() {
		return s.orch.Status(), res, res.Err()
	}
	st, err := s.orch.Submit(ctx, doc)
	return st, res, err
}

// ContinueAnyway accepts a failed sample file check
func (s *Session) ContinueAnyway() (submission.Status, error) {
	return s.orch.ContinueAnyway()
}

// Cancel leaves the submission flow without submitting
func (s *Session) Cancel() (submission.Status, error) {
	return s.orch.Cancel()
}

// Confirm sends the staged document, with comment when given
func (s *Session) Confirm(ctx context.Context, comment *string) (submission.Status, error) {
	if comment != nil {
		if err := s.orch.SetComment(*comment); err != nil {
			return s.orch.Status(), err
		}
	}
	return s.orch.Confirm(ctx)
}

// Reset acknowledges a finished submission
func (s *Session) Reset() (submission.Status, error) {
	return s.orch.Reset()
}

// Clear starts over: submission aborted, document, summaries and
// extensions discarded, pending resolutions abandoned
func (s *Session) Clear() {
	s.orch.Abort()
	_ = s.mutate(func(e *reconcile.Engine) error {
		e.Reset()
		return nil
	})
}

// Record snapshots the session for persistence
func (s *Session) Record() *ports.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.engine.Snapshot()

	rec := &ports.SessionRecord{
		ID:            s.id,
		Owner:         s.owner,
		IngestionType: s.engine.Type(),
		Document:      snap.Document,
		Summaries:     snap.Summaries,
		Extensions:    make([]ports.ExtensionRecord, 0, len(snap.Extensions)),
		Strict:        snap.Strict,
		Edit:          s.orch.Edit(),
		State:         string(s.orch.State()),
		UpdatedAt:     s.updatedAt,
	}
	for _, d := range snap.Extensions {
		rec.Extensions = append(rec.Extensions, toExtensionRecord(d))
	}
	return rec
}

func (s *Session) mutate(fn func(e *reconcile.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.engine); err != nil {
		return err
	}
	s.updatedAt = core.Now()
	return nil
}

func extensionURLs(doc ingest.Document) []string {
	list, _ := doc[ingest.FieldStacExtensions].([]any)
	var out []string
	for _, v := range list {
		if u, ok := v.(string); ok && strings.TrimSpace(u) != "" {
			out = append(out, u)
		}
	}
	return out
}

func toExtensionRecord(d extension.Descriptor) ports.ExtensionRecord {
	rec := ports.ExtensionRecord{URL: d.URL, Title: d.Title, Fields: make([]ports.ExtensionFieldRecord, len(d.Fields))}
	for i, f := range d.Fields {
		rec.Fields[i] = ports.ExtensionFieldRecord{Name: f.Name, Required: f.Required}
	}
	return rec
}

func fromExtensionRecord(rec ports.ExtensionRecord) extension.Descriptor {
	d := extension.Descriptor{URL: rec.URL, Title: rec.Title, Fields: make([]extension.Field, len(rec.Fields))}
	for i, f := range rec.Fields {
		d.Fields[i] = extension.Field{Name: f.Name, Required: f.Required}
	}
	return d
}
