// Package submission sequences an ingest submission: optional COG sample
// check, comment capture, dispatch to the PR service, and the result.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/internal"
	apperrors "stacingest/internal/errors"
	"stacingest/ports"
)

// GenericErrorMessage is shown when a failure carries no usable message
const GenericErrorMessage = "Something went wrong while submitting. Please try again."

// Status is a snapshot of the orchestrator
type Status struct {
	State     State             `json:"state"`
	Staged    ingest.Document   `json:"staged,omitempty"`
	Comment   string            `json:"comment"`
	SampleURL string            `json:"sampleUrl,omitempty"`
	CogError  string            `json:"cogError,omitempty"`
	GithubURL string            `json:"githubUrl,omitempty"`
	Error     string            `json:"error,omitempty"`
	Edit      *ports.EditTarget `json:"edit,omitempty"`
	History   []Transition      `json:"history"`
}

// Deps are the collaborators an orchestrator calls. COG may be nil, in which
// case sample files are not checked.
type Deps struct {
	PR        ports.PRService
	Retrieval ports.IngestRetrieval
	COG       ports.COGValidator
	Logger    *internal.Logger
}

// Orchestrator is the submission state machine of one editing session.
// Collaborator calls run without holding the lock; a result that arrives
// after Abort is discarded.
type Orchestrator struct {
	mu   sync.Mutex
	typ  ingest.IngestionType
	deps Deps

	state      State
	generation uint64
	staged     ingest.Document
	comment    string
	sampleURL  string
	cogError   string
	githubURL  string
	errMsg     string
	edit       *ports.EditTarget
	history    []Transition
}

// New creates an idle orchestrator
func New(typ ingest.IngestionType, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	return &Orchestrator{typ: typ, deps: deps, state: Idle}
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns a snapshot
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

// Edit returns the committed file being edited, if any
func (o *Orchestrator) Edit() *ports.EditTarget {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.edit == nil {
		return nil
	}
	e := *o.edit
	return &e
}

// SetEdit restores edit mode for a persisted session
func (o *Orchestrator) SetEdit(target *ports.EditTarget) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if target == nil {
		o.edit = nil
		return
	}
	e := *target
	o.edit = &e
}

// Submit stages doc and starts the submission. A dataset with a sample file
// is checked first; otherwise the comment step is entered directly.
func (o *Orchestrator) Submit(ctx context.Context, doc ingest.Document) (Status, error) {
	o.mu.Lock()
	if o.state != Idle {
		defer o.mu.Unlock()
		return o.statusLocked(), core.NewTransitionError("submit", string(o.state))
	}
	o.staged = doc.Clone()
	o.comment = ""
	o.cogError = ""
	o.sampleURL = sampleFile(o.typ, o.staged)

	if o.sampleURL == "" || o.deps.COG == nil {
		o.setLocked(CommentCapture, "submit")
		defer o.mu.Unlock()
		return o.statusLocked(), nil
	}

	o.setLocked(ValidatingCog, "submit")
	gen, url := o.generation, o.sampleURL
	o.mu.Unlock()

	valid, err := o.validateCOG(ctx, url)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation || o.state != ValidatingCog {
		return o.statusLocked(), core.ErrStaleOperation
	}
	switch {
	case err != nil:
		o.deps.Logger.Warn("[Submission] COG validation for %s failed: %v", url, err)
		o.cogError = errorMessage(err)
		o.setLocked(CogWarning, "cog-failed")
	case !valid:
		o.cogError = fmt.Sprintf("%s is not a valid Cloud-Optimized GeoTIFF", url)
		o.setLocked(CogWarning, "cog-invalid")
	default:
		o.setLocked(CommentCapture, "cog-valid")
	}
	return o.statusLocked(), nil
}

// ContinueAnyway accepts a failed COG check and moves on to the comment step
func (o *Orchestrator) ContinueAnyway() (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != CogWarning {
		return o.statusLocked(), core.NewTransitionError("continue", string(o.state))
	}
	o.setLocked(CommentCapture, "continue")
	return o.statusLocked(), nil
}

// Cancel abandons the staged document and returns to idle. A COG check
// still in flight is discarded when it completes.
func (o *Orchestrator) Cancel() (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case CogWarning, CommentCapture, ValidatingCog:
	default:
		return o.statusLocked(), core.NewTransitionError("cancel", string(o.state))
	}
	o.generation++
	o.clearLocked()
	o.setLocked(Idle, "cancel")
	return o.statusLocked(), nil
}

// SetComment records the optional note sent with the pull request
func (o *Orchestrator) SetComment(comment string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != CommentCapture {
		return core.NewTransitionError("comment", string(o.state))
	}
	o.comment = comment
	return nil
}

// Confirm dispatches the staged document. In edit mode the existing file is
// updated; otherwise a new pull request is created.
func (o *Orchestrator) Confirm(ctx context.Context) (Status, error) {
	o.mu.Lock()
	if o.state != CommentCapture {
		defer o.mu.Unlock()
		return o.statusLocked(), core.NewTransitionError("confirm", string(o.state))
	}
	o.setLocked(Submitting, "confirm")
	gen := o.generation
	payload := ports.IngestPayload{
		Data:          o.staged.Clone(),
		IngestionType: o.typ,
		UserComment:   o.comment,
	}
	var edit *ports.EditTarget
	if o.edit != nil {
		e := *o.edit
		edit = &e
	}
	o.mu.Unlock()

	url, err := o.dispatch(ctx, payload, edit)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation || o.state != Submitting {
		return o.statusLocked(), core.ErrStaleOperation
	}
	if err != nil {
		o.errMsg = errorMessage(err)
		o.deps.Logger.Error("[Submission] %s submission failed: %v", o.typ, err)
		o.setLocked(Error, "failed")
		return o.statusLocked(), nil
	}
	o.githubURL = url
	o.deps.Logger.Info("[Submission] %s submitted %s", o.typ, url)
	o.setLocked(Success, "submitted")
	return o.statusLocked(), nil
}

// Reset leaves success or error for idle, clearing the staged document and
// the comment.
func (o *Orchestrator) Reset() (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		return o.statusLocked(), core.NewTransitionError("reset", string(o.state))
	}
	o.clearLocked()
	o.setLocked(Idle, "reset")
	return o.statusLocked(), nil
}

// Abort returns to idle from any state and drops edit mode. Results of
// calls still in flight are discarded.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	o.clearLocked()
	o.edit = nil
	if o.state != Idle {
		o.setLocked(Idle, "abort")
	}
}

// LoadExisting retrieves the record behind ref and enters edit mode. The
// content must carry the identity field of the ingestion type.
func (o *Orchestrator) LoadExisting(ctx context.Context, ref string) (ports.RetrievedIngest, error) {
	ref = strings.TrimSpace(ref)
	o.mu.Lock()
	if o.state != Idle {
		defer o.mu.Unlock()
		return ports.RetrievedIngest{}, core.NewTransitionError("load", string(o.state))
	}
	if ref == "" {
		o.mu.Unlock()
		return ports.RetrievedIngest{}, apperrors.InvalidInput("ref is required")
	}
	if o.deps.Retrieval == nil {
		o.mu.Unlock()
		return ports.RetrievedIngest{}, apperrors.InternalError("ingest retrieval is not configured")
	}
	o.setLocked(LoadingExisting, "load")
	gen := o.generation
	o.mu.Unlock()

	retrieved, err := o.deps.Retrieval.RetrieveIngest(ctx, ref, o.typ)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation || o.state != LoadingExisting {
		return ports.RetrievedIngest{}, core.ErrStaleOperation
	}
	o.setLocked(Idle, "loaded")
	if err != nil {
		o.deps.Logger.Error("[Submission] retrieve %s %s: %v", o.typ, ref, err)
		return ports.RetrievedIngest{}, err
	}
	if _, ok := o.typ.Identity(retrieved.Content); !ok {
		return ports.RetrievedIngest{}, fmt.Errorf("%w: retrieved content is missing required field %q",
			core.ErrMissingIdentity, o.typ.IdentityField())
	}
	o.edit = &ports.EditTarget{Ref: ref, FileSHA: retrieved.FileSHA, FilePath: retrieved.FilePath}
	o.deps.Logger.Info("[Submission] loaded %s %s for editing", o.typ, retrieved.FilePath)
	return retrieved, nil
}

// dispatch calls the PR service, turning a panic into an error
func (o *Orchestrator) dispatch(ctx context.Context, payload ports.IngestPayload, edit *ports.EditTarget) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = errUnrecognized
		}
	}()

	if o.deps.PR == nil {
		return "", apperrors.InternalError("PR service is not configured")
	}
	if edit != nil {
		return "", o.deps.PR.UpdateIngestPR(ctx, edit.Ref, edit.FileSHA, edit.FilePath, payload.Data)
	}
	res, err := o.deps.PR.CreateIngestPR(ctx, payload)
	if err != nil {
		return "", err
	}
	return res.GithubURL, nil
}

func (o *Orchestrator) validateCOG(ctx context.Context, url string) (valid bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("[Submission] COG validation for %s panicked: %v", url, r)
			valid, err = false, errUnrecognized
		}
	}()
	return o.deps.COG.ValidateCOGURL(ctx, url)
}

var errUnrecognized = errors.New("")

func errorMessage(err error) string {
	if err == nil || errors.Is(err, errUnrecognized) {
		return GenericErrorMessage
	}
	if msg := strings.TrimSpace(apperrors.UserMessage(err)); msg != "" {
		return msg
	}
	return GenericErrorMessage
}

func sampleFile(typ ingest.IngestionType, doc ingest.Document) string {
	if typ != ingest.Dataset {
		return ""
	}
	files, ok := doc[ingest.FieldSampleFiles].([]any)
	if !ok || len(files) == 0 {
		return ""
	}
	first, _ := files[0].(string)
	return strings.TrimSpace(first)
}

func (o *Orchestrator) setLocked(to State, action string) {
	o.history = append(o.history, Transition{From: o.state, To: to, Action: action, At: core.Now()})
	if len(o.history) > maxHistory {
		o.history = append([]Transition(nil), o.history[len(o.history)-maxHistory:]...)
	}
	o.state = to
}

func (o *Orchestrator) clearLocked() {
	o.staged = nil
	o.comment = ""
	o.sampleURL = ""
	o.cogError = ""
	o.githubURL = ""
	o.errMsg = ""
}

func (o *Orchestrator) statusLocked() Status {
	s := Status{
		State:     o.state,
		Comment:   o.comment,
		SampleURL: o.sampleURL,
		CogError:  o.cogError,
		GithubURL: o.githubURL,
		Error:     o.errMsg,
		History:   append([]Transition(nil), o.history...),
	}
	if o.staged != nil {
		s.Staged = o.staged.Clone()
	}
	if o.edit != nil {
		e := *o.edit
		s.Edit = &e
	}
	return s
}
