package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/domain/summary"
	"stacingest/internal"
	"stacingest/internal/extension"
	"stacingest/internal/submission"
	"stacingest/internal/validation"
	"stacingest/ports"
)

const cubeURL = "https://stac-extensions.github.io/datacube/v2.2.0/schema.json"

type resolverFunc func(ctx context.Context, url string) (extension.Descriptor, error)

func (f resolverFunc) Resolve(ctx context.Context, url string) (extension.Descriptor, error) {
	return f(ctx, url)
}

func cubeResolver() resolverFunc {
	return func(ctx context.Context, url string) (extension.Descriptor, error) {
		if url != cubeURL {
			return extension.Descriptor{}, extension.ErrFetch
		}
		return extension.Descriptor{URL: url, Title: "Datacube", Fields: []extension.Field{{Name: "cube:dimensions", Required: true}}}, nil
	}
}

type fakePR struct {
	mu       sync.Mutex
	payloads []ports.IngestPayload
	updates  []ingest.Document
}

func (f *fakePR) CreateIngestPR(ctx context.Context, payload ports.IngestPayload) (ports.PRResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return ports.PRResult{GithubURL: "https://github.com/org/repo/pull/9"}, nil
}

func (f *fakePR) UpdateIngestPR(ctx context.Context, ref, fileSHA, filePath string, formData ingest.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, formData)
	return nil
}

type fakeRetrieval struct {
	content ingest.Document
}

func (f fakeRetrieval) RetrieveIngest(ctx context.Context, ref string, typ ingest.IngestionType) (ports.RetrievedIngest, error) {
	return ports.RetrievedIngest{FileSHA: "sha", FilePath: ingest.StagingPath(typ, "x"), Content: f.content.Clone()}, nil
}

type memoryRepository struct {
	mu      sync.Mutex
	records map[core.SessionID]*ports.SessionRecord
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: map[core.SessionID]*ports.SessionRecord{}}
}

func (r *memoryRepository) Save(ctx context.Context, rec *ports.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id core.SessionID) (*ports.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryRepository) Delete(ctx context.Context, id core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return core.ErrSessionNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memoryRepository) List(ctx context.Context, limit int) ([]*ports.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ports.SessionRecord
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func newManager(t *testing.T, resolver Resolver, repo ports.SessionRepository, deps submission.Deps) *Manager {
	t.Helper()
	v, err := validation.New(internal.DiscardLogger())
	require.NoError(t, err)
	return NewManager(ManagerConfig{
		Validator:  v,
		Resolver:   resolver,
		Submission: deps,
		Repository: repo,
		Logger:     internal.DiscardLogger(),
	})
}

func TestCreateAndGet(t *testing.T) {
	m := newManager(t, cubeResolver(), nil, submission.Deps{})
	ctx := context.Background()

	s, err := m.Create(ctx, ingest.Collection, true, "alice")
	require.NoError(t, err)

	got, err := m.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	view := s.View()
	assert.Equal(t, ingest.Collection, view.Type)
	assert.True(t, view.Strict)
	assert.Equal(t, submission.Idle, view.State)
	assert.Empty(t, view.Extensions)

	_, err = m.Create(ctx, "item", false, "alice")
	assert.Error(t, err)

	_, err = m.Get(ctx, core.NewSessionID())
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestAddExtensionMovesAdditionalField(t *testing.T) {
	m := newManager(t, cubeResolver(), nil, submission.Deps{})
	s, err := m.Create(context.Background(), ingest.Collection, false, "alice")
	require.NoError(t, err)

	_, err = s.ApplyRaw(ingest.Document{"id": "c", "cube:dimensions": map[string]any{"x": map[string]any{}}})
	require.NoError(t, err)
	assert.Contains(t, s.View().Additional, "cube:dimensions")

	d, err := s.AddExtension(context.Background(), cubeURL)
	require.NoError(t, err)
	assert.Equal(t, "Datacube", d.Title)

	view := s.View()
	assert.NotContains(t, view.Additional, "cube:dimensions")
	require.Len(t, view.Extensions, 1)
	assert.Contains(t, view.Extensions[0].Values, "cube:dimensions")

	_, err = s.AddExtension(context.Background(), cubeURL)
	assert.True(t, errors.Is(err, core.ErrAlreadyAdded))

	_, err = s.AddExtension(context.Background(), "https://example.com/missing.json")
	assert.True(t, errors.Is(err, extension.ErrFetch))
	assert.Empty(t, s.View().Pending)
}

func TestClearDropsLateExtension(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	resolver := resolverFunc(func(ctx context.Context, url string) (extension.Descriptor, error) {
		close(started)
		<-release
		return cubeResolver()(ctx, url)
	})
	m := newManager(t, resolver, nil, submission.Deps{})
	s, err := m.Create(context.Background(), ingest.Collection, false, "alice")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.AddExtension(context.Background(), cubeURL)
		done <- err
	}()

	<-started
	assert.Equal(t, []string{cubeURL}, s.View().Pending)
	s.Clear()
	close(release)

	assert.True(t, errors.Is(<-done, core.ErrStaleOperation))
	assert.Empty(t, s.View().Extensions)
	assert.NotContains(t, s.View().Raw, "stac_extensions")
}

func TestSubmitFlow(t *testing.T) {
	pr := &fakePR{}
	m := newManager(t, cubeResolver(), nil, submission.Deps{PR: pr})
	s, err := m.Create(context.Background(), ingest.Dataset, false, "alice")
	require.NoError(t, err)

	require.NoError(t, s.ApplyForm(ingest.Document{
		"collection":      "no2-monthly",
		"temporal_extent": map[string]any{"startdate": "2024-01-01T00:00:00Z", "enddate": ""},
	}))
	_, err = s.AddSummary("", summary.Set("sentinel-5p"))
	require.NoError(t, err)

	st, res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Equal(t, submission.CommentCapture, st.State)

	comment := "monthly NO2"
	st, err = s.Confirm(context.Background(), &comment)
	require.NoError(t, err)
	assert.Equal(t, submission.Success, st.State)

	require.Len(t, pr.payloads, 1)
	payload := pr.payloads[0]
	assert.Equal(t, "monthly NO2", payload.UserComment)
	assert.Equal(t, ingest.Dataset, payload.IngestionType)
	assert.Equal(t, map[string]any{"new-summary": []any{"sentinel-5p"}}, payload.Data["summaries"])
	assert.Nil(t, payload.Data["temporal_extent"].(map[string]any)["enddate"])

	st, err = s.Reset()
	require.NoError(t, err)
	assert.Equal(t, submission.Idle, st.State)
}

func TestSubmitRequiresIdentityAndValidDocument(t *testing.T) {
	m := newManager(t, cubeResolver(), nil, submission.Deps{PR: &fakePR{}})
	s, err := m.Create(context.Background(), ingest.Dataset, false, "alice")
	require.NoError(t, err)

	_, _, err = s.Submit(context.Background())
	assert.True(t, errors.Is(err, core.ErrMissingIdentity))

	require.NoError(t, s.ApplyForm(ingest.Document{"collection": "c", "renders": "{ bad"}))
	_, res, err := s.Submit(context.Background())
	assert.True(t, errors.Is(err, core.ErrInvalidDocument))
	assert.Len(t, res.ErrorsAt("renders"), 1)
	assert.Equal(t, submission.Idle, s.Submission().State)
}

func TestLoadExistingEntersEditMode(t *testing.T) {
	pr := &fakePR{}
	retrieval := fakeRetrieval{content: ingest.Document{
		"id":              "no2",
		"stac_extensions": []any{cubeURL, "https://example.com/unreachable.json"},
		"cube:dimensions": map[string]any{},
		"summaries":       map[string]any{"platform": []any{"s5p"}},
	}}
	m := newManager(t, cubeResolver(), nil, submission.Deps{PR: pr, Retrieval: retrieval})
	s, err := m.Create(context.Background(), ingest.Collection, false, "alice")
	require.NoError(t, err)

	require.NoError(t, s.LoadExisting(context.Background(), "ref-1"))

	view := s.View()
	require.NotNil(t, view.Submission.Edit)
	assert.Equal(t, "ref-1", view.Submission.Edit.Ref)
	require.Len(t, view.Extensions, 1)
	assert.Equal(t, []string{"cube:dimensions"}, view.Classification.Extension)
	require.Len(t, view.Summaries, 1)

	_, err = s.ApplyRaw(ingest.Document{"id": "other"})
	assert.True(t, errors.Is(err, core.ErrIdentityChanged))

	_, _, err = s.Submit(context.Background())
	require.NoError(t, err)
	st, err := s.Confirm(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, submission.Success, st.State)
	require.Len(t, pr.updates, 1)
	assert.Empty(t, pr.payloads)
}

func TestPersistAndRestore(t *testing.T) {
	repo := newMemoryRepository()
	ctx := context.Background()
	first := newManager(t, cubeResolver(), repo, submission.Deps{})

	s, err := first.Create(ctx, ingest.Collection, true, "alice")
	require.NoError(t, err)
	require.NoError(t, s.ApplyForm(ingest.Document{"id": "c1", "title": "T"}))
	_, err = s.AddExtension(ctx, cubeURL)
	require.NoError(t, err)
	_, err = s.AddSummary("gsd", summary.Range(10, 30))
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, s))

	second := newManager(t, cubeResolver(), repo, submission.Deps{})
	restored, err := second.Get(ctx, s.ID())
	require.NoError(t, err)

	before, after := s.View(), restored.View()
	assert.Equal(t, "alice", restored.Owner())
	assert.True(t, ingest.Equal(before.Raw, after.Raw))
	assert.Equal(t, before.Classification, after.Classification)
	assert.Equal(t, before.Summaries, after.Summaries)
	assert.Equal(t, before.Extensions, after.Extensions)
	assert.True(t, after.Strict)

	require.NoError(t, second.Delete(ctx, s.ID()))
	_, err = repo.Get(ctx, s.ID())
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestListWithoutRepository(t *testing.T) {
	m := newManager(t, cubeResolver(), nil, submission.Deps{})
	for i := 0; i < 3; i++ {
		_, err := m.Create(context.Background(), ingest.Dataset, false, "alice")
		require.NoError(t, err)
	}

	recs, err := m.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRemoveSummaryAndExtensionNotFound(t *testing.T) {
	m := newManager(t, cubeResolver(), nil, submission.Deps{})
	s, err := m.Create(context.Background(), ingest.Dataset, false, "alice")
	require.NoError(t, err)

	assert.True(t, core.IsNotFoundError(s.RemoveSummary("none")))
	assert.True(t, core.IsNotFoundError(s.RemoveExtension("none")))

	key, err := s.AddSummary("", summary.Set("a"))
	require.NoError(t, err)
	assert.Equal(t, "new-summary", key)
	key, err = s.AddSummary("", summary.Set("b"))
	require.NoError(t, err)
	assert.Equal(t, "new-summary-1", key)
	require.NoError(t, s.RemoveSummary("new-summary"))
}
