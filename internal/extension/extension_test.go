package extension

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stacingest/domain/core"
	"stacingest/internal"
)

const datacubeURL = "https://stac-extensions.github.io/datacube/v2.2.0/schema.json"

const datacubeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Datacube",
  "definitions": {
    "require_field": {"required": ["x"]},
    "fields": {
      "type": "object",
      "properties": {
        "x": {"type": "object"},
        "y": {"type": "string"}
      }
    }
  }
}`

type MockSchemaFetcher struct {
	mock.Mock
}

func (m *MockSchemaFetcher) FetchSchema(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

func TestParseDatacube(t *testing.T) {
	d, err := Parse(datacubeURL, []byte(datacubeSchema))
	require.NoError(t, err)

	assert.Equal(t, datacubeURL, d.URL)
	assert.Equal(t, "Datacube", d.Title)
	assert.Equal(t, []Field{{Name: "x", Required: true}, {Name: "y", Required: false}}, d.Fields)
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	body := `{"definitions":{"fields":{"properties":{"zeta":{},"alpha":{},"mid":{}}}}}`

	d, err := Parse("https://example.com/ext.json", []byte(body))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, d.FieldNames())
	assert.Equal(t, "https://example.com/ext.json", d.Title, "title falls back to the URL")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"invalid json", `{"title":`, ErrParse},
		{"array", `[1,2]`, ErrParse},
		{"no definitions", `{"title":"Empty"}`, ErrNoFields},
		{"empty properties", `{"definitions":{"fields":{"properties":{}}}}`, ErrNoFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("https://example.com/s.json", []byte(tt.body))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestResolverCachesByURL(t *testing.T) {
	fetcher := new(MockSchemaFetcher)
	fetcher.On("FetchSchema", mock.Anything, datacubeURL).Return([]byte(datacubeSchema), nil).Once()
	r := NewResolver(fetcher, ResolverOptions{CacheSize: 4, CacheTTL: time.Minute}, internal.DiscardLogger())

	first, err := r.Resolve(context.Background(), datacubeURL)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), datacubeURL)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.Cached())
	fetcher.AssertNumberOfCalls(t, "FetchSchema", 1)
}

func TestResolverFailuresAreNotCached(t *testing.T) {
	fetcher := new(MockSchemaFetcher)
	fetcher.On("FetchSchema", mock.Anything, "https://down.example.com").Return(nil, errors.New("connection refused"))
	fetcher.On("FetchSchema", mock.Anything, "https://empty.example.com").Return([]byte(`{"title":"x"}`), nil)
	r := NewResolver(fetcher, ResolverOptions{}, internal.DiscardLogger())

	_, err := r.Resolve(context.Background(), "https://down.example.com")
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Contains(t, err.Error(), "connection refused")

	_, err = r.Resolve(context.Background(), "https://empty.example.com")
	assert.True(t, errors.Is(err, ErrNoFields))

	_, _ = r.Resolve(context.Background(), "https://down.example.com")
	assert.Equal(t, 0, r.Cached())
	fetcher.AssertNumberOfCalls(t, "FetchSchema", 3)
}

type blockingFetcher struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (f *blockingFetcher) FetchSchema(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	<-f.release
	return []byte(datacubeSchema), nil
}

func TestResolverSharesConcurrentFetches(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	r := NewResolver(fetcher, ResolverOptions{}, internal.DiscardLogger())

	var wg sync.WaitGroup
	results := make([]Descriptor, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := r.Resolve(context.Background(), datacubeURL)
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	for _, d := range results {
		assert.Equal(t, "Datacube", d.Title)
	}
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.LessOrEqual(t, fetcher.calls, 5)
	assert.GreaterOrEqual(t, fetcher.calls, 1)
}

type contextFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *contextFetcher) FetchSchema(ctx context.Context, url string) ([]byte, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.release:
		return []byte(datacubeSchema), nil
	}
}

func TestResolverCancelledCallerDoesNotFailOthers(t *testing.T) {
	fetcher := &contextFetcher{started: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver(fetcher, ResolverOptions{}, internal.DiscardLogger())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctxA, datacubeURL)
		errA <- err
	}()
	<-fetcher.started

	type result struct {
		d   Descriptor
		err error
	}
	resB := make(chan result, 1)
	go func() {
		d, err := r.Resolve(context.Background(), datacubeURL)
		resB <- result{d, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()
	err := <-errA
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))

	close(fetcher.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "Datacube", b.d.Title)
	assert.Equal(t, 1, r.Cached())
}

func TestResolverFetchTimeoutBoundsSharedFetch(t *testing.T) {
	fetcher := &contextFetcher{started: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver(fetcher, ResolverOptions{FetchTimeout: 20 * time.Millisecond}, internal.DiscardLogger())

	_, err := r.Resolve(context.Background(), datacubeURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Contains(t, err.Error(), "deadline exceeded")
	assert.Equal(t, 0, r.Cached())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := Descriptor{URL: "a", Title: "A", Fields: []Field{{Name: "shared"}, {Name: "a:only"}}}
	b := Descriptor{URL: "b", Title: "B", Fields: []Field{{Name: "shared"}}}

	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))
	assert.True(t, errors.Is(r.Add(a), core.ErrAlreadyAdded))

	assert.Equal(t, []string{"a", "b"}, r.FieldOwners("shared"))
	assert.Equal(t, []string{"a:only", "shared"}, r.FieldNames())

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.Equal(t, []string{"b"}, r.FieldOwners("shared"))
	assert.Empty(t, r.FieldOwners("a:only"))
	assert.Equal(t, []Descriptor{b}, r.List())
}

func TestRegistryPending(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.BeginPending("a"))
	assert.False(t, r.BeginPending("a"), "already pending")
	assert.Equal(t, []string{"a"}, r.Pending())

	r.Reset()
	assert.False(t, r.EndPending("a"), "reset abandons pending work")

	require.NoError(t, r.Add(Descriptor{URL: "b", Fields: []Field{{Name: "f"}}}))
	assert.False(t, r.BeginPending("b"), "already loaded")

	assert.True(t, r.BeginPending("c"))
	assert.True(t, r.IsPending("c"))
	assert.True(t, r.EndPending("c"))
	assert.False(t, r.IsPending("c"))
}
