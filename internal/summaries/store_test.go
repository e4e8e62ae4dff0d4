package summaries

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/domain/summary"
)

func TestStoreAdd(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Add("gsd", summary.Range(10, 30)))
	require.NoError(t, s.Add("platform", summary.Set("landsat-8")))

	err := s.Add("gsd", summary.Range(0, 1))
	assert.True(t, errors.Is(err, core.ErrDuplicateKey))
	v, _ := s.Get("gsd")
	assert.Equal(t, 10.0, v.Minimum, "duplicate add leaves the entry alone")

	assert.True(t, errors.Is(s.Add("  ", summary.Set()), core.ErrEmptyKey))
	assert.Equal(t, 2, s.Len())
}

func TestStoreListKeepsInsertionOrder(t *testing.T) {
	s := NewStore()
	for _, k := range []string{"z", "a", "m"} {
		require.NoError(t, s.Add(k, summary.Set(k)))
	}

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))

	keys := []string{}
	for _, e := range s.List() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"z", "m"}, keys)
}

func TestSuggestKey(t *testing.T) {
	s := NewStore()
	assert.Equal(t, "new-summary", s.SuggestKey(""))

	require.NoError(t, s.Add(s.SuggestKey(""), summary.Set("a")))
	assert.Equal(t, "new-summary-1", s.SuggestKey("new-summary"))

	require.NoError(t, s.Add(s.SuggestKey(""), summary.Set("b")))
	assert.Equal(t, "new-summary-2", s.SuggestKey(""))
	assert.Equal(t, "bands", s.SuggestKey("bands"))
}

func TestMergeExtractRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		doc     ingest.Document
		entries map[string]summary.Value
	}{
		{
			name:    "mixed kinds",
			doc:     ingest.Document{"collection": "c1", "title": "T"},
			entries: map[string]summary.Value{"gsd": summary.Range(10, 30), "platform": summary.Set("l8", "l9"), "bands": summary.Fragment(map[string]any{"type": "array"})},
		},
		{
			name:    "doc already has summaries",
			doc:     ingest.Document{"summaries": map[string]any{"old": []any{"x"}}},
			entries: map[string]summary.Value{"new": summary.Fragment(`{"type":"string"}`)},
		},
		{
			name:    "empty",
			doc:     ingest.Document{"id": "c"},
			entries: map[string]summary.Value{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Replace(tt.entries)

			merged := s.Merge(tt.doc)
			raw, rest := Extract(merged)

			assert.True(t, ingest.ValueEqual(summary.ToMapping(tt.entries), raw))
			assert.NotContains(t, rest, "summaries")

			reloaded := NewStore()
			reloaded.Replace(summary.FromMapping(raw))
			assert.True(t, ingest.ValueEqual(s.Mapping(), reloaded.Mapping()))
		})
	}
}

func TestMergeDoesNotMutateDocument(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("gsd", summary.Range(1, 2)))
	doc := ingest.Document{"title": "T"}

	merged := s.Merge(doc)

	assert.NotContains(t, doc, "summaries")
	assert.Contains(t, merged, "summaries")
}

func TestLoad(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("stale", summary.Set("x")))

	rest := s.Load(ingest.Document{
		"id":        "c1",
		"summaries": map[string]any{"b": []any{"x"}, "a": map[string]any{"minimum": 1.0, "maximum": 2.0}},
	})

	assert.Equal(t, ingest.Document{"id": "c1"}, rest)
	require.Len(t, s.List(), 2)
	assert.Equal(t, "a", s.List()[0].Key)
	assert.Equal(t, summary.KindRange, s.List()[0].Value.Kind)
	_, stale := s.Get("stale")
	assert.False(t, stale)
}

func TestReplaceKeepsSurvivingOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("z", summary.Set("1")))
	require.NoError(t, s.Add("a", summary.Set("2")))

	s.Replace(map[string]summary.Value{"a": summary.Set("3"), "z": summary.Set("4"), "b": summary.Set("5")})

	keys := []string{}
	for _, e := range s.List() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"z", "a", "b"}, keys)
}
