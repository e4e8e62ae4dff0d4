package schemafetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacingest/internal"
)

func TestFetchSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"title":"ok"}`))
		case "/big.json":
			_, _ = w.Write([]byte(strings.Repeat(" ", MaxSchemaBytes+10)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(0, internal.DiscardLogger())

	body, err := f.FetchSchema(context.Background(), srv.URL+"/ok.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"ok"}`, string(body))

	_, err = f.FetchSchema(context.Background(), srv.URL+"/missing.json")
	assert.ErrorContains(t, err, "http 404")

	_, err = f.FetchSchema(context.Background(), srv.URL+"/big.json")
	assert.ErrorContains(t, err, "exceeds")
}

func TestFetchSchemaRejectsOtherSchemes(t *testing.T) {
	f := New(0, internal.DiscardLogger())

	for _, u := range []string{"file:///etc/passwd", "ftp://example.com/s.json", "not a url", "https://"} {
		_, err := f.FetchSchema(context.Background(), u)
		assert.ErrorContains(t, err, "unsupported schema url", u)
	}
}
