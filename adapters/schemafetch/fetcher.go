// Package schemafetch downloads extension JSON Schemas over HTTP.
package schemafetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stacingest/internal"
)

// MaxSchemaBytes caps how much of a response body is read
const MaxSchemaBytes = 4 << 20

// Fetcher is a plain HTTP GET schema fetcher
type Fetcher struct {
	httpClient *http.Client
	logger     *internal.Logger
}

// New creates a fetcher. A zero timeout means requests are bounded only by
// their context.
func New(timeout time.Duration, logger *internal.Logger) *Fetcher {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchSchema returns the body served at rawURL. Only http and https URLs
// are fetched and any non-2xx status is an error.
func (f *Fetcher) FetchSchema(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported schema url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/schema+json, application/json")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSchemaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxSchemaBytes {
		return nil, fmt.Errorf("schema at %s exceeds %d bytes", rawURL, MaxSchemaBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: http %d", rawURL, resp.StatusCode)
	}

	f.logger.Debug("[SchemaFetch] %s: %d bytes in %s", rawURL, len(body), time.Since(start))
	return body, nil
}
