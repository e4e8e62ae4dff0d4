// Package ingestapi talks to the external ingest service that owns pull
// request creation, retrieval of committed records and COG validation.
package ingestapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/internal"
	apperrors "stacingest/internal/errors"
	"stacingest/ports"
)

const serviceName = "ingest-api"

const (
	createPath   = "/api/create-ingest"
	retrievePath = "/api/retrieve-ingest"
	cogPath      = "/api/validate-cog"
)

// Client implements ports.PRService, ports.IngestRetrieval and
// ports.COGValidator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *internal.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBearerToken sends an Authorization header on every request
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the service rooted at baseURL
func New(baseURL string, timeout time.Duration, logger *internal.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type updateRequest struct {
	Ref      string          `json:"ref"`
	FileSHA  string          `json:"fileSha"`
	FilePath string          `json:"filePath"`
	FormData ingest.Document `json:"formData"`
}

// CreateIngestPR opens a pull request for a new record
func (c *Client) CreateIngestPR(ctx context.Context, payload ports.IngestPayload) (ports.PRResult, error) {
	var out ports.PRResult
	if err := c.do(ctx, http.MethodPost, createPath, nil, payload, &out); err != nil {
		return ports.PRResult{}, err
	}
	if out.GithubURL == "" {
		return ports.PRResult{}, apperrors.ExternalServiceError(serviceName, "", fmt.Errorf("response is missing githubURL"))
	}
	c.logger.Info("[IngestAPI] created pull request %s", out.GithubURL)
	return out, nil
}

// UpdateIngestPR commits formData over the file behind an existing ref
func (c *Client) UpdateIngestPR(ctx context.Context, ref, fileSHA, filePath string, formData ingest.Document) error {
	body := updateRequest{Ref: ref, FileSHA: fileSHA, FilePath: filePath, FormData: formData}
	if err := c.do(ctx, http.MethodPut, createPath, nil, body, nil); err != nil {
		return err
	}
	c.logger.Info("[IngestAPI] updated %s on %s", filePath, ref)
	return nil
}

// RetrieveIngest loads the committed record behind ref
func (c *Client) RetrieveIngest(ctx context.Context, ref string, typ ingest.IngestionType) (ports.RetrievedIngest, error) {
	q := url.Values{}
	q.Set("ref", ref)
	q.Set("ingestionType", typ.String())

	var out ports.RetrievedIngest
	if err := c.do(ctx, http.MethodGet, retrievePath, q, nil, &out); err != nil {
		return ports.RetrievedIngest{}, err
	}
	if out.Content == nil {
		return ports.RetrievedIngest{}, apperrors.ExternalServiceError(serviceName, "", fmt.Errorf("response is missing content"))
	}
	return out, nil
}

// ValidateCOGURL asks the service whether url is a readable COG. A 4xx
// answer means invalid; transport failures and 5xx are errors.
func (c *Client) ValidateCOGURL(ctx context.Context, cogURL string) (bool, error) {
	q := url.Values{}
	q.Set("url", cogURL)

	status, body, err := c.send(ctx, http.MethodGet, cogPath, q, nil)
	if err != nil {
		return false, err
	}
	switch {
	case status >= 200 && status < 300:
		res := gjson.GetBytes(body, "valid")
		if !res.Exists() {
			return true, nil
		}
		return res.Bool(), nil
	case status >= 400 && status < 500:
		c.logger.Debug("[IngestAPI] COG %s rejected: %d %s", cogURL, status, errorText(body))
		return false, nil
	default:
		return false, statusError(status, body)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	status, body, err := c.send(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound && method == http.MethodGet {
		return apperrors.WithCode(apperrors.CodeNotFound, fmt.Errorf("%w: %s", core.ErrIngestNotFound, errorText(body)))
	}
	if status < 200 || status >= 300 {
		return statusError(status, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.ExternalServiceError(serviceName, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, in any) (int, []byte, error) {
	if c.baseURL == "" {
		return 0, nil, apperrors.ConfigInvalid("ingest API URL is not configured")
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, apperrors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, apperrors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperrors.ExternalServiceError(serviceName, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apperrors.ExternalServiceError(serviceName, "", fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("[IngestAPI] %s %s -> %d in %s", method, path, resp.StatusCode, time.Since(start))
	return resp.StatusCode, body, nil
}

// statusError keeps the service's own "error" text as the user message
func statusError(status int, body []byte) error {
	return apperrors.ExternalServiceError(serviceName, errorText(body), fmt.Errorf("http %d", status))
}

func errorText(body []byte) string {
	for _, path := range []string{"error", "message", "error.message"} {
		if res := gjson.GetBytes(body, path); res.Type == gjson.String && res.String() != "" {
			return res.String()
		}
	}
	return ""
}
