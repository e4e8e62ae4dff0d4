package ports

import (
	"context"

	"stacingest/domain/ingest"
)

// IngestPayload is what a new ingest pull request is created from
type IngestPayload struct {
	Data          ingest.Document      `json:"data"`
	IngestionType ingest.IngestionType `json:"ingestionType"`
	UserComment   string               `json:"userComment"`
}

// PRResult is returned once a pull request exists
type PRResult struct {
	GithubURL string `json:"githubURL"`
}

// PRService creates or updates the versioned ingest file and its pull request.
// Errors carry a human-readable message.
type PRService interface {
	CreateIngestPR(ctx context.Context, payload IngestPayload) (PRResult, error)
	UpdateIngestPR(ctx context.Context, ref, fileSHA, filePath string, formData ingest.Document) error
}
