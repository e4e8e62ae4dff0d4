package ports

import (
	"context"

	"stacingest/domain/ingest"
)

// RetrievedIngest is an existing record loaded for editing
type RetrievedIngest struct {
	FileSHA  string          `json:"fileSha"`
	FilePath string          `json:"filePath"`
	Content  ingest.Document `json:"content"`
}

// IngestRetrieval loads the committed record behind a pull request ref
type IngestRetrieval interface {
	RetrieveIngest(ctx context.Context, ref string, ingestionType ingest.IngestionType) (RetrievedIngest, error)
}
