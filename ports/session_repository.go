package ports

import (
	"context"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
)

// EditTarget identifies the committed file an edit session updates
type EditTarget struct {
	Ref      string `json:"ref"`
	FileSHA  string `json:"fileSha"`
	FilePath string `json:"filePath"`
}

// ExtensionRecord persists one loaded extension descriptor
type ExtensionRecord struct {
	URL    string                 `json:"url"`
	Title  string                 `json:"title"`
	Fields []ExtensionFieldRecord `json:"fields"`
}

// ExtensionFieldRecord persists one extension field declaration
type ExtensionFieldRecord struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// SessionRecord is the persisted snapshot of an editing session. State is
// informational; a restored session starts idle.
type SessionRecord struct {
	ID            core.SessionID
	Owner         string
	IngestionType ingest.IngestionType
	Document      ingest.Document
	Summaries     map[string]any
	Extensions    []ExtensionRecord
	Strict        bool
	Edit          *EditTarget
	State         string
	UpdatedAt     core.Timestamp
}

// SessionRepository stores editing session snapshots
type SessionRepository interface {
	Save(ctx context.Context, record *SessionRecord) error
	Get(ctx context.Context, id core.SessionID) (*SessionRecord, error)
	Delete(ctx context.Context, id core.SessionID) error
	List(ctx context.Context, limit int) ([]*SessionRecord, error)
}
