package ports

import "context"

// SchemaFetcher retrieves a JSON Schema document by URL
type SchemaFetcher interface {
	FetchSchema(ctx context.Context, url string) ([]byte, error)
}
