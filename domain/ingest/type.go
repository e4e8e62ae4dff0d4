package ingest

import (
	"fmt"
	"strings"
)

// IngestionType tags a record as a dataset or a collection.
type IngestionType string

const (
	Dataset    IngestionType = "dataset"
	Collection IngestionType = "collection"
)

// ParseIngestionType validates s as an ingestion type.
func ParseIngestionType(s string) (IngestionType, error) {
	t := IngestionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown ingestion type %q (want %q or %q)", s, Dataset, Collection)
	}
	return t, nil
}

func (t IngestionType) Valid() bool {
	return t == Dataset || t == Collection
}

func (t IngestionType) String() string { return string(t) }

// IdentityField is the key that names the record and cannot change once
// editing of an existing record has begun.
func (t IngestionType) IdentityField() string {
	if t == Collection {
		return "id"
	}
	return "collection"
}

// Identity returns the document's identity value as a non-empty string.
func (t IngestionType) Identity(doc Document) (string, bool) {
	s, ok := doc[t.IdentityField()].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
