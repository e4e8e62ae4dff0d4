package ingest

import (
	"path"
	"strings"
	"unicode"
)

const (
	datasetDir    = "ingestion-data/staging/dataset-config"
	collectionDir = "ingestion-data/staging/collections"
)

// StagingPath is the repository path a record is committed to.
func StagingPath(t IngestionType, identity string) string {
	dir := datasetDir
	if t == Collection {
		dir = collectionDir
	}
	return path.Join(dir, Slug(identity)+".json")
}

// Slug turns an identity value into a filename-safe name. Letters and digits
// are lowercased, '-', '_' and '.' survive, and every other run of characters
// collapses into a single '-'.
func Slug(identity string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(identity) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
			dash = r == '-'
		default:
			if !dash && b.Len() > 0 {
				b.WriteRune('-')
				dash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-.")
	if slug == "" {
		return "untitled"
	}
	return slug
}
