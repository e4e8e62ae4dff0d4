package devstub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stacingest/domain/ingest"
)

// LocalStore keeps committed ingest files on the local filesystem under a
// base directory, using the same relative paths the real repository uses.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a new local store
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Write stores doc as indented JSON at key and returns the content SHA
func (s *LocalStore) Write(ctx context.Context, key string, doc ingest.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	filePath, err := s.keyToPath(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	content, err := doc.MarshalIndent()
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	return contentSHA(content), nil
}

// Read loads the document stored at key and its content SHA
func (s *LocalStore) Read(ctx context.Context, key string) (ingest.Document, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	filePath, err := s.keyToPath(key)
	if err != nil {
		return nil, "", err
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	doc, err := ingest.Decode(content)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return doc, contentSHA(content), nil
}

// Exists reports whether a file is stored at key
func (s *LocalStore) Exists(key string) bool {
	filePath, err := s.keyToPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(filePath)
	return err == nil
}

// keyToPath maps a slash-separated key under the base path, refusing keys
// that escape it
func (s *LocalStore) keyToPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.basePath, clean), nil
}

func contentSHA(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
