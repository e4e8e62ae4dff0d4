// Package summaries owns the summaries sub-mapping of an ingest document.
// It is edited on its own and merged back into the document for validation
// and submission.
package summaries

import (
	"fmt"
	"strings"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/domain/summary"
)

// DefaultKey is the suggestion used when the caller has none
const DefaultKey = "new-summary"

// Entry is one keyed summary in list order
type Entry struct {
	Key   string        `json:"key"`
	Value summary.Value `json:"value"`
}

// Store is an insertion-ordered set of summaries. It is not safe for
// concurrent use.
type Store struct {
	order   []string
	entries map[string]summary.Value
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{entries: make(map[string]summary.Value)}
}

// Add inserts a new entry. Existing keys are left untouched.
func (s *Store) Add(key string, value summary.Value) error {
	if strings.TrimSpace(key) == "" {
		return core.ErrEmptyKey
	}
	if _, exists := s.entries[key]; exists {
		return fmt.Errorf("%w: %q", core.ErrDuplicateKey, key)
	}
	s.order = append(s.order, key)
	s.entries[key] = value
	return nil
}

// Set replaces the value of an existing entry, or appends a new one
func (s *Store) Set(key string, value summary.Value) error {
	if strings.TrimSpace(key) == "" {
		return core.ErrEmptyKey
	}
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = value
	return nil
}

// Remove deletes key and reports whether it existed
func (s *Store) Remove(key string) bool {
	if _, exists := s.entries[key]; !exists {
		return false
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entry for key
func (s *Store) Get(key string) (summary.Value, bool) {
	v, ok := s.entries[key]
	return v, ok
}

// Len returns the number of entries
func (s *Store) Len() int {
	return len(s.order)
}

// List returns entries in insertion order
func (s *Store) List() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, Entry{Key: k, Value: s.entries[k]})
	}
	return out
}

// Mapping returns the stored form of all entries
func (s *Store) Mapping() map[string]any {
	out := make(map[string]any, len(s.order))
	for _, k := range s.order {
		out[k] = s.entries[k].ToRaw()
	}
	return out
}

// Replace swaps the whole mapping. New keys are ordered lexically after any
// key that survives from the previous mapping.
func (s *Store) Replace(entries map[string]summary.Value) {
	kept := make([]string, 0, len(entries))
	for _, k := range s.order {
		if _, ok := entries[k]; ok {
			kept = append(kept, k)
		}
	}
	for _, k := range summary.SortedKeys(entries) {
		if _, had := s.entries[k]; !had {
			kept = append(kept, k)
		}
	}

	s.order = kept
	s.entries = make(map[string]summary.Value, len(entries))
	for k, v := range entries {
		s.entries[k] = v
	}
}

// Clear removes every entry
func (s *Store) Clear() {
	s.order = nil
	s.entries = make(map[string]summary.Value)
}

// Merge returns a copy of doc carrying the store under "summaries". An empty
// store removes the key.
func (s *Store) Merge(doc ingest.Document) ingest.Document {
	out := doc.Without(ingest.FieldSummaries)
	if len(s.order) > 0 {
		out[ingest.FieldSummaries] = s.Mapping()
	}
	return out
}

// Extract splits the summaries out of doc. It returns the raw mapping and a
// copy of doc without the key. A summaries value that is not an object is
// returned as an empty mapping.
func Extract(doc ingest.Document) (map[string]any, ingest.Document) {
	rest := doc.Without(ingest.FieldSummaries)
	raw, _ := ingest.DeepCopy(doc[ingest.FieldSummaries]).(map[string]any)
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, rest
}

// Load replaces the store contents with the summaries found in doc and
// returns doc without them.
func (s *Store) Load(doc ingest.Document) ingest.Document {
	raw, rest := Extract(doc)
	s.Clear()
	s.Replace(summary.FromMapping(raw))
	return rest
}

// SuggestKey returns base, or base-1, base-2, ... for the first key not in use
func (s *Store) SuggestKey(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultKey
	}
	if _, taken := s.entries[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, taken := s.entries[candidate]; !taken {
			return candidate
		}
	}
}
