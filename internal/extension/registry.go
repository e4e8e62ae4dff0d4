package extension

import (
	"fmt"
	"sort"

	"stacingest/domain/core"
)

// Registry is the insertion-ordered set of extensions loaded into one
// session, plus the URLs still being resolved. It is not safe for
// concurrent use; the owning session serializes access.
type Registry struct {
	order   []string
	byURL   map[string]Descriptor
	pending map[string]bool
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byURL:   make(map[string]Descriptor),
		pending: make(map[string]bool),
	}
}

// Add registers d. A URL can be loaded only once.
func (r *Registry) Add(d Descriptor) error {
	if _, exists := r.byURL[d.URL]; exists {
		return fmt.Errorf("%w: %s", core.ErrAlreadyAdded, d.URL)
	}
	r.order = append(r.order, d.URL)
	r.byURL[d.URL] = d
	delete(r.pending, d.URL)
	return nil
}

// Remove unloads url and reports whether it was loaded
func (r *Registry) Remove(url string) bool {
	delete(r.pending, url)
	if _, exists := r.byURL[url]; !exists {
		return false
	}
	delete(r.byURL, url)
	for i, u := range r.order {
		if u == url {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the descriptor loaded for url
func (r *Registry) Get(url string) (Descriptor, bool) {
	d, ok := r.byURL[url]
	return d, ok
}

// Has reports whether url is loaded
func (r *Registry) Has(url string) bool {
	_, ok := r.byURL[url]
	return ok
}

// List returns descriptors in load order
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, u := range r.order {
		out = append(out, r.byURL[u])
	}
	return out
}

// Len returns the number of loaded extensions
func (r *Registry) Len() int {
	return len(r.order)
}

// FieldOwners returns, in load order, the URLs of the extensions declaring name
func (r *Registry) FieldOwners(name string) []string {
	var out []string
	for _, u := range r.order {
		if r.byURL[u].Declares(name) {
			out = append(out, u)
		}
	}
	return out
}

// DeclaredFields returns the union of field names over every loaded extension
func (r *Registry) DeclaredFields() map[string]bool {
	out := make(map[string]bool)
	for _, d := range r.byURL {
		for _, f := range d.Fields {
			out[f.Name] = true
		}
	}
	return out
}

// FieldNames returns DeclaredFields as a sorted slice
func (r *Registry) FieldNames() []string {
	declared := r.DeclaredFields()
	out := make([]string, 0, len(declared))
	for name := range declared {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BeginPending marks url as being resolved. It returns false when url is
// already loaded or already pending.
func (r *Registry) BeginPending(url string) bool {
	if r.Has(url) || r.pending[url] {
		return false
	}
	r.pending[url] = true
	return true
}

// EndPending clears url and reports whether it was still pending. A false
// result means the resolution was abandoned and its result must be dropped.
func (r *Registry) EndPending(url string) bool {
	was := r.pending[url]
	delete(r.pending, url)
	return was
}

// IsPending reports whether url is being resolved
func (r *Registry) IsPending(url string) bool {
	return r.pending[url]
}

// Pending returns the URLs being resolved, sorted
func (r *Registry) Pending() []string {
	out := make([]string, 0, len(r.pending))
	for u := range r.pending {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Reset unloads everything and abandons pending resolutions
func (r *Registry) Reset() {
	r.order = nil
	r.byURL = make(map[string]Descriptor)
	r.pending = make(map[string]bool)
}
