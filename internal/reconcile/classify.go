package reconcile

import (
	"sort"

	"stacingest/domain/ingest"
	"stacingest/internal/extension"
)

// Classification partitions the top-level keys of a document. Owners maps
// every extension key to the URL of the first loaded extension declaring it.
type Classification struct {
	Base       []string          `json:"base"`
	Extension  []string          `json:"extension"`
	Additional []string          `json:"additional"`
	Owners     map[string]string `json:"owners"`
}

// ByExtension groups extension keys under their owning URL
func (c Classification) ByExtension() map[string][]string {
	out := make(map[string][]string)
	for _, key := range c.Extension {
		url := c.Owners[key]
		out[url] = append(out[url], key)
	}
	return out
}

// Of returns the bucket of key: "base", "extension", "additional", or ""
// when key is not in the document
func (c Classification) Of(key string) string {
	for _, bucket := range []struct {
		name string
		keys []string
	}{{"base", c.Base}, {"extension", c.Extension}, {"additional", c.Additional}} {
		i := sort.SearchStrings(bucket.keys, key)
		if i < len(bucket.keys) && bucket.keys[i] == key {
			return bucket.name
		}
	}
	return ""
}

// Classify is a pure function of the document keys, the base property
// names and the loaded extensions. Base wins over extension.
func Classify(keys []string, base map[string]bool, registry *extension.Registry) Classification {
	c := Classification{
		Base:       []string{},
		Extension:  []string{},
		Additional: []string{},
		Owners:     map[string]string{},
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for i, key := range sorted {
		if i > 0 && sorted[i-1] == key {
			continue
		}
		switch {
		case base[key] || key == ingest.FieldSummaries:
			c.Base = append(c.Base, key)
		default:
			var owners []string
			if registry != nil {
				owners = registry.FieldOwners(key)
			}
			if len(owners) > 0 {
				c.Extension = append(c.Extension, key)
				c.Owners[key] = owners[0]
			} else {
				c.Additional = append(c.Additional, key)
			}
		}
	}
	return c
}
