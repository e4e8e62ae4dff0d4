package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"stacingest/domain/ingest"
	"stacingest/internal/normalize"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// baseSchema is a decoded base schema document for one ingestion type
type baseSchema struct {
	doc   map[string]any
	props []string
	shape *normalize.Shape
}

func loadBaseSchemas() (map[ingest.IngestionType]*baseSchema, error) {
	files := map[ingest.IngestionType]string{
		ingest.Dataset:    "schemas/dataset.json",
		ingest.Collection: "schemas/collection.json",
	}

	out := make(map[ingest.IngestionType]*baseSchema, len(files))
	for typ, name := range files {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		props, _ := doc["properties"].(map[string]any)
		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		sort.Strings(names)
		out[typ] = &baseSchema{doc: doc, props: names, shape: shapeOf(doc)}
	}
	return out, nil
}

// shapeOf derives container kinds from type, properties and items keywords
func shapeOf(node any) *normalize.Shape {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}

	shape := &normalize.Shape{Kind: containerKind(obj["type"])}
	if props, ok := obj["properties"].(map[string]any); ok {
		shape.Props = make(map[string]*normalize.Shape, len(props))
		for name, child := range props {
			if s := shapeOf(child); s != nil {
				shape.Props[name] = s
			}
		}
	}
	if items := shapeOf(obj["items"]); items != nil {
		shape.Items = items
	}

	if shape.Kind == normalize.KindScalar && shape.Props == nil && shape.Items == nil {
		return nil
	}
	return shape
}

func containerKind(typ any) normalize.Kind {
	var types []string
	switch t := typ.(type) {
	case string:
		types = []string{t}
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, t := range types {
		switch t {
		case "array":
			return normalize.KindArray
		case "object":
			return normalize.KindObject
		}
	}
	return normalize.KindScalar
}
