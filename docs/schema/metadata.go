// Package schema exposes the embedded storage and wire schema catalog for
// runtime use.
package schema

import (
	_ "embed"
	"encoding/json"
	"sync"
)

// Metadata captures the high-level metadata block from the schema catalog.
type Metadata struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

// Field describes one serialized field of a catalog entity.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Entity describes one serialized entity. Bucket names the persistent store
// bucket holding the entity; wire-only entities leave it empty.
type Entity struct {
	Name        string  `json:"name"`
	Bucket      string  `json:"bucket,omitempty"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

type catalogDoc struct {
	Version  string   `json:"version"`
	Metadata Metadata `json:"metadata"`
	Entities []Entity `json:"entities"`
}

// Schema catalog content embedded for runtime metadata exposure.
//
//go:embed schema.json
var catalogRaw []byte

var (
	catalogOnce sync.Once
	catalog     catalogDoc
	catalogErr  error
)

func load() (catalogDoc, error) {
	catalogOnce.Do(func() {
		catalogErr = json.Unmarshal(catalogRaw, &catalog)
	})
	return catalog, catalogErr
}

// CatalogVersion returns the schema version declared in the catalog (source
// of truth: docs/schema/schema.json).
func CatalogVersion() (string, error) {
	doc, err := load()
	if err != nil {
		return "", err
	}
	return doc.Version, nil
}

// CatalogMetadata returns the catalog metadata (status, source) declared in
// the schema document.
func CatalogMetadata() (Metadata, error) {
	doc, err := load()
	if err != nil {
		return Metadata{}, err
	}
	return doc.Metadata, nil
}

// Entities returns the catalog entities in document order.
func Entities() ([]Entity, error) {
	doc, err := load()
	if err != nil {
		return nil, err
	}
	out := make([]Entity, len(doc.Entities))
	copy(out, doc.Entities)
	return out, nil
}

// LookupEntity returns the named catalog entity.
func LookupEntity(name string) (Entity, bool, error) {
	doc, err := load()
	if err != nil {
		return Entity{}, false, err
	}
	for _, entity := range doc.Entities {
		if entity.Name == name {
			return entity, true, nil
		}
	}
	return Entity{}, false, nil
}

// Buckets returns the distinct persistent store bucket names declared by the
// catalog, in document order.
func Buckets() ([]string, error) {
	doc, err := load()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, entity := range doc.Entities {
		if entity.Bucket == "" || seen[entity.Bucket] {
			continue
		}
		seen[entity.Bucket] = true
		out = append(out, entity.Bucket)
	}
	return out, nil
}
