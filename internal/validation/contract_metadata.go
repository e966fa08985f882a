package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ContractMetadata captures the subset of the schema catalog needed for plugin
// enforcement.
type ContractMetadata struct {
	Version  string
	Entities map[string]ContractEntity
}

// ContractEntity describes mandatory fields for an entity plus its declared
// properties.
type ContractEntity struct {
	Required   []string
	Properties map[string]struct{}
}

// LoadContractMetadata reads the schema catalog and returns the metadata
// required for enforcement workflows.
func LoadContractMetadata(schemaPath string) (ContractMetadata, error) {
	// #nosec G304 -- schema path is controlled by repository tooling
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return ContractMetadata{}, fmt.Errorf("read schema catalog: %w", err)
	}
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ContractMetadata{}, fmt.Errorf("parse schema catalog: %w", err)
	}
	entities := make(map[string]ContractEntity, len(doc.Entities))
	for _, entity := range doc.Entities {
		properties := make(map[string]struct{}, len(entity.Fields))
		var required []string
		for _, field := range entity.Fields {
			properties[field.Name] = struct{}{}
			if field.Required {
				required = append(required, field.Name)
			}
		}
		sort.Strings(required)
		entities[entity.Name] = ContractEntity{
			Required:   required,
			Properties: properties,
		}
	}
	return ContractMetadata{Version: doc.Version, Entities: entities}, nil
}

type catalogDocument struct {
	Version  string                  `json:"version"`
	Entities []catalogEntityDocument `json:"entities"`
}

type catalogEntityDocument struct {
	Name   string                 `json:"name"`
	Fields []catalogFieldDocument `json:"fields"`
}

type catalogFieldDocument struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// HasProperty determines whether a field is declared in the schema catalog.
func (e ContractEntity) HasProperty(name string) bool {
	if len(e.Properties) == 0 {
		return false
	}
	_, ok := e.Properties[name]
	return ok
}
