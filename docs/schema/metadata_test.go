package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"fragmentcore/pkg/domain"
	"fragmentcore/pkg/fragmentapi"
)

func TestCatalogVersion(t *testing.T) {
	got, err := CatalogVersion()
	if err != nil {
		t.Fatalf("CatalogVersion: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty catalog version")
	}

	var doc catalogDoc
	if err := json.Unmarshal(catalogRaw, &doc); err != nil {
		t.Fatalf("unmarshal catalog: %v", err)
	}
	if got != doc.Version {
		t.Fatalf("version mismatch: got %q want %q", got, doc.Version)
	}
}

func TestCatalogMetadata(t *testing.T) {
	got, err := CatalogMetadata()
	if err != nil {
		t.Fatalf("CatalogMetadata: %v", err)
	}
	if got.Status == "" || got.Source == "" {
		t.Fatalf("expected status and source, got %+v", got)
	}

	var doc catalogDoc
	if err := json.Unmarshal(catalogRaw, &doc); err != nil {
		t.Fatalf("unmarshal catalog: %v", err)
	}
	if got.Status != doc.Metadata.Status || got.Source != doc.Metadata.Source {
		t.Fatalf("metadata mismatch: got %+v want %+v", got, doc.Metadata)
	}
}

// jsonFieldNames collects the serialized field names of a struct type,
// flattening embedded structs the way encoding/json does.
func jsonFieldNames(t *testing.T, typ reflect.Type) []string {
	t.Helper()
	var names []string
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Anonymous {
			names = append(names, jsonFieldNames(t, field.Type)...)
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			t.Fatalf("field %s.%s has no json tag", typ.Name(), field.Name)
		}
		name, _, _ := strings.Cut(tag, ",")
		names = append(names, name)
	}
	return names
}

func TestEntitiesCoverSerializedTypes(t *testing.T) {
	cases := []struct {
		entity string
		bucket string
		typ    reflect.Type
	}{
		{entity: "resolution", bucket: "resolutions", typ: reflect.TypeOf(domain.Resolution{})},
		{entity: "plugin_record", bucket: "plugins", typ: reflect.TypeOf(domain.PluginRecord{})},
		{entity: "violation", bucket: "", typ: reflect.TypeOf(domain.Violation{})},
		{entity: "loader_descriptor", bucket: "", typ: reflect.TypeOf(fragmentapi.LoaderDescriptor{})},
	}

	for _, tc := range cases {
		entity, ok, err := LookupEntity(tc.entity)
		if err != nil {
			t.Fatalf("LookupEntity(%s): %v", tc.entity, err)
		}
		if !ok {
			t.Fatalf("catalog is missing entity %s", tc.entity)
		}
		if entity.Bucket != tc.bucket {
			t.Fatalf("entity %s bucket: got %q want %q", tc.entity, entity.Bucket, tc.bucket)
		}
		if entity.Description == "" {
			t.Fatalf("entity %s has no description", tc.entity)
		}

		declared := map[string]bool{}
		for _, field := range entity.Fields {
			if field.Type == "" {
				t.Fatalf("entity %s field %s has no type", tc.entity, field.Name)
			}
			declared[field.Name] = true
		}
		serialized := jsonFieldNames(t, tc.typ)
		for _, name := range serialized {
			if !declared[name] {
				t.Fatalf("entity %s is missing serialized field %s", tc.entity, name)
			}
		}
		if len(declared) != len(serialized) {
			t.Fatalf("entity %s declares %d fields, type serializes %d", tc.entity, len(declared), len(serialized))
		}
	}
}

func TestBucketsMatchPersistentStores(t *testing.T) {
	got, err := Buckets()
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	want := []string{"resolutions", "plugins"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("buckets mismatch: got %v want %v", got, want)
	}
}

func TestEntitiesReturnsCopy(t *testing.T) {
	first, err := Entities()
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected catalog entities")
	}
	first[0].Name = "mutant"

	second, err := Entities()
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if second[0].Name == "mutant" {
		t.Fatal("Entities did not return a copy")
	}
}
