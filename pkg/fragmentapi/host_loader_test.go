package fragmentapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func validTemplate(t *testing.T) LoaderTemplate {
	t.Helper()
	return LoaderTemplate{
		Prefix:      "fec",
		Version:     "0.1.0",
		Title:       "FEC electronic filing",
		Description: "filing fragments",
		Metadata: Metadata{
			Documentation: "docs",
			Tags:          []string{"fec"},
			Annotations:   map[string]string{"k": "v"},
		},
		Binder: func(env Environment) (Runner, error) {
			if env.Now == nil {
				t.Fatalf("expected now function")
			}
			return func(_ context.Context, req Request) (Fragment, error) {
				return Fragment{
					Source:   "fec:" + req.Argument,
					Content:  "content for " + req.Argument,
					Metadata: map[string]any{"form_type": "F3"},
				}, nil
			}, nil
		},
	}
}

func TestNewHostLoaderAndResolve(t *testing.T) {
	host, err := NewHostLoader("fecfile", validTemplate(t))
	if err != nil {
		t.Fatalf("NewHostLoader: %v", err)
	}
	if host.Slug() != "fecfile/fec@0.1.0" {
		t.Fatalf("unexpected slug: %s", host.Slug())
	}
	if host.Prefix() != "fec" {
		t.Fatalf("unexpected prefix: %s", host.Prefix())
	}
	if err := host.Bind(Environment{Now: func() time.Time { return time.Unix(0, 0) }}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	frag, err := host.Resolve(context.Background(), Request{Ref: "fec:123", Prefix: "fec", Argument: "123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if frag.Source != "fec:123" {
		t.Fatalf("unexpected source: %s", frag.Source)
	}
	if !strings.Contains(frag.Content, "123") {
		t.Fatalf("unexpected content: %s", frag.Content)
	}

	descriptor := host.Descriptor()
	if descriptor.Slug != "fecfile/fec@0.1.0" || descriptor.Plugin != "fecfile" {
		t.Fatalf("unexpected descriptor: %+v", descriptor)
	}
	descriptor.Metadata.Annotations["k"] = "mutated"
	if host.Descriptor().Metadata.Annotations["k"] != "v" {
		t.Fatalf("descriptor metadata should be cloned")
	}
}

func TestNewHostLoaderValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LoaderTemplate)
	}{
		{"missing prefix", func(tpl *LoaderTemplate) { tpl.Prefix = "" }},
		{"bad prefix", func(tpl *LoaderTemplate) { tpl.Prefix = "FEC-data" }},
		{"missing version", func(tpl *LoaderTemplate) { tpl.Version = "" }},
		{"missing title", func(tpl *LoaderTemplate) { tpl.Title = "" }},
		{"missing binder", func(tpl *LoaderTemplate) { tpl.Binder = nil }},
	}
	for _, tc := range cases {
		tpl := validTemplate(t)
		tc.mutate(&tpl)
		if _, err := NewHostLoader("fecfile", tpl); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestHostLoaderResolveUnbound(t *testing.T) {
	host, err := NewHostLoader("fecfile", validTemplate(t))
	if err != nil {
		t.Fatalf("NewHostLoader: %v", err)
	}
	if _, err := host.Resolve(context.Background(), Request{Ref: "fec:1", Prefix: "fec", Argument: "1"}); err == nil {
		t.Fatalf("expected unbound loader error")
	}
}

func TestHostLoaderResolvePrefixMismatch(t *testing.T) {
	host, err := NewHostLoader("fecfile", validTemplate(t))
	if err != nil {
		t.Fatalf("NewHostLoader: %v", err)
	}
	if err := host.Bind(Environment{Now: time.Now}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := host.Resolve(context.Background(), Request{Ref: "sec:1", Prefix: "sec", Argument: "1"}); err == nil {
		t.Fatalf("expected prefix mismatch error")
	}
}

func TestHostLoaderBindErrors(t *testing.T) {
	tpl := validTemplate(t)
	tpl.Binder = func(Environment) (Runner, error) { return nil, errors.New("bind failure") }
	host, err := NewHostLoader("fecfile", tpl)
	if err != nil {
		t.Fatalf("NewHostLoader: %v", err)
	}
	if err := host.Bind(Environment{Now: time.Now}); err == nil {
		t.Fatalf("expected binder error")
	}

	tpl = validTemplate(t)
	tpl.Binder = func(Environment) (Runner, error) { return nil, nil }
	host, err = NewHostLoader("fecfile", tpl)
	if err != nil {
		t.Fatalf("NewHostLoader: %v", err)
	}
	if err := host.Bind(Environment{Now: time.Now}); err == nil {
		t.Fatalf("expected nil runner error")
	}
}

func TestHostLoaderDefaultsSourceToRef(t *testing.T) {
	tpl := validTemplate(t)
	tpl.Binder = func(Environment) (Runner, error) {
		return func(context.Context, Request) (Fragment, error) {
			return Fragment{Content: "no source"}, nil
		}, nil
	}
	host, err := NewHostLoader("fecfile", tpl)
	if err != nil {
		t.Fatalf("NewHostLoader: %v", err)
	}
	if err := host.Bind(Environment{Now: time.Now}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	frag, err := host.Resolve(context.Background(), Request{Ref: "fec:9", Prefix: "fec", Argument: "9"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if frag.Source != "fec:9" {
		t.Fatalf("expected ref fallback source, got %q", frag.Source)
	}
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		ref      string
		prefix   string
		argument string
		wantErr  bool
	}{
		{"fec:1690664", "fec", "1690664", false},
		{" fec:1690664 ", "fec", "1690664", false},
		{"fec:a:b", "fec", "a:b", false},
		{"", "", "", true},
		{"fec", "", "", true},
		{":123", "", "", true},
		{"fec:", "", "", true},
	}
	for _, tc := range cases {
		req, err := ParseRef(tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRef(%q): expected error", tc.ref)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", tc.ref, err)
		}
		if req.Prefix != tc.prefix || req.Argument != tc.argument {
			t.Fatalf("ParseRef(%q) = %q, %q", tc.ref, req.Prefix, req.Argument)
		}
		if req.Ref != strings.TrimSpace(tc.ref) {
			t.Fatalf("ParseRef(%q) kept ref %q", tc.ref, req.Ref)
		}
	}
}

func TestSortLoaderDescriptors(t *testing.T) {
	descriptors := []LoaderDescriptor{
		{Plugin: "zeta", Prefix: "b", Version: "1"},
		{Plugin: "alpha", Prefix: "b", Version: "2"},
		{Plugin: "alpha", Prefix: "b", Version: "1"},
		{Plugin: "alpha", Prefix: "a", Version: "1"},
	}
	SortLoaderDescriptors(descriptors)
	want := []string{"alpha/a@1", "alpha/b@1", "alpha/b@2", "zeta/b@1"}
	for i, d := range descriptors {
		if got := slugFor(d.Plugin, d.Prefix, d.Version); got != want[i] {
			t.Fatalf("position %d: got %s want %s", i, got, want[i])
		}
	}
}
