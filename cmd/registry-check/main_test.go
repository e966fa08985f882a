package main

import (
	"bytes"
	"context"
	"os"
	"reflect"
	"strings"
	"testing"

	"fragmentcore/docs/schema"
	"fragmentcore/pkg/pluginapi"
	"fragmentcore/plugins/fecfile"
)

func TestBuildReport(t *testing.T) {
	report, err := buildReport(context.Background())
	if err != nil {
		t.Fatalf("buildReport returned error: %v", err)
	}
	if report.APIVersion != pluginapi.Version {
		t.Fatalf("expected api version %q, got %q", pluginapi.Version, report.APIVersion)
	}
	catalogVersion, err := schema.CatalogVersion()
	if err != nil {
		t.Fatalf("catalog version: %v", err)
	}
	if report.CatalogVersion != catalogVersion {
		t.Fatalf("expected catalog version %q, got %q", catalogVersion, report.CatalogVersion)
	}

	if len(report.Plugins) != 1 {
		t.Fatalf("expected one plugin, got %#v", report.Plugins)
	}
	plugin := report.Plugins[0]
	if plugin.Name != "fecfile" || plugin.Version != "0.1.0" || plugin.APIVersion != pluginapi.Version {
		t.Fatalf("unexpected plugin entry: %#v", plugin)
	}
	if !reflect.DeepEqual(plugin.Loaders, []string{"fecfile/fec@0.1.0"}) {
		t.Fatalf("unexpected plugin loaders: %#v", plugin.Loaders)
	}
	if !reflect.DeepEqual(plugin.Rules, []string{"fec_source_format"}) {
		t.Fatalf("unexpected plugin rules: %#v", plugin.Rules)
	}

	if len(report.Loaders) != 1 {
		t.Fatalf("expected one loader, got %#v", report.Loaders)
	}
	loader := report.Loaders[0]
	if loader.Slug != "fecfile/fec@0.1.0" || loader.Plugin != "fecfile" || loader.Prefix != "fec" || loader.Version != "0.1.0" {
		t.Fatalf("unexpected loader entry: %#v", loader)
	}
	if loader.Title == "" {
		t.Fatal("expected loader title to be populated")
	}

	wantRules := []string{"fragment_content_presence", "fragment_content_size", "fec_source_format"}
	if !reflect.DeepEqual(report.Rules, wantRules) {
		t.Fatalf("expected rules %v, got %v", wantRules, report.Rules)
	}
}

func TestBuildReportInstallFailure(t *testing.T) {
	orig := builtinPlugins
	defer func() { builtinPlugins = orig }()
	builtinPlugins = func() []pluginapi.Plugin {
		return []pluginapi.Plugin{fecfile.New(nil), fecfile.New(nil)}
	}
	if _, err := buildReport(context.Background()); err == nil || !strings.Contains(err.Error(), "install fecfile") {
		t.Fatalf("expected duplicate install error, got %v", err)
	}
}

func TestVerifyReport(t *testing.T) {
	report := Report{
		APIVersion: pluginapi.Version,
		Plugins: []PluginEntry{{
			Name:       "fecfile",
			Version:    "0.1.0",
			APIVersion: pluginapi.Version,
			Loaders:    []string{"fecfile/fec@0.1.0"},
			Rules:      []string{"fec_source_format"},
		}},
		Loaders: []LoaderEntry{{Slug: "fecfile/fec@0.1.0", Plugin: "fecfile", Prefix: "fec", Version: "0.1.0"}},
		Rules:   []string{"fragment_content_presence", "fec_source_format"},
	}
	if err := verifyReport(report, nil, nil); err != nil {
		t.Fatalf("expected clean verification, got %v", err)
	}
	if err := verifyReport(report, []string{"fecfile/fec@0.1.0"}, []string{"fec_source_format"}); err != nil {
		t.Fatalf("expected expectations to hold, got %v", err)
	}
	if err := verifyReport(report, []string{"fecfile/xml@0.1.0"}, nil); err == nil || !strings.Contains(err.Error(), "expected loader") {
		t.Fatalf("expected missing loader error, got %v", err)
	}
	if err := verifyReport(report, nil, []string{"missing_rule"}); err == nil || !strings.Contains(err.Error(), "expected rule") {
		t.Fatalf("expected missing rule error, got %v", err)
	}

	if err := verifyReport(Report{}, nil, nil); err == nil || !strings.Contains(err.Error(), "no plugins") {
		t.Fatalf("expected empty registry error, got %v", err)
	}

	stale := report
	stale.Plugins = []PluginEntry{{Name: "fecfile", APIVersion: "v0", Loaders: []string{"fecfile/fec@0.1.0"}}}
	if err := verifyReport(stale, nil, nil); err == nil || !strings.Contains(err.Error(), "api version") {
		t.Fatalf("expected api version error, got %v", err)
	}

	hollow := report
	hollow.Plugins = []PluginEntry{{Name: "hollow", APIVersion: pluginapi.Version}}
	if err := verifyReport(hollow, nil, nil); err == nil || !strings.Contains(err.Error(), "neither loaders nor rules") {
		t.Fatalf("expected hollow plugin error, got %v", err)
	}
}

func TestStringList(t *testing.T) {
	var list stringList
	if err := list.Set("a"); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := list.Set(" b "); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if got := list.String(); got != "a,b" {
		t.Fatalf("expected a,b, got %q", got)
	}
	if err := list.Set("  "); err == nil {
		t.Fatal("expected error for blank value")
	}
}

func TestCLI(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := cli([]string{"-expect-loader", "fecfile/fec@0.1.0", "-expect-rule", "fec_source_format"}, &out, &errBuf)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%s)", code, errBuf.String())
	}
	if !strings.Contains(out.String(), "Registry check passed") {
		t.Fatalf("expected success message, got %q", out.String())
	}

	out.Reset()
	errBuf.Reset()
	code = cli([]string{"-expect-loader", "fecfile/pdf@9.9.9"}, &out, &errBuf)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errBuf.String(), "Registry check failed") {
		t.Fatalf("expected failure message, got %q", errBuf.String())
	}

	errBuf.Reset()
	code = cli([]string{"--invalid-flag"}, &out, &errBuf)
	if code != 2 {
		t.Fatalf("expected exit code 2 for flag error, got %d", code)
	}
}

func TestMainFunction(t *testing.T) {
	origExit := exitFunc
	defer func() { exitFunc = origExit }()
	exitCode := -1
	exitFunc = func(code int) { exitCode = code }
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"registry-check", "-list-rules"}
	main()
	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
}
