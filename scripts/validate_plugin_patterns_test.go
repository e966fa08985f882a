package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"fragmentcore/internal/validation"
)

func TestRunUsage(t *testing.T) {
	var stderr bytes.Buffer
	exitCode := run([]string{"validate_plugin_patterns"}, &stderr, validation.ValidatePluginDirectory, validation.ValidateContractFlows)
	if exitCode == 0 {
		t.Fatalf("expected non-zero exit code for missing args")
	}
	out := stderr.String()
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage message, got %q", out)
	}
}

func TestRunAgainstShippedPlugin(t *testing.T) {
	var stderr bytes.Buffer
	exitCode := run(
		[]string{"validate_plugin_patterns", filepath.Join("..", "plugins", "fecfile"), filepath.Join("..", "docs", "schema", "schema.json")},
		&stderr,
		validation.ValidatePluginDirectory,
		validation.ValidateContractFlows,
	)
	if exitCode != 0 {
		t.Fatalf("expected success exit code, got %d: %s", exitCode, stderr.String())
	}
	if stderr.Len() != 0 {
		t.Fatalf("expected no stderr output, got %q", stderr.String())
	}
}

func TestRunWithBoundaryViolations(t *testing.T) {
	var stderr bytes.Buffer
	mockErrors := []validation.Error{
		{File: "plugin/file.go", Line: 12, Message: "bad practice", Code: `Severity: "block"`},
	}
	exitCode := run(
		[]string{"validate_plugin_patterns", "plugin"},
		&stderr,
		func(string) []validation.Error { return mockErrors },
		validation.ValidateContractFlows,
	)
	if exitCode == 0 {
		t.Fatalf("expected non-zero exit code when violations reported")
	}
	output := stderr.String()
	if !strings.Contains(output, "plugin API boundary violations") {
		t.Fatalf("expected violation header, got %q", output)
	}
	if !strings.Contains(output, mockErrors[0].File) || !strings.Contains(output, mockErrors[0].Message) {
		t.Fatalf("expected error details in output, got %q", output)
	}
}

func TestRunWithFlowViolations(t *testing.T) {
	var stderr bytes.Buffer
	mockErrors := []validation.Error{
		{File: "plugin/contract_flows/sample.json", Message: "payload missing required fields: status"},
	}
	exitCode := run(
		[]string{"validate_plugin_patterns", "plugin", "schema.json"},
		&stderr,
		func(string) []validation.Error { return nil },
		func(pluginDir, schemaPath string) []validation.Error {
			if pluginDir != "plugin" || schemaPath != "schema.json" {
				t.Fatalf("unexpected arguments %q %q", pluginDir, schemaPath)
			}
			return mockErrors
		},
	)
	if exitCode == 0 {
		t.Fatalf("expected non-zero exit code when flow violations reported")
	}
	output := stderr.String()
	if !strings.Contains(output, "plugin contract flow violations") {
		t.Fatalf("expected flow header, got %q", output)
	}
	if !strings.Contains(output, mockErrors[0].Message) {
		t.Fatalf("expected flow details in output, got %q", output)
	}
}
