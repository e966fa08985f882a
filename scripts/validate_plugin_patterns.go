// validate_plugin_patterns.go provides static validation of plugin code to
// ensure adherence to the plugin API boundary and the schema catalog.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"fragmentcore/internal/validation"
)

var defaultSchemaPath = "docs/schema/schema.json"

func main() {
	os.Exit(run(
		os.Args,
		os.Stderr,
		validation.ValidatePluginDirectory,
		validation.ValidateContractFlows,
	))
}

func run(args []string, stderr io.Writer, validate func(string) []validation.Error, enforceFlows func(string, string) []validation.Error) int {
	if len(args) < 2 {
		progName := "validate_plugin_patterns"
		if len(args) > 0 {
			progName = args[0]
		}
		if _, err := fmt.Fprintf(stderr, "Usage: %s <plugin-directory> [schema.json]\n", progName); err != nil {
			return 1
		}
		return 1
	}

	pluginDir := args[1]
	schemaPath := defaultSchemaPath
	if len(args) >= 3 && strings.TrimSpace(args[2]) != "" {
		schemaPath = args[2]
	}

	if errors := validate(pluginDir); len(errors) > 0 {
		if _, err := fmt.Fprintf(stderr, "❌ Found %d plugin API boundary violations:\n\n", len(errors)); err != nil {
			return 1
		}
		for _, err := range errors {
			if _, writeErr := fmt.Fprintf(stderr, "🚨 %s:%d\n", err.File, err.Line); writeErr != nil {
				return 1
			}
			if _, writeErr := fmt.Fprintf(stderr, "   %s\n", err.Message); writeErr != nil {
				return 1
			}
			if _, writeErr := fmt.Fprintf(stderr, "   Code: %s\n\n", err.Code); writeErr != nil {
				return 1
			}
		}
		return 1
	}

	if flowErrors := enforceFlows(pluginDir, schemaPath); len(flowErrors) > 0 {
		if _, err := fmt.Fprintf(stderr, "❌ Found %d plugin contract flow violations:\n\n", len(flowErrors)); err != nil {
			return 1
		}
		for _, err := range flowErrors {
			if _, writeErr := fmt.Fprintf(stderr, "🚨 %s\n", err.File); writeErr != nil {
				return 1
			}
			if _, writeErr := fmt.Fprintf(stderr, "   %s\n\n", err.Message); writeErr != nil {
				return 1
			}
		}
		return 1
	}
	return 0
}
