package integration

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// TestAPIBoundaryEnforcement performs comprehensive validation of the public
// API boundary across the entire codebase. Plugins build against pkg/ only,
// so the packages there must stay self-contained and keep the contracts that
// installed plugins compile against.
func TestAPIBoundaryEnforcement(t *testing.T) {
	// Find repository root by looking for go.mod
	repoRoot, err := findRepositoryRoot()
	if err != nil {
		t.Fatalf("Failed to find repository root: %v", err)
	}

	t.Run("public packages do not import internal packages", func(t *testing.T) {
		validatePublicPackagesStandAlone(t, repoRoot)
	})

	t.Run("api interfaces keep their required methods", func(t *testing.T) {
		validateAPIInterfacesKeepMethods(t, repoRoot)
	})

	t.Run("no raw severity literals in plugin implementations", func(t *testing.T) {
		validateNoRawSeverityLiteralsInPlugins(t, repoRoot)
	})

	t.Run("public constructors stay available", func(t *testing.T) {
		validatePublicConstructorsAvailable(t, repoRoot)
	})
}

// validatePublicPackagesStandAlone scans every package under pkg/ and ensures
// none of them import internal/ packages. Plugins vendor only pkg/, so a
// pkg -> internal edge would drag host internals into every plugin build.
func validatePublicPackagesStandAlone(t *testing.T, baseDir string) {
	err := filepath.Walk(filepath.Join(baseDir, "pkg"), func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		src, err := os.ReadFile(path) //nolint:gosec // Path comes from controlled filepath.Walk
		if err != nil {
			return err
		}

		file, err := parser.ParseFile(fset, path, src, parser.ImportsOnly)
		if err != nil {
			return err
		}

		for _, imp := range file.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if strings.HasPrefix(importPath, "fragmentcore/internal/") {
				t.Errorf("Public package file %s imports internal package %s", path, importPath)
			}
		}

		return nil
	})

	if err != nil {
		t.Fatalf("Failed to scan public packages: %v", err)
	}
}

// validateAPIInterfacesKeepMethods scans pkg/ for the interfaces plugins and
// stores implement and ensures none of their methods quietly disappear.
func validateAPIInterfacesKeepMethods(t *testing.T, baseDir string) {
	// Define the method sets installed plugins and drivers compile against.
	requiredPatterns := map[string][]string{
		"Plugin":          {"Name", "Version", "Register"},
		"Registry":        {"RegisterFragmentLoader", "RegisterRule"},
		"Rule":            {"Name", "Evaluate"},
		"Source":          {"ByID", "FromBytes"},
		"Doer":            {"Do"},
		"Logger":          {"Debug", "Info", "Warn", "Error"},
		"PersistentStore": {"AppendResolution", "ListResolutions", "GetResolution", "PutPluginRecord", "ListPluginRecords", "Close"},
	}

	err := filepath.Walk(filepath.Join(baseDir, "pkg"), func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		src, err := os.ReadFile(path) //nolint:gosec // Path comes from controlled filepath.Walk
		if err != nil {
			return err
		}

		file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
		if err != nil {
			return err
		}

		ast.Inspect(file, func(n ast.Node) bool {
			if typeSpec, ok := n.(*ast.TypeSpec); ok {
				if interfaceType, ok := typeSpec.Type.(*ast.InterfaceType); ok {
					interfaceName := typeSpec.Name.Name
					if requiredMethods, exists := requiredPatterns[interfaceName]; exists {
						validateInterfaceHasMethods(t, path, interfaceName, interfaceType, requiredMethods)
					}
				}
			}
			return true
		})

		return nil
	})

	if err != nil {
		t.Fatalf("Failed to scan api interfaces: %v", err)
	}
}

func validateInterfaceHasMethods(t *testing.T, filePath, interfaceName string, interfaceAST *ast.InterfaceType, requiredMethods []string) {
	// Extract method names from the interface
	existingMethods := make(map[string]bool)
	for _, method := range interfaceAST.Methods.List {
		if len(method.Names) > 0 {
			existingMethods[method.Names[0].Name] = true
		}
	}

	// Check that all required methods exist
	for _, requiredMethod := range requiredMethods {
		if !existingMethods[requiredMethod] {
			t.Errorf("Interface %s in %s is missing required method: %s",
				interfaceName, filePath, requiredMethod)
		}
	}
}

// validateNoRawSeverityLiteralsInPlugins scans plugin implementations to
// ensure rule violations are graded via the exported pluginapi severity
// constants instead of raw string literals or direct domain references.
func validateNoRawSeverityLiteralsInPlugins(t *testing.T, baseDir string) {
	// Define forbidden raw severity patterns
	forbiddenPatterns := []*regexp.Regexp{
		regexp.MustCompile(`Severity:\s*"(block|warn|log)"`),
		regexp.MustCompile(`\bdomain\.Severity(Block|Warn|Log)\b`),
		regexp.MustCompile(`\bdomain\.(Violation|Result|RuleContext)\b`),
	}

	pluginDir := filepath.Join(baseDir, "plugins")
	err := filepath.Walk(pluginDir, func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		content, err := os.ReadFile(path) //nolint:gosec // Path comes from controlled filepath.Walk
		if err != nil {
			return err
		}

		contentStr := string(content)

		for _, pattern := range forbiddenPatterns {
			if matches := pattern.FindAllStringIndex(contentStr, -1); len(matches) > 0 {
				lines := strings.Split(contentStr, "\n")
				for _, match := range matches {
					// Find line number
					lineNum := strings.Count(contentStr[:match[0]], "\n") + 1
					matchedText := contentStr[match[0]:match[1]]

					// Skip comments (basic heuristic)
					if lineNum <= len(lines) {
						line := lines[lineNum-1]
						if strings.Contains(line, "//") && strings.Index(line, "//") < strings.Index(line, matchedText) {
							continue
						}
					}

					t.Errorf("Plugin %s line %d: Found raw severity usage '%s' - grade violations via pluginapi constants",
						path, lineNum, matchedText)
				}
			}
		}

		return nil
	})

	if err != nil {
		t.Fatalf("Failed to scan plugins directory: %v", err)
	}
}

// validatePublicConstructorsAvailable ensures the factory functions plugin
// and host code build on keep shipping with the public packages.
func validatePublicConstructorsAvailable(t *testing.T, baseDir string) {
	constructors := []string{"NewHostLoader", "ParseRef", "SortLoaderDescriptors",
		"DecodeDocument", "NewHTTPSource", "NewRulesEngine"}

	for _, constructor := range constructors {
		found := false
		err := filepath.Walk(filepath.Join(baseDir, "pkg"), func(path string, _ os.FileInfo, err error) error {
			if err != nil || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return err
			}

			content, err := os.ReadFile(path) //nolint:gosec // Path comes from controlled filepath.Walk
			if err != nil {
				return err
			}

			if strings.Contains(string(content), "func "+constructor) {
				found = true
			}

			return nil
		})

		if err != nil {
			t.Fatalf("Failed to check for constructor %s: %v", constructor, err)
		}

		if !found {
			t.Errorf("Missing public constructor function: %s", constructor)
		}
	}
}

// findRepositoryRoot finds the repository root by looking for go.mod file
func findRepositoryRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find go.mod file")
}
