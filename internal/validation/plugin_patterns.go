// Package validation provides static conformance checks for fragment plugin code.
package validation

import (
	"bufio"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Error represents a plugin conformance violation found in code.
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

// ValidatePluginDirectory validates all Go files in a plugin directory for
// conformance with the plugin API boundary.
func ValidatePluginDirectory(dir string) []Error {
	var errors []Error

	err := filepath.Walk(dir, func(path string, _ os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fileErrors := validatePluginFile(path)
		errors = append(errors, fileErrors...)
		return nil
	})

	if err != nil {
		errors = append(errors, Error{
			File:    dir,
			Line:    0,
			Message: "Failed to walk directory: " + err.Error(),
			Code:    "",
		})
	}

	return errors
}

func validatePluginFile(filePath string) []Error {
	var errors []Error

	// Text-based validation (catches string patterns)
	textErrors := validateFileText(filePath)
	errors = append(errors, textErrors...)

	// AST-based validation (catches imports and call sites)
	astErrors := validateFileAST(filePath)
	errors = append(errors, astErrors...)

	return errors
}

func validateFileText(filePath string) []Error {
	var errors []Error

	file, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		return append(errors, Error{
			File:    filePath,
			Line:    0,
			Message: "Failed to open file: " + err.Error(),
			Code:    "",
		})
	}
	defer func() {
		_ = file.Close()
	}()

	antiPatterns := getAntiPatterns()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if strings.TrimSpace(line) == "" || isCommentLine(line) {
			continue
		}

		for pattern, message := range antiPatterns {
			if matched, _ := regexp.MatchString(pattern, line); matched {
				errors = append(errors, Error{
					File:    filePath,
					Line:    lineNum,
					Message: message,
					Code:    strings.TrimSpace(line),
				})
			}
		}
	}

	return errors
}

func getAntiPatterns() map[string]string {
	return map[string]string{
		`Severity:\s*"(block|warn|log)"`:               "Use pluginapi.SeverityBlock, SeverityWarn, or SeverityLog instead of raw string literals",
		`\bdomain\.Severity(Block|Warn|Log)\b`:         "Use the pluginapi severity constants; plugins do not reach into the domain package",
		`\bdomain\.(Violation|Result|RuleContext)\b`:   "Use the pluginapi aliases instead of domain types",
		`\bhttp\.(Get|Post|PostForm|Head)\(`:           "Use the Doer injected through the loader environment instead of package-level HTTP helpers",
		`\bhttp\.DefaultClient\b`:                      "Use the Doer injected through the loader environment",
		`\bStatus:\s*"(succeeded|failed)"`:             "Resolution status is assigned by the host; plugins never set it",
		`\b(log|fmt)\.Print(f|ln)?\(`:                  "Use the Logger injected through the loader environment",
		`\bos\.(Getenv|LookupEnv)\(`:                   "Plugins receive configuration through their constructors, not the process environment",
		`\bfragmentcore/internal/[a-z]`:                "Plugins import only the public pkg API",
		`\bcontext\.(Background|TODO)\(\).*\.(ByID|FromBytes|Do)\(`: "Propagate the request context instead of creating a fresh one",
	}
}

func validateFileAST(filePath string) []Error {
	var errors []Error

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		// If we can't parse it, skip AST validation
		return errors
	}

	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		if message, forbidden := forbiddenImportMessage(importPath); forbidden {
			pos := fset.Position(spec.Pos())
			errors = append(errors, Error{
				File:    pos.Filename,
				Line:    pos.Line,
				Message: message,
				Code:    "import " + spec.Path.Value,
			})
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			errors = append(errors, validateCallExpr(fset, node)...)
		case *ast.SelectorExpr:
			errors = append(errors, validateSelector(fset, node)...)
		}
		return true
	})

	return errors
}

func forbiddenImportMessage(importPath string) (string, bool) {
	switch {
	case strings.HasPrefix(importPath, "fragmentcore/internal/"):
		return "Plugins import only the public pkg API, never internal packages", true
	case importPath == "net/http":
		return "Plugins receive HTTP access through the loader environment, not net/http directly", true
	case importPath == "fragmentcore/pkg/domain":
		return "Plugins use the pluginapi aliases instead of importing the domain package", true
	}
	return "", false
}

func validateCallExpr(fset *token.FileSet, call *ast.CallExpr) []Error {
	var errors []Error

	if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
		if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == "time" && sel.Sel.Name == "Now" {
			pos := fset.Position(call.Pos())
			errors = append(errors, Error{
				File:    pos.Filename,
				Line:    pos.Line,
				Message: "Use the clock injected through the loader environment instead of time.Now",
				Code:    "time.Now()",
			})
		}
	}

	return errors
}

func validateSelector(fset *token.FileSet, sel *ast.SelectorExpr) []Error {
	var errors []Error

	if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == "domain" {
		pos := fset.Position(sel.Pos())
		errors = append(errors, Error{
			File:    pos.Filename,
			Line:    pos.Line,
			Message: "Use the pluginapi aliases instead of domain." + sel.Sel.Name,
			Code:    "domain." + sel.Sel.Name,
		})
	}

	return errors
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*")
}
