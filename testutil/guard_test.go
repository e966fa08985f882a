package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDomainImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fragmentcore/pkg/domain", true},
		{"example.com/mod/pkg/domain", true},
		{"example.com/mod/pkg/domain@v1", true},
		{"example.com/mod/pkg/notdomain", false},
		{"example.com/pkg/domain/subpackage", false},
		{"domain/pkg/something", false},
		{"", false},
	}
	for _, c := range cases {
		if got := DomainImportForbidden(c.in); got != c.want {
			t.Fatalf("DomainImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fragmentcore/internal/core", true},
		{"example.com/some/internal/deep/path", true},
		{"example.com/mod/pkg/x", false},
		{"internal", false},
		{"example.com/internal", false},
		{"notinternal", false},
		{"", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestPluginBoundaryForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fragmentcore/pkg/domain", true},
		{"fragmentcore/internal/core", true},
		{"fragmentcore/pkg/pluginapi", false},
		{"fragmentcore/pkg/filing", false},
		{"fmt", false},
	}
	for _, c := range cases {
		if got := PluginBoundaryForbidden(c.in); got != c.want {
			t.Fatalf("PluginBoundaryForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

// TestAssertNoDirectImports exercises the scanner against a tiny temp package:
// safe imports pass, test files and subdirectories and non-Go files are ignored.
func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()

	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	testSrc := []byte("package tmp\nimport \"some/forbidden/package\"\nvar _ = 1\n")
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), testSrc, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o750); err != nil {
		t.Fatalf("create subdir: %v", err)
	}
	subSrc := []byte("package subpkg\nimport \"some/forbidden/package\"\nvar _ = 1\n")
	if err := os.WriteFile(filepath.Join(dir, "subdir", "sub.go"), subSrc, 0o600); err != nil {
		t.Fatalf("write subdir file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("text"), 0o600); err != nil {
		t.Fatalf("write txt file: %v", err)
	}

	AssertNoDirectImports(t, dir, func(ip string) bool {
		return ip == "some/forbidden/package"
	}, "only non-test go files in dir are scanned")
}

func TestAssertNoDirectImportsEmptyDirectory(t *testing.T) {
	AssertNoDirectImports(t, t.TempDir(), func(string) bool { return true }, "empty directory has nothing to forbid")
}

func TestDirectImportViolationsReportsOffenders(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport (\n\t\"fmt\"\n\t\"example.com/mod/internal/hidden\"\n)\nvar _ = fmt.Sprint\n")
	if err := os.WriteFile(filepath.Join(dir, "bad.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "example.com/mod/internal/hidden") {
		t.Fatalf("unexpected violations %v", viols)
	}
	if !strings.Contains(viols[0], "bad.go") {
		t.Fatalf("violation must name the offending file: %v", viols)
	}
}

// TestAssertNoTransitiveDependency runs against the real package with a
// predicate that always returns false to exercise the go list path.
func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, ".", func(string) bool { return false }, "none")
}

func TestTransitiveDependencyViolationsWithStubbedList(t *testing.T) {
	orig := goListDeps
	goListDeps = func(pattern string) ([]byte, error) {
		if pattern != "./..." {
			t.Errorf("unexpected pattern %s", pattern)
		}
		return []byte("fmt\nexample.com/mod/internal/hidden\n\nexample.com/mod/pkg/ok\n"), nil
	}
	defer func() { goListDeps = orig }()

	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "example.com/mod/internal/hidden" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

type fatalRecorder struct {
	called bool
	msg    string
}

func (f *fatalRecorder) Fatalf(format string, args ...any) {
	f.called = true
	f.msg = fmt.Sprintf(format, args...)
}

func TestFailIfViolationsFormatsReport(t *testing.T) {
	rec := &fatalRecorder{}
	failIfViolations(rec, "direct import", "plugins stay on facades", []string{"fragmentcore/pkg/domain (in plugin.go)"})
	if !rec.called {
		t.Fatalf("violations must fail the test")
	}
	for _, want := range []string{"direct import", "plugins stay on facades", "fragmentcore/pkg/domain"} {
		if !strings.Contains(rec.msg, want) {
			t.Fatalf("report %q missing %q", rec.msg, want)
		}
	}

	clean := &fatalRecorder{}
	failIfViolations(clean, "direct import", "none", nil)
	if clean.called {
		t.Fatalf("no violations must not fail")
	}
}
