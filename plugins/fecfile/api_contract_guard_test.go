package fecfile

import (
	"strings"
	"testing"

	"fragmentcore/testutil"
)

// TestAPIBoundaryGuards enforces that the fecfile plugin does not directly or
// transitively depend on forbidden internal or domain packages.
func TestAPIBoundaryGuards(t *testing.T) {
	// Direct imports guard.
	testutil.AssertNoDirectImports(t, ".", testutil.PluginBoundaryForbidden,
		"plugins depend only on pkg/pluginapi and pkg/filing")

	// Transitive dependency guard. pkg/pluginapi aliases domain types, so the
	// domain package itself legitimately appears in the dependency closure, and
	// the standard library carries its own internal/ paths; what must not appear
	// is anything under this module's internal/ tree.
	testutil.AssertNoTransitiveDependency(t, "./...", func(p string) bool {
		return strings.HasPrefix(p, "fragmentcore/internal/")
	}, "transitive dependency on fragmentcore internal packages disallowed")
}
