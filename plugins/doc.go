// Package plugins hosts plugin implementation subpackages. It intentionally
// contains no production runtime code itself; this file exists to satisfy
// tooling (import-boss, go vet) for the architectural guard tests that live
// alongside it.
//
// Plugin packages depend only on the stable facades in pkg/pluginapi and
// pkg/filing. The guard test alongside this file enforces that boundary:
// neither the internal domain model nor any internal/ package may be
// imported from a plugin.
package plugins
