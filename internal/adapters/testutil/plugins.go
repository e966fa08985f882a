// Package testutil hosts helper utilities for fragment adapter tests.
// It intentionally encapsulates access to runtime plugins so the production
// adapter packages never depend on plugin implementations directly.
package testutil

import (
	"context"

	"fragmentcore/internal/core"
	"fragmentcore/pkg/filing"
	"fragmentcore/plugins/fecfile"
)

// InstallFecfilePlugin installs the FEC filing plugin backed by the provided
// source and returns its metadata. Tests rely on this helper to resolve fec
// fragments without importing runtime plugin packages, preserving the
// adapter-layer boundary.
func InstallFecfilePlugin(ctx context.Context, svc *core.Service, src filing.Source) (core.PluginMetadata, error) {
	return svc.InstallPlugin(ctx, fecfile.New(src))
}
