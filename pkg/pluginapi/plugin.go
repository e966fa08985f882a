package pluginapi

import (
	"fragmentcore/pkg/domain"
	"fragmentcore/pkg/fragmentapi"
)

// Registry accumulates plugin contributions during installation.
type Registry interface {
	RegisterFragmentLoader(template fragmentapi.LoaderTemplate) error
	RegisterRule(rule domain.Rule)
}

// Plugin describes a module that contributes fragment loaders and rules.
type Plugin interface {
	Name() string
	Version() string
	Register(Registry) error
}

// Version is the plugin API contract version recorded for every install.
const Version = "v1"
