package core

import (
	"errors"
	"fmt"
	"sort"

	"fragmentcore/pkg/fragmentapi"
)

// Sentinel errors reported by plugin installation and fragment resolution.
var (
	// ErrNilPlugin is returned when a nil plugin is installed.
	ErrNilPlugin = errors.New("plugin cannot be nil")
	// ErrDuplicatePlugin is returned when a plugin name is already installed.
	ErrDuplicatePlugin = errors.New("plugin already registered")
	// ErrDuplicateLoader is returned when two loaders claim the same prefix.
	ErrDuplicateLoader = errors.New("fragment loader already registered")
	// ErrUnknownPrefix is returned when no installed loader serves a prefix.
	ErrUnknownPrefix = errors.New("no fragment loader registered for prefix")
)

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	loaders map[string]fragmentapi.LoaderTemplate
	rules   []Rule
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		loaders: make(map[string]fragmentapi.LoaderTemplate),
	}
}

// RegisterFragmentLoader stores a fragment loader template contributed by the
// plugin. Templates are keyed by prefix and version so a plugin cannot claim
// the same prefix twice.
func (r *PluginRegistry) RegisterFragmentLoader(template fragmentapi.LoaderTemplate) error {
	key := fmt.Sprintf("%s@%s", template.Prefix, template.Version)
	if _, exists := r.loaders[key]; exists {
		return fmt.Errorf("fragment loader %s already registered", key)
	}
	r.loaders[key] = template
	return nil
}

// RegisterRule adds a resolution rule contributed by the plugin.
func (r *PluginRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// FragmentLoaders returns registered loader templates ordered by prefix and
// version.
func (r *PluginRegistry) FragmentLoaders() []fragmentapi.LoaderTemplate {
	out := make([]fragmentapi.LoaderTemplate, 0, len(r.loaders))
	for _, template := range r.loaders {
		out = append(out, template)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prefix == out[j].Prefix {
			return out[i].Version < out[j].Version
		}
		return out[i].Prefix < out[j].Prefix
	})
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name       string
	Version    string
	APIVersion string
	Loaders    []fragmentapi.LoaderDescriptor
	Rules      []string
}
