package fragmentapi

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// HostLoader encapsulates a plugin-provided LoaderTemplate together with
// host-specific runtime state (bound runner, plugin name, validation
// helpers).
type HostLoader struct {
	plugin  string
	tpl     LoaderTemplate
	runtime Runner
}

// NewHostLoader constructs a HostLoader for the given plugin/template pair
// after performing structural validation. The returned loader has no bound
// runner; callers must invoke Bind with the runtime environment before
// resolving.
func NewHostLoader(plugin string, tpl LoaderTemplate) (*HostLoader, error) {
	if err := validateTemplate(tpl); err != nil {
		return nil, err
	}
	return &HostLoader{plugin: strings.TrimSpace(plugin), tpl: cloneTemplate(tpl)}, nil
}

// Plugin returns the plugin identifier associated with the loader.
func (h *HostLoader) Plugin() string { return h.plugin }

// Prefix returns the fragment prefix the loader serves.
func (h *HostLoader) Prefix() string { return h.tpl.Prefix }

// Template returns a defensive copy of the underlying template metadata.
func (h *HostLoader) Template() LoaderTemplate { return cloneTemplate(h.tpl) }

// Descriptor produces a LoaderDescriptor snapshot including plugin metadata
// and computed slug.
func (h *HostLoader) Descriptor() LoaderDescriptor {
	return LoaderDescriptor{
		Plugin:      h.plugin,
		Prefix:      h.tpl.Prefix,
		Version:     h.tpl.Version,
		Title:       h.tpl.Title,
		Description: h.tpl.Description,
		Metadata:    cloneLoaderMetadata(h.tpl.Metadata),
		Slug:        slugFor(h.plugin, h.tpl.Prefix, h.tpl.Version),
	}
}

// Slug returns the canonical identifier for the loader (plugin/prefix@version).
func (h *HostLoader) Slug() string {
	return slugFor(h.plugin, h.tpl.Prefix, h.tpl.Version)
}

// Bind attaches a runtime runner to the host loader using the provided
// environment. Binder implementations originate from plugin authors.
func (h *HostLoader) Bind(env Environment) error {
	if h == nil {
		return errors.New("fragmentapi: host loader nil")
	}
	if h.tpl.Binder == nil {
		return errors.New("fragmentapi: loader binder missing")
	}
	runner, err := h.tpl.Binder(env)
	if err != nil {
		return err
	}
	if runner == nil {
		return errors.New("fragmentapi: loader binder returned nil runner")
	}
	h.runtime = runner
	return nil
}

// Resolve executes the bound loader for a parsed reference. The loader must
// be bound via Bind before calling Resolve. The returned fragment always
// carries a non-empty source (the reference when the loader left it blank)
// and a deep-cloned metadata map.
func (h *HostLoader) Resolve(ctx context.Context, req Request) (Fragment, error) {
	if h == nil || h.runtime == nil {
		return Fragment{}, errors.New("fragmentapi: loader not bound")
	}
	if req.Prefix != h.tpl.Prefix {
		return Fragment{}, fmt.Errorf("fragmentapi: loader %s cannot serve prefix %q", h.Slug(), req.Prefix)
	}
	frag, err := h.runtime(ctx, req)
	if err != nil {
		return Fragment{}, err
	}
	if strings.TrimSpace(frag.Source) == "" {
		frag.Source = req.Ref
	}
	frag.Metadata = CloneMetadata(frag.Metadata)
	return frag, nil
}

func validateTemplate(tpl LoaderTemplate) error {
	if strings.TrimSpace(tpl.Prefix) == "" {
		return errors.New("fragmentapi: loader template prefix required")
	}
	if !prefixPattern.MatchString(tpl.Prefix) {
		return fmt.Errorf("fragmentapi: loader prefix %q must match %s", tpl.Prefix, prefixPattern.String())
	}
	if strings.TrimSpace(tpl.Version) == "" {
		return errors.New("fragmentapi: loader template version required")
	}
	if strings.TrimSpace(tpl.Title) == "" {
		return errors.New("fragmentapi: loader template title required")
	}
	if tpl.Binder == nil {
		return errors.New("fragmentapi: loader template binder required")
	}
	return nil
}

func slugFor(plugin, prefix, version string) string {
	prefixPart := strings.TrimSpace(prefix)
	versionPart := strings.TrimSpace(version)
	if plugin = strings.TrimSpace(plugin); plugin == "" {
		return fmt.Sprintf("%s@%s", prefixPart, versionPart)
	}
	return fmt.Sprintf("%s/%s@%s", plugin, prefixPart, versionPart)
}

func cloneTemplate(t LoaderTemplate) LoaderTemplate {
	cloned := t
	cloned.Metadata = cloneLoaderMetadata(t.Metadata)
	return cloned
}

func cloneLoaderMetadata(metadata Metadata) Metadata {
	cloned := metadata
	if len(metadata.Tags) > 0 {
		cloned.Tags = append([]string(nil), metadata.Tags...)
	}
	if len(metadata.Annotations) > 0 {
		cloned.Annotations = make(map[string]string, len(metadata.Annotations))
		for k, v := range metadata.Annotations {
			cloned.Annotations[k] = v
		}
	}
	return cloned
}
