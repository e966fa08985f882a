// Command registry-check installs the built-in fragment plugins into a
// scratch host and verifies the loader and rule registry they produce. CI
// runs it to catch descriptor drift before a release ships.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fragmentcore/docs/schema"
	"fragmentcore/internal/core"
	"fragmentcore/pkg/pluginapi"
	"fragmentcore/plugins/fecfile"
)

// Report describes the registry assembled from the built-in plugins.
type Report struct {
	APIVersion     string        `json:"api_version"`
	CatalogVersion string        `json:"catalog_version"`
	Plugins        []PluginEntry `json:"plugins"`
	Loaders        []LoaderEntry `json:"loaders"`
	Rules          []string      `json:"rules"`
}

// PluginEntry summarizes one installed plugin.
type PluginEntry struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	APIVersion string   `json:"api_version"`
	Loaders    []string `json:"loaders"`
	Rules      []string `json:"rules"`
}

// LoaderEntry summarizes one bound fragment loader.
type LoaderEntry struct {
	Slug    string `json:"slug"`
	Plugin  string `json:"plugin"`
	Prefix  string `json:"prefix"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

var (
	exitFunc = os.Exit

	builtinPlugins = func() []pluginapi.Plugin {
		return []pluginapi.Plugin{fecfile.New(nil)}
	}
)

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		asJSON        bool
		listLoaders   bool
		listRules     bool
		expectLoaders stringList
		expectRules   stringList
	)
	fs.BoolVar(&asJSON, "json", false, "emit the registry report as JSON")
	fs.BoolVar(&listLoaders, "list-loaders", false, "print one loader slug per line")
	fs.BoolVar(&listRules, "list-rules", false, "print one rule name per line")
	fs.Var(&expectLoaders, "expect-loader", "loader slug that must be registered (repeatable)")
	fs.Var(&expectRules, "expect-rule", "rule name that must be registered (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	report, err := buildReport(context.Background())
	if err == nil {
		err = verifyReport(report, expectLoaders, expectRules)
	}
	if err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Registry check failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}

	switch {
	case asJSON:
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return 1
		}
	case listLoaders:
		for _, loader := range report.Loaders {
			if _, err := fmt.Fprintln(stdout, loader.Slug); err != nil {
				return 1
			}
		}
	case listRules:
		for _, rule := range report.Rules {
			if _, err := fmt.Fprintln(stdout, rule); err != nil {
				return 1
			}
		}
	default:
		if _, err := fmt.Fprintf(stdout, "Registry check passed: %d plugins, %d loaders, %d rules.\n",
			len(report.Plugins), len(report.Loaders), len(report.Rules)); err != nil {
			return 1
		}
	}
	return 0
}

// buildReport installs the built-in plugins into a throwaway in-memory host
// and captures the resulting registry. Nothing touches the network; loaders
// bind lazily and are never invoked here.
func buildReport(ctx context.Context) (Report, error) {
	service := core.NewInMemoryService(core.NewDefaultRulesEngine())
	defer func() { _ = service.Close() }()

	for _, plugin := range builtinPlugins() {
		if _, err := service.InstallPlugin(ctx, plugin); err != nil {
			return Report{}, fmt.Errorf("install %s: %w", plugin.Name(), err)
		}
	}

	catalogVersion, err := schema.CatalogVersion()
	if err != nil {
		return Report{}, fmt.Errorf("schema catalog: %w", err)
	}

	report := Report{
		APIVersion:     pluginapi.Version,
		CatalogVersion: catalogVersion,
		Rules:          service.RulesEngine().Rules(),
	}
	for _, meta := range service.ListPlugins() {
		entry := PluginEntry{
			Name:       meta.Name,
			Version:    meta.Version,
			APIVersion: meta.APIVersion,
			Rules:      append([]string(nil), meta.Rules...),
		}
		for _, descriptor := range meta.Loaders {
			entry.Loaders = append(entry.Loaders, descriptor.Slug)
		}
		report.Plugins = append(report.Plugins, entry)
	}
	for _, descriptor := range service.ListFragmentLoaders() {
		report.Loaders = append(report.Loaders, LoaderEntry{
			Slug:    descriptor.Slug,
			Plugin:  descriptor.Plugin,
			Prefix:  descriptor.Prefix,
			Version: descriptor.Version,
			Title:   descriptor.Title,
		})
	}
	return report, nil
}

// verifyReport checks the assembled registry for structural problems and for
// the presence of every loader slug and rule name the caller insists on.
func verifyReport(report Report, expectLoaders, expectRules []string) error {
	if len(report.Plugins) == 0 {
		return errors.New("no plugins installed")
	}
	for _, plugin := range report.Plugins {
		if plugin.APIVersion != pluginapi.Version {
			return fmt.Errorf("plugin %s declares api version %q, host speaks %q", plugin.Name, plugin.APIVersion, pluginapi.Version)
		}
		if len(plugin.Loaders) == 0 && len(plugin.Rules) == 0 {
			return fmt.Errorf("plugin %s registered neither loaders nor rules", plugin.Name)
		}
	}

	slugs := make(map[string]struct{}, len(report.Loaders))
	for _, loader := range report.Loaders {
		slugs[loader.Slug] = struct{}{}
	}
	for _, want := range expectLoaders {
		if _, ok := slugs[want]; !ok {
			return fmt.Errorf("expected loader %s is not registered", want)
		}
	}

	rules := make(map[string]struct{}, len(report.Rules))
	for _, rule := range report.Rules {
		rules[rule] = struct{}{}
	}
	for _, want := range expectRules {
		if _, ok := rules[want]; !ok {
			return fmt.Errorf("expected rule %s is not registered", want)
		}
	}
	return nil
}

// stringList collects repeatable flag values.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("empty value")
	}
	*l = append(*l, value)
	return nil
}
