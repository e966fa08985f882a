// Package fecfile adapts FEC electronic filings into prompt fragments. The
// plugin registers a loader for the fec prefix; the referenced filing is
// fetched and parsed by an external source and rendered together with
// analysis guidance for the model consuming the prompt.
package fecfile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"fragmentcore/pkg/filing"
	"fragmentcore/pkg/pluginapi"
)

const (
	pluginName    = "fecfile"
	pluginVersion = "0.1.0"
	loaderPrefix  = "fec"
	loaderVersion = "0.1.0"
)

// Plugin implements the FEC filing adapter module.
type Plugin struct {
	src filing.Source
}

// New constructs the plugin around a filing source. A nil source selects an
// HTTP-backed source built from the host environment at bind time.
func New(src filing.Source) *Plugin {
	return &Plugin{src: src}
}

// Name returns the plugin identifier.
func (*Plugin) Name() string { return pluginName }

// Version returns the plugin semantic version.
func (*Plugin) Version() string { return pluginVersion }

// Register declares the fec fragment loader and the source format rule.
func (p *Plugin) Register(registry pluginapi.Registry) error {
	err := registry.RegisterFragmentLoader(pluginapi.LoaderTemplate{
		Prefix:      loaderPrefix,
		Version:     loaderVersion,
		Title:       "FEC electronic filing",
		Description: "Loads one FEC electronic filing by identifier and renders it with analysis guidance.",
		Metadata: pluginapi.LoaderMetadata{
			Documentation: "Reference filings as fec:<filing id>, e.g. fec:1690664.",
			Tags:          []string{"fec", "campaign-finance"},
		},
		Binder: func(env pluginapi.Environment) (pluginapi.Runner, error) {
			src := p.src
			if src == nil {
				src = filing.NewHTTPSource(env.HTTPClient, "")
			}
			return func(ctx context.Context, req pluginapi.Request) (pluginapi.Fragment, error) {
				return loadFragment(ctx, src, req.Argument)
			}, nil
		},
	})
	if err != nil {
		return err
	}
	registry.RegisterRule(sourceFormatRule{})
	return nil
}

// loadFragment validates the filing identifier, delegates retrieval and
// parsing to the source, and renders the fragment body.
func loadFragment(ctx context.Context, src filing.Source, arg string) (pluginapi.Fragment, error) {
	id, err := parseFilingID(arg)
	if err != nil {
		return pluginapi.Fragment{}, err
	}
	doc, err := src.ByID(ctx, id)
	if err != nil {
		return pluginapi.Fragment{}, fmt.Errorf("Error loading FEC filing %s: %w", arg, err)
	}
	content, err := buildContent(doc)
	if err != nil {
		return pluginapi.Fragment{}, fmt.Errorf("Error loading FEC filing %s: %w", arg, err)
	}
	metadata := map[string]any{"filing_id": id}
	if form := doc.FormType(); form != "" {
		metadata["form_type"] = form
	}
	if committee := doc.CommitteeName(); committee != "" {
		metadata["committee_name"] = committee
	}
	return pluginapi.Fragment{
		Source:   loaderPrefix + ":" + arg,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// parseFilingID rejects identifiers that are not positive integers.
// Validation errors surface to the user as-is.
func parseFilingID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid filing ID %q: must be a positive integer", arg)
	}
	return id, nil
}

// sourceFormatRule warns when a fragment claims the fec source scheme without
// carrying a positive filing identifier.
type sourceFormatRule struct{}

func (sourceFormatRule) Name() string { return "fec_source_format" }

func (sourceFormatRule) Evaluate(_ context.Context, rc pluginapi.RuleContext) (pluginapi.Result, error) {
	var result pluginapi.Result
	rest, ok := strings.CutPrefix(rc.Source, loaderPrefix+":")
	if !ok {
		return result, nil
	}
	if id, err := strconv.ParseInt(rest, 10, 64); err != nil || id <= 0 {
		result.Violations = append(result.Violations, pluginapi.Violation{
			Rule:     "fec_source_format",
			Severity: pluginapi.SeverityWarn,
			Message:  fmt.Sprintf("source %s does not carry a positive filing id", rc.Source),
			Ref:      rc.Ref,
		})
	}
	return result, nil
}
