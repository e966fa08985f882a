// Package pluginapi provides a stable surface for plugin authors by
// re-exporting selected domain concepts and the fragment loader contract.
package pluginapi

import (
	"fragmentcore/pkg/domain"
	"fragmentcore/pkg/fragmentapi"
)

// Rule evaluation and result aliases.
type (
	// Rule is an alias of domain.Rule representing a validation hook.
	Rule = domain.Rule
	// RuleContext is an alias of domain.RuleContext carrying the fragment under evaluation.
	RuleContext = domain.RuleContext
	// Result is an alias of domain.Result aggregating rule violations.
	Result = domain.Result
	// Violation is an alias of domain.Violation detailing a single rule outcome.
	Violation = domain.Violation
	// Severity is an alias of domain.Severity grading rule outcomes.
	Severity = domain.Severity
)

// Severity level aliases.
const (
	SeverityBlock = domain.SeverityBlock // Fail the resolution
	SeverityWarn  = domain.SeverityWarn  // Warn but continue
	SeverityLog   = domain.SeverityLog   // Log only
)

// Fragment loader contract aliases.
type (
	// Fragment is an alias of fragmentapi.Fragment, the unit of prompt context.
	Fragment = fragmentapi.Fragment
	// LoaderTemplate is an alias of fragmentapi.LoaderTemplate registered by plugins.
	LoaderTemplate = fragmentapi.LoaderTemplate
	// LoaderMetadata is an alias of fragmentapi.Metadata annotating loader templates.
	LoaderMetadata = fragmentapi.Metadata
	// Environment is an alias of fragmentapi.Environment handed to binders.
	Environment = fragmentapi.Environment
	// Request is an alias of fragmentapi.Request handed to runners.
	Request = fragmentapi.Request
	// Runner is an alias of fragmentapi.Runner resolving one reference.
	Runner = fragmentapi.Runner
	// Binder is an alias of fragmentapi.Binder attaching a runner to the host.
	Binder = fragmentapi.Binder
)
