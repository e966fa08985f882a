// Package domain defines the core persistent records, value types, and
// rule evaluation primitives used by fragmentcore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in persistence buckets.
const (
	// EntityResolution identifies a fragment resolution record.
	EntityResolution EntityType = "resolution"
	// EntityPlugin identifies an installed plugin record.
	EntityPlugin EntityType = "plugin"
)

// ResolutionStatus enumerates terminal states of a fragment resolution.
type ResolutionStatus string

// Canonical resolution statuses recorded in the resolution log.
const (
	// ResolutionSucceeded indicates the loader produced a fragment and no
	// blocking rule violation was raised.
	ResolutionSucceeded ResolutionStatus = "succeeded"
	// ResolutionFailed indicates the loader returned an error or a blocking
	// rule violation rejected the fragment.
	ResolutionFailed ResolutionStatus = "failed"
)

// Action describes how an operation touched a record, for audit trails.
type Action string

// Audit actions attached to service operations.
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine resolve behavior and logging.
const (
	// SeverityBlock fails the resolution.
	SeverityBlock Severity = "block"
	// SeverityWarn records a warning but lets the fragment through.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resolution records one fragment resolution performed by the host. It is a
// write-only log entry: the host never consults prior resolutions when
// serving a new reference, and fragment content is never stored, only its
// size and digest.
type Resolution struct {
	Base
	Ref           string           `json:"ref"`
	Prefix        string           `json:"prefix"`
	Argument      string           `json:"argument"`
	Plugin        string           `json:"plugin"`
	Loader        string           `json:"loader"`
	Status        ResolutionStatus `json:"status"`
	Source        string           `json:"source,omitempty"`
	ContentBytes  int              `json:"content_bytes"`
	ContentSHA256 string           `json:"content_sha256,omitempty"`
	Error         string           `json:"error,omitempty"`
	Violations    []Violation      `json:"violations,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	DurationMS    int64            `json:"duration_ms"`
}

// PluginRecord is the persisted trace of a plugin installation.
type PluginRecord struct {
	Base
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	APIVersion string   `json:"api_version"`
	Loaders    []string `json:"loaders"`
	Rules      []string `json:"rules"`
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Ref      string   `json:"ref,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "resolution blocked by rules"
}

// CloneResolution returns a deep copy of the resolution record.
func CloneResolution(res Resolution) Resolution {
	cloned := res
	if len(res.Violations) > 0 {
		cloned.Violations = append([]Violation(nil), res.Violations...)
	}
	return cloned
}

// ClonePluginRecord returns a deep copy of the plugin record.
func ClonePluginRecord(rec PluginRecord) PluginRecord {
	cloned := rec
	if len(rec.Loaders) > 0 {
		cloned.Loaders = append([]string(nil), rec.Loaders...)
	}
	if len(rec.Rules) > 0 {
		cloned.Rules = append([]string(nil), rec.Rules...)
	}
	return cloned
}
