// Package fragmentapi defines the contract between fragment loader plugins
// and the fragmentcore host: the fragment payload, the loader template
// metadata plugins register, and the binder/runner indirection through which
// the host invokes loaders.
package fragmentapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Fragment is a unit of prompt context produced by a loader.
type Fragment struct {
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Doer abstracts the HTTP client handed to loader binders. Loaders perform
// network access only through the environment, never by constructing their
// own clients.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the logging surface exposed to loaders.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Environment carries host-provided runtime capabilities into loader binders.
type Environment struct {
	HTTPClient Doer
	Logger     Logger
	Now        func() time.Time
}

// Metadata annotates a loader template for catalog listings.
type Metadata struct {
	Documentation string            `json:"documentation,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty"`
}

// LoaderTemplate is the manifest a plugin registers for one fragment prefix.
type LoaderTemplate struct {
	Prefix      string
	Version     string
	Title       string
	Description string
	Metadata    Metadata
	Binder      Binder
}

// LoaderDescriptor is the host-facing snapshot of a registered loader.
type LoaderDescriptor struct {
	Plugin      string   `json:"plugin"`
	Prefix      string   `json:"prefix"`
	Version     string   `json:"version"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Metadata    Metadata `json:"metadata"`
	Slug        string   `json:"slug"`
}

// Request is the resolved reference handed to a loader runner.
type Request struct {
	Ref      string
	Prefix   string
	Argument string
}

// Runner resolves one fragment reference.
type Runner func(context.Context, Request) (Fragment, error)

// Binder attaches a runner to the host environment. Binder implementations
// originate from plugin authors.
type Binder func(Environment) (Runner, error)

// ParseRef splits a fragment reference of the form prefix:argument on the
// first colon. The argument may itself contain colons. The returned request
// carries the whitespace-trimmed reference.
func ParseRef(ref string) (Request, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return Request{}, errors.New("fragmentapi: fragment ref required")
	}
	idx := strings.Index(trimmed, ":")
	if idx < 0 {
		return Request{}, fmt.Errorf("fragmentapi: fragment ref %q must take the form prefix:argument", trimmed)
	}
	prefix := trimmed[:idx]
	argument := trimmed[idx+1:]
	if prefix == "" {
		return Request{}, fmt.Errorf("fragmentapi: fragment ref %q missing prefix", trimmed)
	}
	if argument == "" {
		return Request{}, fmt.Errorf("fragmentapi: fragment ref %q missing argument", trimmed)
	}
	return Request{Ref: trimmed, Prefix: prefix, Argument: argument}, nil
}

// SortLoaderDescriptors sorts the slice in-place using plugin/prefix/version
// for deterministic ordering.
func SortLoaderDescriptors(descriptors []LoaderDescriptor) {
	if len(descriptors) < 2 {
		return
	}
	sort.Slice(descriptors, func(i, j int) bool {
		a := descriptors[i]
		b := descriptors[j]
		if a.Plugin == b.Plugin {
			if a.Prefix == b.Prefix {
				return a.Version < b.Version
			}
			return a.Prefix < b.Prefix
		}
		return a.Plugin < b.Plugin
	})
}
