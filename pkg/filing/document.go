// Package filing models the structured representation of a campaign-finance
// filing as produced by an external parsing dependency. The package decodes
// and navigates that structured output; it does not parse the underlying
// filing format itself.
package filing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Well-known keys in the structured payload.
const (
	keyFiling       = "filing"
	keyItemizations = "itemizations"
	keyText         = "text"
)

// Document is the parsed form of one filing: the top-level filing fields,
// itemization schedules keyed by schedule name, and free text for text-only
// forms. When decoded from bytes the original payload is retained so
// re-rendering preserves the source's key order.
type Document struct {
	raw    json.RawMessage
	fields map[string]any
}

// DecodeDocument decodes the structured JSON payload emitted by the parsing
// dependency.
func DecodeDocument(data []byte) (*Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("filing: decode document: %w", err)
	}
	return &Document{raw: append(json.RawMessage(nil), data...), fields: fields}, nil
}

// NewDocument builds a document from an already-decoded payload. The payload
// is deep-cloned.
func NewDocument(fields map[string]any) *Document {
	return &Document{fields: cloneMap(fields)}
}

// Map returns a deep clone of the full payload.
func (d *Document) Map() map[string]any {
	if d == nil {
		return nil
	}
	return cloneMap(d.fields)
}

// Filing returns a deep clone of the top-level filing fields.
func (d *Document) Filing() map[string]any {
	if d == nil {
		return nil
	}
	filing, _ := d.fields[keyFiling].(map[string]any)
	return cloneMap(filing)
}

// Text returns the free-text body carried by text-only forms.
func (d *Document) Text() string {
	if d == nil {
		return ""
	}
	text, _ := d.fields[keyText].(string)
	return text
}

// FormType returns the raw form type declared by the filing.
func (d *Document) FormType() string {
	return d.filingString("form_type")
}

// CommitteeName returns the filer's committee name.
func (d *Document) CommitteeName() string {
	return d.filingString("committee_name")
}

// AmendmentIndicator returns the filing's amendment indicator code.
func (d *Document) AmendmentIndicator() string {
	return d.filingString("amendment_indicator")
}

// PreviousReportAmendmentIndicator returns the identifier of the report this
// filing amends, when present.
func (d *Document) PreviousReportAmendmentIndicator() string {
	return d.filingString("previous_report_amendment_indicator")
}

// IsAmendment reports whether the amendment indicator marks this filing as a
// standard or termination amendment.
func (d *Document) IsAmendment() bool {
	switch strings.ToUpper(d.AmendmentIndicator()) {
	case "A", "T":
		return true
	}
	return false
}

// ScheduleNames lists itemization schedule names in sorted order.
func (d *Document) ScheduleNames() []string {
	if d == nil {
		return nil
	}
	itemizations, _ := d.fields[keyItemizations].(map[string]any)
	if len(itemizations) == 0 {
		return nil
	}
	names := make([]string, 0, len(itemizations))
	for name := range itemizations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schedule returns a deep clone of one itemization schedule's entries.
func (d *Document) Schedule(name string) []map[string]any {
	if d == nil {
		return nil
	}
	itemizations, _ := d.fields[keyItemizations].(map[string]any)
	entries, _ := itemizations[name].([]any)
	if entries == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, cloneMap(m))
		}
	}
	return out
}

// ScheduleCount returns the number of entries in one itemization schedule.
func (d *Document) ScheduleCount(name string) int {
	if d == nil {
		return 0
	}
	itemizations, _ := d.fields[keyItemizations].(map[string]any)
	entries, _ := itemizations[name].([]any)
	return len(entries)
}

// IndentedJSON renders the full payload as two-space-indented JSON. The
// original byte order is preserved when the document was decoded from bytes.
func (d *Document) IndentedJSON() (string, error) {
	if d == nil {
		return "", fmt.Errorf("filing: nil document")
	}
	if len(d.raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, d.raw, "", "  "); err != nil {
			return "", fmt.Errorf("filing: indent document: %w", err)
		}
		return buf.String(), nil
	}
	data, err := json.MarshalIndent(d.fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("filing: marshal document: %w", err)
	}
	return string(data), nil
}

// NormalizeFormType upper-cases a form type and strips a single trailing
// amendment suffix (N, A, or T) so F3XN, F3XA and F3XT all classify as F3X.
func NormalizeFormType(raw string) string {
	form := strings.ToUpper(strings.TrimSpace(raw))
	if len(form) > 2 {
		switch form[len(form)-1] {
		case 'N', 'A', 'T':
			form = form[:len(form)-1]
		}
	}
	return form
}

func (d *Document) filingString(key string) string {
	if d == nil {
		return ""
	}
	filing, _ := d.fields[keyFiling].(map[string]any)
	switch v := filing[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func cloneMap(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for key, value := range values {
		cloned[key] = cloneFieldValue(value)
	}
	return cloned
}

func cloneFieldValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		cloned := make([]any, len(typed))
		for i, element := range typed {
			cloned[i] = cloneFieldValue(element)
		}
		return cloned
	default:
		return typed
	}
}
