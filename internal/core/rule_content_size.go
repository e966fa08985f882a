package core

import (
	"context"
	"fmt"

	"fragmentcore/pkg/domain"
)

// DefaultContentSizeLimit is the byte threshold above which the content size
// rule warns. Fragments are spliced into model prompts, so anything in the
// megabyte range deserves operator attention.
const DefaultContentSizeLimit = 4 << 20

// NewContentSizeRule returns a rule warning about fragments whose content
// exceeds the given byte limit. A non-positive limit falls back to
// DefaultContentSizeLimit.
func NewContentSizeRule(limit int) domain.Rule {
	if limit <= 0 {
		limit = DefaultContentSizeLimit
	}
	return contentSizeRule{limit: limit}
}

type contentSizeRule struct {
	limit int
}

func (contentSizeRule) Name() string { return "fragment_content_size" }

func (r contentSizeRule) Evaluate(_ context.Context, rc domain.RuleContext) (domain.Result, error) {
	res := domain.Result{}
	if size := len(rc.Content); size > r.limit {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "fragment_content_size",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("fragment %s is %d bytes, above the %d byte threshold", rc.Ref, size, r.limit),
			Ref:      rc.Ref,
		})
	}
	return res, nil
}
