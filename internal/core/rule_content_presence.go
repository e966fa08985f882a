package core

import (
	"context"
	"fmt"
	"strings"

	"fragmentcore/pkg/domain"
)

// NewContentPresenceRule returns the default rule warning about fragments
// that resolve to empty content. An empty fragment is almost always a loader
// bug, but it is not fatal to the surrounding prompt so the rule warns
// instead of blocking.
func NewContentPresenceRule() domain.Rule {
	return contentPresenceRule{}
}

type contentPresenceRule struct{}

func (contentPresenceRule) Name() string { return "fragment_content_presence" }

func (contentPresenceRule) Evaluate(_ context.Context, rc domain.RuleContext) (domain.Result, error) {
	res := domain.Result{}
	if strings.TrimSpace(rc.Content) == "" {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "fragment_content_presence",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("fragment %s resolved to empty content", rc.Ref),
			Ref:      rc.Ref,
		})
	}
	return res, nil
}
