package domain

import "context"

// RuleContext carries the fragment produced by a loader into rule
// evaluation. Rules see the fragment payload only; they have no access to
// host storage.
type RuleContext struct {
	Ref      string
	Prefix   string
	Argument string
	Source   string
	Content  string
	Metadata map[string]any
}

// Rule defines an evaluation executed after a loader produces a fragment.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, rctx RuleContext) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	if rule == nil {
		return
	}
	e.rules = append(e.rules, rule)
}

// Rules returns the names of registered rules in registration order.
func (e *RulesEngine) Rules() []string {
	out := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule.Name())
	}
	return out
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, rctx RuleContext) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, rctx)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
