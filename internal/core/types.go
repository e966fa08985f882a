package core

import "fragmentcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	ResolutionStatus   = domain.ResolutionStatus
	Severity           = domain.Severity
	Action             = domain.Action
	Base               = domain.Base
	Resolution         = domain.Resolution
	PluginRecord       = domain.PluginRecord
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleContext        = domain.RuleContext
	RulesEngine        = domain.RulesEngine
	PersistentStore    = domain.PersistentStore
)

const (
	EntityResolution = domain.EntityResolution
	EntityPlugin     = domain.EntityPlugin
)

const (
	ResolutionSucceeded = domain.ResolutionSucceeded
	ResolutionFailed    = domain.ResolutionFailed
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionRead   = domain.ActionRead
)
