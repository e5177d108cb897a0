// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"time"
)

// Defaults for the orchestration options.
const (
	DefaultCacheTTL                   = time.Hour
	DefaultCacheMaxEntries            = 1000
	DefaultMaxPlanLength              = 10
	DefaultMaxExecutionTime           = 30 * time.Second
	DefaultCachingConfidenceThreshold = 0.5
	DefaultRuleConfidence             = 0.6
	DefaultLLMConfidenceFloor         = 0.7
	DefaultHistorySize                = 100
)

// DefaultConflictTriggers are the query terms that add a conflict-class skill
// to a rule-based plan.
var DefaultConflictTriggers = []string{"compare", "versus", "different", "sources"}

// =============================================================================
// GENERATOR OPTIONS
// =============================================================================

// GeneratorOptions configures plan generation and caching.
type GeneratorOptions struct {
	// EnablePlanCaching turns the plan cache on
	EnablePlanCaching bool

	// CacheTTL is the maximum age of a cached plan
	CacheTTL time.Duration

	// CacheMaxEntries bounds the cache (LRU eviction beyond it)
	CacheMaxEntries int

	// MaxPlanLength rejects longer LLM plans
	MaxPlanLength int

	// CachingConfidenceThreshold: plans must score above it to be cached
	CachingConfidenceThreshold float64

	// RuleConfidence is assigned to rule-based plans; must stay below LLMConfidenceFloor
	RuleConfidence float64

	// LLMConfidenceFloor is the minimum confidence given to an accepted LLM plan
	LLMConfidenceFloor float64

	// AllowEmptyPlans returns ErrNoExecutablePlan instead of the single-skill default
	AllowEmptyPlans bool

	// ConflictTriggers override DefaultConflictTriggers when non-empty
	ConflictTriggers []string
}

// DefaultGeneratorOptions returns the default generator configuration.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		EnablePlanCaching:          true,
		CacheTTL:                   DefaultCacheTTL,
		CacheMaxEntries:            DefaultCacheMaxEntries,
		MaxPlanLength:              DefaultMaxPlanLength,
		CachingConfidenceThreshold: DefaultCachingConfidenceThreshold,
		RuleConfidence:             DefaultRuleConfidence,
		LLMConfidenceFloor:         DefaultLLMConfidenceFloor,
		ConflictTriggers:           append([]string(nil), DefaultConflictTriggers...),
	}
}

func (o GeneratorOptions) withDefaults() GeneratorOptions {
	d := DefaultGeneratorOptions()
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	if o.CacheMaxEntries <= 0 {
		o.CacheMaxEntries = d.CacheMaxEntries
	}
	if o.MaxPlanLength <= 0 {
		o.MaxPlanLength = d.MaxPlanLength
	}
	if o.RuleConfidence <= 0 {
		o.RuleConfidence = d.RuleConfidence
	}
	if o.LLMConfidenceFloor <= 0 {
		o.LLMConfidenceFloor = d.LLMConfidenceFloor
	}
	if len(o.ConflictTriggers) == 0 {
		o.ConflictTriggers = d.ConflictTriggers
	}
	return o
}

// =============================================================================
// ENGINE OPTIONS
// =============================================================================

// EngineOptions configures the Coordinator.
type EngineOptions struct {
	// EnablePlanValidation calls the validator before executing
	EnablePlanValidation bool

	// ContinueOnSkillFailure keeps going after a failed step
	ContinueOnSkillFailure bool

	// EnableFallbackPlans turns the fallback ladder on
	EnableFallbackPlans bool

	// MaxExecutionTime is the wall-clock budget per request (0 = unbounded)
	MaxExecutionTime time.Duration

	// EnforceSkillTimeouts runs each skill under its own deadline
	EnforceSkillTimeouts bool
}

// DefaultEngineOptions returns the default engine configuration.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		EnablePlanValidation:   true,
		ContinueOnSkillFailure: true,
		EnableFallbackPlans:    true,
		MaxExecutionTime:       DefaultMaxExecutionTime,
	}
}
