// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"time"

	"github.com/vinforge/SAM-sub002/internal/skill"
)

// ExecutionContext is the per-request envelope. It lives in the skill package
// so skills can accept it without importing the engine.
type ExecutionContext = skill.ExecutionContext

// =============================================================================
// PLAN SOURCE
// =============================================================================

// Source identifies which generation strategy produced a plan.
type Source string

const (
	// SourceCache - Returned from the plan cache
	SourceCache Source = "cache"

	// SourceLLM - Produced by the planner backend
	SourceLLM Source = "llm"

	// SourceRules - Produced by the rule-based fallback
	SourceRules Source = "rules"

	// SourceDefault - Single-skill default when rules found nothing
	SourceDefault Source = "default"
)

// Generated is the outcome of Generator.Generate.
type Generated struct {
	// Skills is the ordered plan; duplicates are allowed
	Skills []string

	// Confidence is in [0, 1]
	Confidence float64

	// Reasoning is free-form text from the planner (or a rule summary)
	Reasoning string

	// CacheHit is true when Skills came from the plan cache
	CacheHit bool

	// FallbackUsed is true when the LLM stage was skipped or rejected
	FallbackUsed bool

	// Source names the strategy that produced the plan
	Source Source

	// Fingerprint is the cache key computed for the request
	Fingerprint string
}

// =============================================================================
// RESULT KIND
// =============================================================================

// ResultKind is the terminal outcome of a request.
type ResultKind string

const (
	ResultSuccess        ResultKind = "SUCCESS"
	ResultPartialSuccess ResultKind = "PARTIAL_SUCCESS"
	ResultFailure        ResultKind = "FAILURE"
	ResultTimeout        ResultKind = "TIMEOUT"
	ResultCancelled      ResultKind = "CANCELLED"
)

// resultFor maps a terminal context status to a result kind.
func resultFor(s skill.Status) ResultKind {
	switch s {
	case skill.StatusSuccess:
		return ResultSuccess
	case skill.StatusPartialSuccess:
		return ResultPartialSuccess
	case skill.StatusTimeout:
		return ResultTimeout
	case skill.StatusCancelled:
		return ResultCancelled
	default:
		return ResultFailure
	}
}

// Usable reports whether the result carries an answer for the caller.
func (r ResultKind) Usable() bool {
	return r == ResultSuccess || r == ResultPartialSuccess
}

// =============================================================================
// EXECUTION REPORT
// =============================================================================

// ExecutionReport is the immutable outcome of a request. Exactly one is
// produced per request.
type ExecutionReport struct {
	// Result is the terminal outcome
	Result ResultKind `json:"result"`

	// Context is the final request envelope
	Context *ExecutionContext `json:"-"`

	// Plan is the plan that was actually run (after validator reordering)
	Plan []string `json:"plan"`

	// ExecutedSkills are the skills invoked, in order
	ExecutedSkills []string `json:"executed_skills"`

	// FailedSkills are the skills that failed, in order
	FailedSkills []string `json:"failed_skills"`

	// ExecutionTime is the elapsed wall-clock time
	ExecutionTime time.Duration `json:"execution_time"`

	// FallbackUsed is true when the fallback ladder produced the result
	FallbackUsed bool `json:"fallback_used"`

	// Error is a human-readable failure detail, empty on success
	Error string `json:"error,omitempty"`
}

// RequestID returns the request identifier, or "" without a context.
func (r *ExecutionReport) RequestID() string {
	if r == nil || r.Context == nil {
		return ""
	}
	return r.Context.RequestID()
}

// Output returns the final output, or "" without a context.
func (r *ExecutionReport) Output() string {
	if r == nil || r.Context == nil {
		return ""
	}
	return r.Context.Output()
}

// Succeeded reports whether the request produced a usable answer.
func (r *ExecutionReport) Succeeded() bool {
	return r != nil && r.Result.Usable()
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}
