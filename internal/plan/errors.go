// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test for them; most are wrapped with
// detail by the code that returns them.
var (
	// ErrNoExecutablePlan is returned when every generation strategy yields
	// an empty plan.
	ErrNoExecutablePlan = errors.New("no executable plan")

	// ErrPlanRejected marks a plan the validator refused.
	ErrPlanRejected = errors.New("plan rejected by validator")

	// ErrUnknownSkill marks a plan step naming an unregistered skill.
	ErrUnknownSkill = errors.New("unknown skill")

	// ErrPlanTooLong marks a plan longer than the configured maximum.
	ErrPlanTooLong = errors.New("plan exceeds maximum length")

	// ErrMalformedPlan marks planner output that is not a usable plan.
	ErrMalformedPlan = errors.New("malformed plan")

	// ErrTimeout is recorded on contexts that ran out of wall-clock budget.
	ErrTimeout = errors.New("execution timed out")

	// ErrCancelled is recorded on contexts whose request was cancelled.
	ErrCancelled = errors.New("execution cancelled")

	// ErrFallbackExhausted means every fallback rung failed.
	ErrFallbackExhausted = errors.New("no fallback available")
)

// SkillError describes a failed plan step: the skill returned an error,
// panicked, timed out, or is not registered.
type SkillError struct {
	Skill string
	Cause error
}

func (e *SkillError) Error() string {
	return fmt.Sprintf("skill %s: %v", e.Skill, e.Cause)
}

func (e *SkillError) Unwrap() error {
	return e.Cause
}

// PlannerError describes why the LLM stage of generation was abandoned.
// It is never fatal; the generator falls through to rules.
type PlannerError struct {
	Reason string
	Cause  error
}

func (e *PlannerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("planner: %s: %v", e.Reason, e.Cause)
	}
	return "planner: " + e.Reason
}

func (e *PlannerError) Unwrap() error {
	return e.Cause
}
