// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"fmt"
	"strings"

	"github.com/vinforge/SAM-sub002/internal/skill"
)

// Validation is a validator verdict.
type Validation struct {
	// IsValid is false when the plan must not run as given
	IsValid bool

	// Issues lists every problem found
	Issues []string

	// OptimizedPlan, when non-empty, replaces the plan for execution
	OptimizedPlan []string
}

// Validator checks a plan before execution.
type Validator interface {
	Validate(plan []string, ec *ExecutionContext) Validation
}

// ValidatorFunc adapts a function into a Validator.
type ValidatorFunc func(plan []string, ec *ExecutionContext) Validation

// Validate calls f.
func (f ValidatorFunc) Validate(plan []string, ec *ExecutionContext) Validation {
	return f(plan, ec)
}

// =============================================================================
// CONTRACT VALIDATOR
// =============================================================================

// ContractValidator checks plans against the registered skill contracts.
//
// A plan is rejected when it is empty, longer than the maximum, or names an
// unregistered skill. Each step's required inputs must be present in the
// request inputs or produced by an earlier step; when they are not, the
// validator tries a stable reordering that satisfies them and returns it as
// the optimized plan.
type ContractValidator struct {
	registry      *skill.Registry
	maxPlanLength int
}

// NewContractValidator creates a validator. maxPlanLength <= 0 uses
// DefaultMaxPlanLength.
func NewContractValidator(registry *skill.Registry, maxPlanLength int) *ContractValidator {
	if maxPlanLength <= 0 {
		maxPlanLength = DefaultMaxPlanLength
	}
	return &ContractValidator{registry: registry, maxPlanLength: maxPlanLength}
}

// Validate implements Validator.
func (v *ContractValidator) Validate(plan []string, ec *ExecutionContext) Validation {
	if len(plan) == 0 {
		return Validation{Issues: []string{"plan is empty"}}
	}
	if len(plan) > v.maxPlanLength {
		return Validation{Issues: []string{fmt.Sprintf("plan has %d steps (max: %d)", len(plan), v.maxPlanLength)}}
	}

	descs := make([]skill.Descriptor, len(plan))
	var issues []string
	for i, name := range plan {
		d, ok := v.registry.Descriptor(name)
		if !ok {
			issues = append(issues, fmt.Sprintf("step %d: unknown skill %s", i+1, name))
			continue
		}
		descs[i] = d
	}
	if len(issues) > 0 {
		return Validation{Issues: issues}
	}

	available := make(map[string]bool)
	if ec != nil {
		for _, k := range ec.Keys() {
			available[k] = true
		}
	}

	missing := unsatisfied(descs, available)
	if len(missing) == 0 {
		return Validation{IsValid: true}
	}

	if reordered, ok := reorder(descs, available); ok {
		names := make([]string, len(reordered))
		for i, d := range reordered {
			names[i] = d.Name
		}
		return Validation{
			IsValid:       true,
			Issues:        []string{"reordered to satisfy declared inputs"},
			OptimizedPlan: names,
		}
	}
	return Validation{Issues: missing}
}

// unsatisfied walks the plan in order and reports every required input not
// available at that step.
func unsatisfied(descs []skill.Descriptor, inputs map[string]bool) []string {
	available := copySet(inputs)
	var issues []string
	for i, d := range descs {
		var missing []string
		for _, key := range d.RequiredInputs {
			if !available[key] {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			issues = append(issues, fmt.Sprintf("step %d: %s requires %s", i+1, d.Name, strings.Join(missing, ", ")))
		}
		for _, key := range d.OutputKeys {
			available[key] = true
		}
	}
	return issues
}

// reorder greedily picks the earliest remaining step whose inputs are
// satisfied, preserving relative order wherever possible.
func reorder(descs []skill.Descriptor, inputs map[string]bool) ([]skill.Descriptor, bool) {
	available := copySet(inputs)
	remaining := append([]skill.Descriptor(nil), descs...)
	out := make([]skill.Descriptor, 0, len(descs))

	for len(remaining) > 0 {
		picked := -1
		for i, d := range remaining {
			if satisfied(d, available) {
				picked = i
				break
			}
		}
		if picked < 0 {
			return nil, false
		}
		d := remaining[picked]
		out = append(out, d)
		for _, key := range d.OutputKeys {
			available[key] = true
		}
		remaining = append(remaining[:picked], remaining[picked+1:]...)
	}
	return out, true
}

func satisfied(d skill.Descriptor, available map[string]bool) bool {
	for _, key := range d.RequiredInputs {
		if !available[key] {
			return false
		}
	}
	return true
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
