// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package skill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultVersion is assigned to descriptors registered without a version.
const DefaultVersion = "1.0.0"

// ErrInvalidDescriptor is returned when a descriptor cannot be registered.
var ErrInvalidDescriptor = errors.New("invalid skill descriptor")

// =============================================================================
// SKILL INTERFACE
// =============================================================================

// Skill is a single registered capability.
//
// Execute reads what it needs from the ExecutionContext and writes its
// outputs back into it. A returned error marks the invocation as failed; the
// engine never inspects partial writes made before the error.
type Skill interface {
	// Descriptor returns the skill's declared contract.
	Descriptor() Descriptor

	// Execute runs the skill against the request envelope.
	Execute(ctx context.Context, ec *ExecutionContext) error
}

// =============================================================================
// DESCRIPTOR
// =============================================================================

// Descriptor is the declared contract of a skill.
type Descriptor struct {
	// Name is the unique registry key
	Name string `json:"name"`

	// Description is shown to the LLM planner
	Description string `json:"description,omitempty"`

	// Category is a free-form grouping ("memory", "conflict", "response", ...)
	Category string `json:"category,omitempty"`

	// RequiredInputs are context keys that must exist before the skill runs
	RequiredInputs []string `json:"required_inputs,omitempty"`

	// OptionalInputs are context keys the skill uses when present
	OptionalInputs []string `json:"optional_inputs,omitempty"`

	// OutputKeys are context keys the skill writes
	OutputKeys []string `json:"output_keys,omitempty"`

	// Version participates in the skill-set signature
	Version string `json:"version"`

	// Parallel marks the skill as safe to run alongside others.
	// The sequential engine does not use it.
	Parallel bool `json:"parallel"`

	// MaxExecutionTime is the skill's own time budget (0 = unbounded)
	MaxExecutionTime time.Duration `json:"max_execution_time,omitempty"`
}

// Validate checks the descriptor and returns a normalized copy: key sets are
// sorted and de-duplicated, and an empty version becomes DefaultVersion.
func (d Descriptor) Validate() (Descriptor, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return d, fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if strings.ContainsAny(d.Name, ":|") {
		return d, fmt.Errorf("%w: name %q must not contain ':' or '|'", ErrInvalidDescriptor, d.Name)
	}
	if d.MaxExecutionTime < 0 {
		return d, fmt.Errorf("%w: %s has negative max execution time", ErrInvalidDescriptor, d.Name)
	}
	if d.Version == "" {
		d.Version = DefaultVersion
	}
	d.RequiredInputs = normalizeKeys(d.RequiredInputs)
	d.OptionalInputs = normalizeKeys(d.OptionalInputs)
	d.OutputKeys = normalizeKeys(d.OutputKeys)
	return d, nil
}

// Produces reports whether the skill declares key as an output.
func (d Descriptor) Produces(key string) bool {
	for _, k := range d.OutputKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SignatureEntry returns the "name:version" fragment used in skill-set signatures.
func (d Descriptor) SignatureEntry() string {
	return d.Name + ":" + d.Version
}

func normalizeKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// FUNC ADAPTER
// =============================================================================

// Func adapts a plain function into a Skill.
type Func struct {
	desc Descriptor
	fn   func(ctx context.Context, ec *ExecutionContext) error
}

// NewFunc creates a Skill from a descriptor and a function.
func NewFunc(desc Descriptor, fn func(ctx context.Context, ec *ExecutionContext) error) *Func {
	return &Func{desc: desc, fn: fn}
}

// Descriptor returns the declared contract.
func (f *Func) Descriptor() Descriptor {
	return f.desc
}

// Execute invokes the wrapped function. A nil function is a no-op.
func (f *Func) Execute(ctx context.Context, ec *ExecutionContext) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, ec)
}
