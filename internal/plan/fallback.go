// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinforge/SAM-sub002/internal/skill"
)

// FallbackGeneratorName is recorded as the only executed skill when the
// external fallback generator answers a request.
const FallbackGeneratorName = "fallback_generator"

// FallbackGenerator produces raw answer text for a query without a plan.
type FallbackGenerator interface {
	Generate(ctx context.Context, query string) (string, error)
}

// FallbackGeneratorFunc adapts a function into a FallbackGenerator.
type FallbackGeneratorFunc func(ctx context.Context, query string) (string, error)

// Generate calls f.
func (f FallbackGeneratorFunc) Generate(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// =============================================================================
// FALLBACK LADDER
// =============================================================================

// ladder tries each rung on a fresh fork of ec and returns the first usable
// report, or nil when every rung fails.
//
//  1. Default safe plan (memory + response) through validation and execution
//  2. External fallback generator
func (c *Coordinator) ladder(ctx context.Context, ec *ExecutionContext, opts EngineOptions) *ExecutionReport {
	if fb := c.defaultPlanRung(ctx, ec, opts); fb != nil {
		return fb
	}
	if fb := c.generatorRung(ctx, ec); fb != nil {
		return fb
	}
	c.observer.FallbackAttempted(RungExhausted, false)
	c.logf(ec, "%v", ErrFallbackExhausted)
	return nil
}

func (c *Coordinator) defaultPlanRung(ctx context.Context, ec *ExecutionContext, opts EngineOptions) (fb *ExecutionReport) {
	steps := defaultPlan(c.registry, c.classes)
	if len(steps) == 0 {
		c.logf(ec, "fallback: no default plan skills registered")
		return nil
	}

	fork := ec.Fork()
	defer func() {
		if r := recover(); r != nil {
			c.logf(ec, "fallback: default plan panicked: %v", r)
			c.finish(fork, skill.StatusFailure, fmt.Errorf("engine failure: %v", r))
			c.observer.FallbackAttempted(RungDefaultPlan, false)
			fb = nil
		}
	}()

	c.logf(ec, "fallback: trying default plan %s", strings.Join(steps, " -> "))
	report := c.run(ctx, steps, fork, opts, c.now(), false)
	ok := report.Result.Usable()
	c.observer.FallbackAttempted(RungDefaultPlan, ok)
	if !ok {
		c.logf(ec, "fallback: default plan ended %s", report.Result)
		return nil
	}
	report.FallbackUsed = true
	return report
}

func (c *Coordinator) generatorRung(ctx context.Context, ec *ExecutionContext) *ExecutionReport {
	if c.fallback == nil {
		return nil
	}

	text, err := c.callFallback(ctx, ec.Query())
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty output")
	}
	if err != nil {
		c.observer.FallbackAttempted(RungGenerator, false)
		c.logf(ec, "fallback: generator failed: %v", err)
		return nil
	}

	start := c.now()
	fork := ec.Fork()
	steps := []string{FallbackGeneratorName}
	if err := fork.Start(steps, start); err != nil {
		c.logf(ec, "fallback: %v", err)
		return nil
	}
	fork.RecordExecuted(FallbackGeneratorName)
	fork.SetOutput(text)
	c.logf(fork, "fallback: answered by external generator")
	c.finish(fork, skill.StatusSuccess, nil)
	c.observer.FallbackAttempted(RungGenerator, true)

	return c.report(fork, ResultSuccess, steps, steps, nil, start, true, "")
}

func (c *Coordinator) callFallback(ctx context.Context, query string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.fallback.Generate(ctx, query)
}
