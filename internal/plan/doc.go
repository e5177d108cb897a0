// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan turns a request into an ordered list of skills and runs it.
//
// Generation consults the plan cache, then the LLM planner backend, then a
// deterministic rule set. Execution is sequential: the Coordinator checks the
// wall-clock budget and cancellation between steps, records per-skill
// outcomes on the ExecutionContext and aggregates them into an
// ExecutionReport. Rejected plans and engine failures go through the fallback
// ladder (default safe plan, then an external text generator) before a
// FAILURE is reported.
//
// # Key Types
//
//   - Generator: Cache -> LLM -> rules plan generation
//   - Cache: Fingerprint-keyed plan cache with TTL and signature invalidation
//   - Validator / ContractValidator: Pre-execution plan checks
//   - Coordinator: Execution engine and fallback ladder
//   - ExecutionReport: Immutable outcome of one request
//   - History: Bounded in-memory report log with statistics
//
// # Usage
//
//	gen, err := plan.NewGenerator(registry, plan.DefaultGeneratorOptions(),
//	    plan.WithPlannerBackend(backend))
//	if err != nil {
//	    return err
//	}
//	engine := plan.NewCoordinator(registry, plan.DefaultEngineOptions(),
//	    plan.WithValidator(plan.NewContractValidator(registry, 10)))
//
//	g, err := gen.Generate(ctx, query, profile)
//	ec := skill.NewExecutionContext(query, profile, inputs)
//	if err != nil {
//	    report := engine.Recover(ctx, ec, err)
//	    ...
//	}
//	report := engine.Execute(ctx, g.Skills, ec)
//
// # Result Aggregation
//
// No failed step gives SUCCESS, some failed steps PARTIAL_SUCCESS, and every
// step failed FAILURE. TIMEOUT and CANCELLED are decided before a step starts
// and cover only the steps executed so far.
package plan
