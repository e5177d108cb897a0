// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router picks the planner backend for each plan request.
//
// Routes requests to the local or the cloud planner based on the configured
// mode and, in auto mode, on query complexity.
//
// # Key Types
//
//   - Router: implements plan.PlannerBackend over a local and a cloud backend
//   - Tier: Local or Cloud
//   - QueryComplexity: Trivial, Simple, Moderate, Complex, Expert
//   - RoutingDecision: tier, complexity and reason
//
// # Security
//
// Offline mode and paranoid mode are ALWAYS the first checks. Either one pins
// every request to the local backend; a cloud backend is never called.
//
// # Usage
//
//	r := router.New(router.Config{Mode: router.ModeAuto, AutoFallback: router.FallbackLocal},
//	    router.WithLocal(ollamaClient),
//	    router.WithCloud(cloudBackend),
//	    router.WithGuard(guard),
//	)
//	gen, err := plan.NewGenerator(reg, opts, plan.WithPlannerBackend(r))
//
// # Rate Limiting
//
// Each tier has its own token bucket. A request waits for a token and fails
// if its context ends first.
package router
