// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

// Cache events reported to an Observer.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStore   = "store"
	CacheEvict   = "evict"
	CacheSkipped = "skipped"
)

// Fallback rungs reported to an Observer.
const (
	RungDefaultPlan = "default_plan"
	RungGenerator   = "fallback_generator"
	RungExhausted   = "exhausted"
)

// Observer receives orchestration events. telemetry.Metrics implements it.
type Observer interface {
	PlanGenerated(source Source)
	CacheEvent(event string)
	SkillFailed(name string)
	FallbackAttempted(rung string, ok bool)
	ExecutionFinished(report *ExecutionReport)
}

type nopObserver struct{}

func (nopObserver) PlanGenerated(Source)               {}
func (nopObserver) CacheEvent(string)                  {}
func (nopObserver) SkillFailed(string)                 {}
func (nopObserver) FallbackAttempted(string, bool)     {}
func (nopObserver) ExecutionFinished(*ExecutionReport) {}
