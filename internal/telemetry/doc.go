// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exports orchestration metrics to Prometheus.
//
// Metrics implements plan.Observer and is handed to the generator and the
// coordinator. A nil *Metrics is a valid no-op observer.
//
// # Metrics
//
//   - plans_generated_total{source}
//   - plan_cache_events_total{event}
//   - executions_total{result}
//   - execution_duration_seconds
//   - skill_failures_total{skill}
//   - fallback_total{rung,outcome}
//
// # Usage
//
//	m, err := telemetry.NewMetrics("sam", nil)
//	http.Handle("/metrics", m.Handler())
package telemetry
