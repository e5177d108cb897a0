// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vinforge/SAM-sub002/internal/plan"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "sam"

// =============================================================================
// METRICS
// =============================================================================

// Metrics records orchestration events as Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	plansGenerated *prometheus.CounterVec
	cacheEvents    *prometheus.CounterVec
	executions     *prometheus.CounterVec
	duration       prometheus.Histogram
	skillFailures  *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec

	// gatherer is set when Metrics owns its registry.
	gatherer prometheus.Gatherer
}

var _ plan.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg. With a nil
// reg a private registry is created and served by Handler.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		plansGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_generated_total",
			Help:      "Plans produced by the generator, by source.",
		}, []string{"source"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_cache_events_total",
			Help:      "Plan cache hits, misses, stores, evictions and skipped stores.",
		}, []string{"event"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finished plan executions, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time of plan executions.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		skillFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_failures_total",
			Help:      "Skill invocations that failed, by skill.",
		}, []string{"skill"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Fallback ladder rungs attempted, by rung and outcome.",
		}, []string{"rung", "outcome"}),
	}

	if reg == nil {
		r := prometheus.NewRegistry()
		reg = r
		m.gatherer = r
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("telemetry: register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.plansGenerated,
		m.cacheEvents,
		m.executions,
		m.duration,
		m.skillFailures,
		m.fallbacks,
	}
}

// Handler serves the private registry in the Prometheus text format. It
// returns nil when the metrics were registered on a caller's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return nil
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// plan.Observer
// =============================================================================

// PlanGenerated counts a generated plan.
func (m *Metrics) PlanGenerated(source plan.Source) {
	if m == nil {
		return
	}
	m.plansGenerated.WithLabelValues(string(source)).Inc()
}

// CacheEvent counts a plan cache event.
func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

// SkillFailed counts a failed skill invocation.
func (m *Metrics) SkillFailed(name string) {
	if m == nil {
		return
	}
	m.skillFailures.WithLabelValues(name).Inc()
}

// FallbackAttempted counts a fallback rung.
func (m *Metrics) FallbackAttempted(rung string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	m.fallbacks.WithLabelValues(rung, outcome).Inc()
}

// ExecutionFinished records the result and duration of an execution.
func (m *Metrics) ExecutionFinished(report *plan.ExecutionReport) {
	if m == nil || report == nil {
		return
	}
	m.executions.WithLabelValues(string(report.Result)).Inc()
	m.duration.Observe(report.ExecutionTime.Seconds())
}
