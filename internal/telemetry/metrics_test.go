// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinforge/SAM-sub002/internal/plan"
)

func TestMetrics_RecordsEvents(t *testing.T) {
	m, err := NewMetrics("test", nil)
	require.NoError(t, err)

	m.PlanGenerated(plan.SourceRules)
	m.PlanGenerated(plan.SourceRules)
	m.PlanGenerated(plan.SourceCache)
	m.CacheEvent(plan.CacheMiss)
	m.SkillFailed("ConflictDetectorSkill")
	m.FallbackAttempted(plan.RungDefaultPlan, false)
	m.FallbackAttempted(plan.RungGenerator, true)
	m.ExecutionFinished(&plan.ExecutionReport{Result: plan.ResultPartialSuccess, ExecutionTime: 40 * time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.plansGenerated.WithLabelValues("rules")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.plansGenerated.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skillFailures.WithLabelValues("ConflictDetectorSkill")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("default_plan", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("fallback_generator", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("PARTIAL_SUCCESS")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PlanGenerated(plan.SourceLLM)
		m.CacheEvent(plan.CacheHit)
		m.SkillFailed("x")
		m.FallbackAttempted(plan.RungExhausted, false)
		m.ExecutionFinished(&plan.ExecutionReport{})
	})
	assert.Nil(t, m.Handler())
}

func TestMetrics_ExternalRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("", reg)
	require.NoError(t, err)
	assert.Nil(t, m.Handler(), "caller owns the registry")

	m.CacheEvent(plan.CacheHit)
	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sam_plan_cache_events_total")

	_, err = NewMetrics("", reg)
	assert.Error(t, err, "duplicate registration")
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics("sam", nil)
	require.NoError(t, err)
	m.ExecutionFinished(&plan.ExecutionReport{Result: plan.ResultSuccess, ExecutionTime: time.Millisecond})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `sam_executions_total{result="SUCCESS"} 1`), body)
	assert.Contains(t, body, "sam_execution_duration_seconds_bucket")
}
