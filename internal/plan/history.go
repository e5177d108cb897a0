// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"sync"
	"time"
)

// History keeps the most recent execution reports in memory.
type History struct {
	mu      sync.Mutex
	reports []*ExecutionReport
	limit   int
}

// HistoryStats summarizes the reports currently held.
type HistoryStats struct {
	Total            int
	ByResult         map[ResultKind]int
	FallbackCount    int
	AverageExecution time.Duration
}

// SuccessRate returns the share of SUCCESS and PARTIAL_SUCCESS reports.
func (s HistoryStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.ByResult[ResultSuccess]+s.ByResult[ResultPartialSuccess]) / float64(s.Total)
}

// NewHistory creates a history holding at most limit reports
// (DefaultHistorySize when limit <= 0).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{limit: limit}
}

// Add appends a report, dropping the oldest once full.
func (h *History) Add(r *ExecutionReport) {
	if r == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
	if over := len(h.reports) - h.limit; over > 0 {
		h.reports = append([]*ExecutionReport(nil), h.reports[over:]...)
	}
}

// Recent returns up to n reports, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []*ExecutionReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.reports) {
		n = len(h.reports)
	}
	out := make([]*ExecutionReport, 0, n)
	for i := len(h.reports) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.reports[i])
	}
	return out
}

// Len returns the number of reports held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reports)
}

// Stats aggregates the reports held.
func (h *History) Stats() HistoryStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HistoryStats{
		Total:    len(h.reports),
		ByResult: make(map[ResultKind]int),
	}
	var total time.Duration
	for _, r := range h.reports {
		stats.ByResult[r.Result]++
		if r.FallbackUsed {
			stats.FallbackCount++
		}
		total += r.ExecutionTime
	}
	if stats.Total > 0 {
		stats.AverageExecution = total / time.Duration(stats.Total)
	}
	return stats
}
