// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"
)

// ============================================================================
// TIER TYPE
// ============================================================================

// Tier is where a planning request is sent.
type Tier int

const (
	// TierLocal represents the local Ollama planner.
	TierLocal Tier = iota
	// TierCloud represents the configured cloud provider.
	TierCloud
)

// String returns the human-readable name of the tier.
func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "Local"
	case TierCloud:
		return "Cloud"
	default:
		return fmt.Sprintf("Tier(%d)", t)
	}
}

// IsLocal returns true if the tier never leaves the machine.
func (t Tier) IsLocal() bool {
	return t == TierLocal
}

// ============================================================================
// QUERY COMPLEXITY
// ============================================================================

// QueryComplexity represents the complexity level of a query.
// Determines which tier plans it in auto mode.
type QueryComplexity int

const (
	// ComplexityTrivial represents greetings and very short requests (< 5 words).
	ComplexityTrivial QueryComplexity = iota
	// ComplexitySimple represents single-step lookups and recall.
	ComplexitySimple
	// ComplexityModerate represents multi-step reasoning, context needed.
	ComplexityModerate
	// ComplexityComplex represents analysis, comparison and synthesis across sources.
	ComplexityComplex
	// ComplexityExpert represents open-ended judgement and trade-off questions.
	ComplexityExpert
)

// String returns the human-readable name of the complexity level.
func (c QueryComplexity) String() string {
	switch c {
	case ComplexityTrivial:
		return "Trivial"
	case ComplexitySimple:
		return "Simple"
	case ComplexityModerate:
		return "Moderate"
	case ComplexityComplex:
		return "Complex"
	case ComplexityExpert:
		return "Expert"
	default:
		return fmt.Sprintf("QueryComplexity(%d)", c)
	}
}

// MinTier returns the tier auto mode picks for this complexity level:
//   - Trivial/Simple: Local (free, fast, good enough for short plans)
//   - Moderate/Complex/Expert: Cloud
func (c QueryComplexity) MinTier() Tier {
	switch c {
	case ComplexityTrivial, ComplexitySimple:
		return TierLocal
	default:
		return TierCloud
	}
}

// ============================================================================
// MODES
// ============================================================================

// Mode selects how requests are routed.
type Mode string

const (
	// ModeLocal sends every request to the local backend.
	ModeLocal Mode = "local"
	// ModeCloud sends every request to the cloud backend.
	ModeCloud Mode = "cloud"
	// ModeAuto picks a tier from the query complexity.
	ModeAuto Mode = "auto"
)

// ParseMode normalizes a mode name. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeLocal, ModeCloud, ModeAuto:
		return m, nil
	}
	return "", fmt.Errorf("router: unknown mode %q", s)
}

// AutoFallback decides what happens when the cloud backend fails.
type AutoFallback string

const (
	// FallbackLocal retries a failed cloud request on the local backend.
	FallbackLocal AutoFallback = "local"
	// FallbackError returns the cloud error to the caller.
	FallbackError AutoFallback = "error"
)

// ParseAutoFallback normalizes a fallback policy name. Empty means local.
func ParseAutoFallback(s string) (AutoFallback, error) {
	switch f := AutoFallback(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FallbackLocal, nil
	case FallbackLocal, FallbackError:
		return f, nil
	}
	return "", fmt.Errorf("router: unknown auto_fallback %q", s)
}

// ============================================================================
// ROUTING DECISION
// ============================================================================

// RoutingDecision contains the routing decision and reasoning.
type RoutingDecision struct {
	Tier       Tier
	Complexity QueryComplexity
	Reason     string
	Forced     bool // offline, paranoid or mode pinned the tier
}

// String returns a formatted representation of the routing decision.
func (r RoutingDecision) String() string {
	return fmt.Sprintf("%s (%s): %s", r.Tier, r.Complexity, r.Reason)
}

// Stats counts routed requests.
type Stats struct {
	Local     int
	Cloud     int
	Fallbacks int // cloud failures retried locally
	Errors    int
}
