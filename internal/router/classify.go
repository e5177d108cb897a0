// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"
)

// ============================================================================
// CLASSIFICATION FUNCTIONS
// ============================================================================

// wordCount returns the number of words in a string.
// Uses strings.Fields which splits on whitespace.
func wordCount(s string) int {
	return len(strings.Fields(s))
}

var (
	expertKeywords   = []string{"trade-off", "tradeoff", "pros and cons", "best approach", "should i", "recommend"}
	complexKeywords  = []string{"compare", "versus", " vs ", "analyze", "analyse", "explain", "summarize", "contradict", "conflict", "sources", "evaluate"}
	moderateKeywords = []string{" how", " why", "difference", "relationship"}
	simpleKeywords   = []string{"what is", "who is", "where is", "when did", "find", "list", "remember", "recall"}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// ClassifyComplexity analyzes query text to determine complexity level.
// This drives tier selection in auto mode.
//
// Classification rules (in order of priority):
//  1. Expert: trade-offs, recommendations, "should I" questions
//  2. Complex: comparison, analysis, multi-source questions, or word count > 15
//  3. Moderate: how/why questions, or word count > 10
//  4. Simple: basic lookups and recall (what is, find, list, remember)
//  5. Moderate: anything else with 5+ words
//  6. Trivial: very short queries with no keywords
func ClassifyComplexity(query string) QueryComplexity {
	q := " " + strings.ToLower(query) + " "
	wc := wordCount(query)

	if containsAny(q, expertKeywords) {
		return ComplexityExpert
	}
	if containsAny(q, complexKeywords) || wc > 15 {
		return ComplexityComplex
	}
	if containsAny(q, moderateKeywords) || wc > 10 {
		return ComplexityModerate
	}
	if containsAny(q, simpleKeywords) {
		return ComplexitySimple
	}
	if wc >= 5 {
		return ComplexityModerate
	}
	return ComplexityTrivial
}
