// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package skill

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// =============================================================================
// SKILL CLASSES
// =============================================================================

// Class identifies the role a skill plays in rule-based and default plans.
type Class int

const (
	// ClassMemory - retrieves stored knowledge for the query
	ClassMemory Class = iota

	// ClassConflict - detects disagreement between sources
	ClassConflict

	// ClassResponse - produces the final answer
	ClassResponse
)

// String returns the class name. It doubles as the Descriptor.Category value
// that selects the class directly.
func (c Class) String() string {
	switch c {
	case ClassMemory:
		return "memory"
	case ClassConflict:
		return "conflict"
	case ClassResponse:
		return "response"
	default:
		return "unknown"
	}
}

// ParseClass converts a class name into a Class.
func ParseClass(name string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "memory":
		return ClassMemory, nil
	case "conflict":
		return ClassConflict, nil
	case "response":
		return ClassResponse, nil
	default:
		return 0, fmt.Errorf("unknown skill class %q", name)
	}
}

// DefaultClassPatterns returns the name patterns used when a descriptor has no
// matching category. Patterns are matched against the lower-cased name.
func DefaultClassPatterns() map[Class][]string {
	return map[Class][]string{
		ClassMemory:   {"*memory*retriev*", "*recall*"},
		ClassConflict: {"*conflict*"},
		ClassResponse: {"*response*generat*", "*answer*"},
	}
}

// ClassMatcher resolves which registered skill fills a class.
type ClassMatcher struct {
	patterns map[Class][]glob.Glob
}

// NewClassMatcher compiles the given patterns. Classes missing from the map
// fall back to DefaultClassPatterns.
func NewClassMatcher(patterns map[Class][]string) (*ClassMatcher, error) {
	merged := DefaultClassPatterns()
	for class, pats := range patterns {
		if len(pats) > 0 {
			merged[class] = pats
		}
	}

	m := &ClassMatcher{patterns: make(map[Class][]glob.Glob, len(merged))}
	for class, pats := range merged {
		for _, p := range pats {
			g, err := glob.Compile(strings.ToLower(p))
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", class, p, err)
			}
			m.patterns[class] = append(m.patterns[class], g)
		}
	}
	return m, nil
}

// DefaultClassMatcher returns a matcher over DefaultClassPatterns.
func DefaultClassMatcher() *ClassMatcher {
	m, err := NewClassMatcher(nil)
	if err != nil {
		// Default patterns are constants; failure here is a programming error.
		panic(err)
	}
	return m
}

// Matches reports whether the descriptor belongs to the class, either by
// category or by name pattern.
func (m *ClassMatcher) Matches(d Descriptor, c Class) bool {
	if strings.EqualFold(strings.TrimSpace(d.Category), c.String()) {
		return true
	}
	return m.matchesName(d.Name, c)
}

func (m *ClassMatcher) matchesName(name string, c Class) bool {
	lower := strings.ToLower(name)
	for _, g := range m.patterns[c] {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

// Resolve returns the registered skill that fills the class. Category matches
// win over name matches; within each, the lexicographically first name wins.
func (m *ClassMatcher) Resolve(r *Registry, c Class) (string, bool) {
	descs := r.Describe()
	for _, d := range descs {
		if strings.EqualFold(strings.TrimSpace(d.Category), c.String()) {
			return d.Name, true
		}
	}
	for _, d := range descs {
		if m.matchesName(d.Name, c) {
			return d.Name, true
		}
	}
	return "", false
}
