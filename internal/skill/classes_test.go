// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClass(t *testing.T) {
	for _, c := range []Class{ClassMemory, ClassConflict, ClassResponse} {
		got, err := ParseClass(" " + c.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseClass("retrieval")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Class(42).String())
}

func TestClassMatcher_DefaultPatterns(t *testing.T) {
	m := DefaultClassMatcher()

	tests := []struct {
		name  string
		class Class
		want  bool
	}{
		{"MemoryRetrievalSkill", ClassMemory, true},
		{"memory_retrieval", ClassMemory, true},
		{"RecallNotes", ClassMemory, true},
		{"MemoryWriter", ClassMemory, false},
		{"ConflictDetectorSkill", ClassConflict, true},
		{"ResponseGenerationSkill", ClassResponse, true},
		{"AnswerComposer", ClassResponse, true},
		{"ResponseCache", ClassResponse, false},
		{"Calculator", ClassResponse, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Matches(Descriptor{Name: tt.name}, tt.class), "%s / %s", tt.name, tt.class)
	}
}

func TestClassMatcher_CategoryWins(t *testing.T) {
	m := DefaultClassMatcher()
	assert.True(t, m.Matches(Descriptor{Name: "Lookup", Category: "Memory"}, ClassMemory))

	r := NewRegistry()
	r.MustRegister(
		NewFunc(Descriptor{Name: "AMemoryRetriever"}, nil),
		NewFunc(Descriptor{Name: "Zed", Category: "memory"}, nil),
	)
	name, ok := m.Resolve(r, ClassMemory)
	require.True(t, ok)
	assert.Equal(t, "Zed", name, "category match beats an earlier name match")
}

func TestClassMatcher_ResolveTieBreak(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFunc(Descriptor{Name: "ZResponseGenerator"}, nil),
		NewFunc(Descriptor{Name: "AResponseGenerator"}, nil),
	)
	name, ok := DefaultClassMatcher().Resolve(r, ClassResponse)
	require.True(t, ok)
	assert.Equal(t, "AResponseGenerator", name)

	_, ok = DefaultClassMatcher().Resolve(r, ClassConflict)
	assert.False(t, ok)
}

func TestNewClassMatcher_Custom(t *testing.T) {
	m, err := NewClassMatcher(map[Class][]string{ClassConflict: {"*contradiction*"}})
	require.NoError(t, err)
	assert.True(t, m.Matches(Descriptor{Name: "ContradictionFinder"}, ClassConflict))
	assert.False(t, m.Matches(Descriptor{Name: "ConflictDetector"}, ClassConflict))
	assert.True(t, m.Matches(Descriptor{Name: "MemoryRetrieval"}, ClassMemory), "other classes keep defaults")

	_, err = NewClassMatcher(map[Class][]string{ClassMemory: {"[unclosed"}})
	assert.Error(t, err)
}
