// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinforge/SAM-sub002/internal/skill"
)

const (
	memorySkill   = "MemoryRetrievalSkill"
	conflictSkill = "ConflictDetectorSkill"
	responseSkill = "ResponseGenerationSkill"
)

var errSkillFailed = errors.New("skill failed")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// okSkill writes "<name>.done" into the context.
func okSkill(name string) *skill.Func {
	return skill.NewFunc(skill.Descriptor{Name: name, OutputKeys: []string{name + ".done"}},
		func(_ context.Context, ec *skill.ExecutionContext) error {
			ec.Set(name+".done", true)
			return nil
		})
}

// failSkill always returns errSkillFailed.
func failSkill(name string) *skill.Func {
	return skill.NewFunc(skill.Descriptor{Name: name},
		func(context.Context, *skill.ExecutionContext) error {
			return errSkillFailed
		})
}

// slowSkill advances the clock by d.
func slowSkill(name string, clock *fakeClock, d time.Duration) *skill.Func {
	return skill.NewFunc(skill.Descriptor{Name: name},
		func(context.Context, *skill.ExecutionContext) error {
			clock.Advance(d)
			return nil
		})
}

// answerSkill sets the final output.
func answerSkill(name, output string) *skill.Func {
	return skill.NewFunc(skill.Descriptor{Name: name, Category: "response", OutputKeys: []string{"response"}},
		func(_ context.Context, ec *skill.ExecutionContext) error {
			ec.Set("response", output)
			ec.SetOutput(output)
			return nil
		})
}

// standardRegistry registers memory, conflict and response skills that all
// succeed.
func standardRegistry(t *testing.T) *skill.Registry {
	t.Helper()
	reg := skill.NewRegistry()
	require.NoError(t, reg.Register(okSkill(memorySkill)))
	require.NoError(t, reg.Register(okSkill(conflictSkill)))
	require.NoError(t, reg.Register(answerSkill(responseSkill, "final answer")))
	return reg
}
