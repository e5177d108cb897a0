// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinforge/SAM-sub002/internal/plan"
	"github.com/vinforge/SAM-sub002/internal/skill"
)

func rejectAll(issue string) plan.Validator {
	return plan.ValidatorFunc(func([]string, *plan.ExecutionContext) plan.Validation {
		return plan.Validation{Issues: []string{issue}}
	})
}

func newContext() *plan.ExecutionContext {
	return skill.NewExecutionContext("what changed between the two reports?", "default", map[string]any{"user": "u1"})
}

func TestCoordinator_PartialSuccessScenario(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill(memorySkill), failSkill(conflictSkill), answerSkill(responseSkill, "done"))
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions())

	ec := newContext()
	report := engine.Execute(context.Background(), []string{memorySkill, conflictSkill, responseSkill}, ec)

	assert.Equal(t, plan.ResultPartialSuccess, report.Result)
	assert.Equal(t, []string{memorySkill, conflictSkill, responseSkill}, report.ExecutedSkills)
	assert.Equal(t, []string{conflictSkill}, report.FailedSkills)
	assert.False(t, report.FallbackUsed)
	assert.Equal(t, "done", report.Output())
	assert.Equal(t, skill.StatusPartialSuccess, ec.Status())
	assert.Equal(t, report.ExecutedSkills, ec.ExecutedSkills())
}

func TestCoordinator_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		fail   []bool
		result plan.ResultKind
	}{
		{"none failed", []bool{false, false, false}, plan.ResultSuccess},
		{"one of three", []bool{false, true, false}, plan.ResultPartialSuccess},
		{"two of three", []bool{true, true, false}, plan.ResultPartialSuccess},
		{"all failed", []bool{true, true, true}, plan.ResultFailure},
		{"single ok", []bool{false}, plan.ResultSuccess},
		{"single failed", []bool{true}, plan.ResultFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := skill.NewRegistry()
			var steps []string
			for i, fails := range tt.fail {
				name := string(rune('A' + i))
				if fails {
					reg.MustRegister(failSkill(name))
				} else {
					reg.MustRegister(okSkill(name))
				}
				steps = append(steps, name)
			}

			engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions())
			report := engine.Execute(context.Background(), steps, newContext())

			assert.Equal(t, tt.result, report.Result)
			assert.Equal(t, steps, report.ExecutedSkills)
			for _, name := range report.FailedSkills {
				assert.Contains(t, report.ExecutedSkills, name)
			}
		})
	}
}

func TestCoordinator_AbortOnFailure(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill("A"), failSkill("B"), okSkill("C"))
	opts := plan.DefaultEngineOptions()
	opts.ContinueOnSkillFailure = false
	engine := plan.NewCoordinator(reg, opts)

	ec := newContext()
	report := engine.Execute(context.Background(), []string{"A", "B", "C"}, ec)

	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.Equal(t, []string{"A"}, report.ExecutedSkills)
	assert.Equal(t, []string{"B"}, report.FailedSkills)
	assert.False(t, ec.Has("C.done"))

	var skillErr *plan.SkillError
	require.ErrorAs(t, ec.Err(), &skillErr)
	assert.Equal(t, "B", skillErr.Skill)
	assert.ErrorIs(t, ec.Err(), errSkillFailed)
}

func TestCoordinator_UnregisteredSkill(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill("A"))
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions())

	report := engine.Execute(context.Background(), []string{"A", "Ghost"}, newContext())
	assert.Equal(t, plan.ResultPartialSuccess, report.Result)
	assert.Equal(t, []string{"A"}, report.ExecutedSkills)
	assert.Equal(t, []string{"Ghost"}, report.FailedSkills)

	opts := plan.DefaultEngineOptions()
	opts.ContinueOnSkillFailure = false
	engine.SetOptions(opts)

	ec := newContext()
	report = engine.Execute(context.Background(), []string{"Ghost", "A"}, ec)
	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.Empty(t, report.ExecutedSkills)
	assert.ErrorIs(t, ec.Err(), plan.ErrUnknownSkill)
}

func TestCoordinator_SkillPanicIsFailure(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill("A"), skill.NewFunc(skill.Descriptor{Name: "Boom"},
		func(context.Context, *skill.ExecutionContext) error {
			panic("kaboom")
		}))
	obs := &recordingObserver{}
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(), plan.WithEngineObserver(obs))

	report := engine.Execute(context.Background(), []string{"A", "Boom"}, newContext())
	assert.Equal(t, plan.ResultPartialSuccess, report.Result)
	assert.Equal(t, []string{"Boom"}, report.FailedSkills)
	assert.Equal(t, []string{"Boom"}, obs.failed)
	require.Len(t, obs.finished, 1)
}

func TestCoordinator_Timeout(t *testing.T) {
	clock := newFakeClock()
	reg := skill.NewRegistry()
	steps := []string{"S1", "S2", "S3", "S4", "S5"}
	for _, name := range steps {
		reg.MustRegister(slowSkill(name, clock, 10*time.Second))
	}
	opts := plan.DefaultEngineOptions()
	opts.MaxExecutionTime = 25 * time.Second
	engine := plan.NewCoordinator(reg, opts, plan.WithClock(clock.Now))

	ec := newContext()
	report := engine.Execute(context.Background(), steps, ec)

	assert.Equal(t, plan.ResultTimeout, report.Result)
	assert.Equal(t, []string{"S1", "S2", "S3"}, report.ExecutedSkills, "strict prefix of the plan")
	assert.Equal(t, 30*time.Second, report.ExecutionTime)
	assert.ErrorIs(t, ec.Err(), plan.ErrTimeout)
	assert.Equal(t, skill.StatusTimeout, ec.Status())
	assert.False(t, report.FallbackUsed)
}

func TestCoordinator_LastSkillOverrunIsNotTimeout(t *testing.T) {
	clock := newFakeClock()
	reg := skill.NewRegistry()
	reg.MustRegister(slowSkill("Only", clock, time.Minute))
	opts := plan.DefaultEngineOptions()
	opts.MaxExecutionTime = time.Second
	engine := plan.NewCoordinator(reg, opts, plan.WithClock(clock.Now))

	report := engine.Execute(context.Background(), []string{"Only"}, newContext())
	assert.Equal(t, plan.ResultSuccess, report.Result, "budget is only checked between steps")
}

func TestCoordinator_Cancelled(t *testing.T) {
	reg := skill.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	reg.MustRegister(
		skill.NewFunc(skill.Descriptor{Name: "A"}, func(context.Context, *skill.ExecutionContext) error {
			cancel()
			return nil
		}),
		okSkill("B"),
	)
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions())

	ec := newContext()
	report := engine.Execute(ctx, []string{"A", "B"}, ec)

	assert.Equal(t, plan.ResultCancelled, report.Result)
	assert.Equal(t, []string{"A"}, report.ExecutedSkills)
	assert.ErrorIs(t, ec.Err(), plan.ErrCancelled)
}

func TestCoordinator_ValidatorReordersPlan(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill("A"), okSkill("B"))
	validator := plan.ValidatorFunc(func(p []string, _ *plan.ExecutionContext) plan.Validation {
		return plan.Validation{IsValid: true, OptimizedPlan: []string{"B", "A"}}
	})
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(), plan.WithValidator(validator))

	ec := newContext()
	report := engine.Execute(context.Background(), []string{"A", "B"}, ec)

	assert.Equal(t, plan.ResultSuccess, report.Result)
	assert.Equal(t, []string{"B", "A"}, report.Plan)
	assert.Equal(t, []string{"B", "A"}, report.ExecutedSkills)
	assert.Equal(t, []string{"B", "A"}, ec.Plan())
}

func TestCoordinator_ValidationDisabled(t *testing.T) {
	reg := standardRegistry(t)
	opts := plan.DefaultEngineOptions()
	opts.EnablePlanValidation = false
	engine := plan.NewCoordinator(reg, opts, plan.WithValidator(rejectAll("never called")))

	report := engine.Execute(context.Background(), []string{memorySkill}, newContext())
	assert.Equal(t, plan.ResultSuccess, report.Result)
}

func TestCoordinator_RejectionUsesDefaultPlan(t *testing.T) {
	reg := standardRegistry(t)
	// Reject only the original plan.
	validator := plan.ValidatorFunc(func(p []string, _ *plan.ExecutionContext) plan.Validation {
		if len(p) == 1 && p[0] == conflictSkill {
			return plan.Validation{Issues: []string{"conflict alone is useless"}}
		}
		return plan.Validation{IsValid: true}
	})
	obs := &recordingObserver{}
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(),
		plan.WithValidator(validator), plan.WithEngineObserver(obs))

	ec := newContext()
	report := engine.Execute(context.Background(), []string{conflictSkill}, ec)

	assert.Equal(t, plan.ResultSuccess, report.Result)
	assert.True(t, report.FallbackUsed)
	assert.Equal(t, []string{memorySkill, responseSkill}, report.ExecutedSkills)
	assert.Equal(t, "final answer", report.Output())
	assert.Equal(t, ec.RequestID(), report.RequestID(), "fallback runs on a fork of the same request")
	assert.ErrorIs(t, ec.Err(), plan.ErrPlanRejected)
	assert.Equal(t, []string{"default_plan:true"}, obs.rungs)
}

func TestCoordinator_FallbackLadderOrdering(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(failSkill(memorySkill), skill.NewFunc(skill.Descriptor{Name: responseSkill, Category: "response"},
		func(context.Context, *skill.ExecutionContext) error { return errSkillFailed }))

	validator := plan.ValidatorFunc(func(p []string, _ *plan.ExecutionContext) plan.Validation {
		if len(p) == 1 {
			return plan.Validation{Issues: []string{"rejected"}}
		}
		return plan.Validation{IsValid: true}
	})
	var asked string
	fallback := plan.FallbackGeneratorFunc(func(_ context.Context, query string) (string, error) {
		asked = query
		return "raw answer", nil
	})
	obs := &recordingObserver{}
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(),
		plan.WithValidator(validator), plan.WithFallbackGenerator(fallback), plan.WithEngineObserver(obs))

	ec := newContext()
	report := engine.Execute(context.Background(), []string{memorySkill}, ec)

	assert.Equal(t, plan.ResultSuccess, report.Result)
	assert.True(t, report.FallbackUsed)
	assert.Equal(t, []string{plan.FallbackGeneratorName}, report.ExecutedSkills)
	assert.Empty(t, report.FailedSkills)
	assert.Equal(t, "raw answer", report.Output())
	assert.Equal(t, ec.Query(), asked)
	assert.Equal(t, []string{"default_plan:false", "fallback_generator:true"}, obs.rungs)
}

func TestCoordinator_FallbackExhausted(t *testing.T) {
	reg := standardRegistry(t)
	failing := plan.FallbackGeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("offline")
	})
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(),
		plan.WithValidator(rejectAll("nope")), plan.WithFallbackGenerator(failing))

	ec := newContext()
	report := engine.Execute(context.Background(), []string{memorySkill}, ec)

	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.False(t, report.FallbackUsed)
	assert.Contains(t, report.Error, "nope")
	assert.Contains(t, report.Error, plan.ErrFallbackExhausted.Error())
	assert.Same(t, ec, report.Context)
	assert.Equal(t, skill.StatusFailure, ec.Status())
}

func TestCoordinator_FallbackDisabled(t *testing.T) {
	reg := standardRegistry(t)
	opts := plan.DefaultEngineOptions()
	opts.EnableFallbackPlans = false
	called := false
	engine := plan.NewCoordinator(reg, opts,
		plan.WithValidator(rejectAll("nope")),
		plan.WithFallbackGenerator(plan.FallbackGeneratorFunc(func(context.Context, string) (string, error) {
			called = true
			return "x", nil
		})))

	report := engine.Execute(context.Background(), []string{memorySkill}, newContext())
	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.False(t, report.FallbackUsed)
	assert.False(t, called)
}

func TestCoordinator_EmptyPlanGoesToLadder(t *testing.T) {
	engine := plan.NewCoordinator(standardRegistry(t), plan.DefaultEngineOptions())

	report := engine.Execute(context.Background(), nil, newContext())
	assert.Equal(t, plan.ResultSuccess, report.Result)
	assert.True(t, report.FallbackUsed)
}

func TestCoordinator_EnginePanicRunsLadder(t *testing.T) {
	reg := standardRegistry(t)
	panicking := plan.ValidatorFunc(func([]string, *plan.ExecutionContext) plan.Validation {
		panic("validator bug")
	})
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(),
		plan.WithValidator(panicking),
		plan.WithFallbackGenerator(plan.FallbackGeneratorFunc(func(context.Context, string) (string, error) {
			return "rescued", nil
		})))

	ec := newContext()
	report := engine.Execute(context.Background(), []string{memorySkill}, ec)

	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.True(t, report.FallbackUsed)
	assert.Equal(t, "rescued", report.Output())
	assert.Contains(t, report.Error, "validator bug")
	assert.Equal(t, skill.StatusFailure, ec.Status())
}

func TestCoordinator_EnginePanicWithoutFallback(t *testing.T) {
	reg := standardRegistry(t)
	panicking := plan.ValidatorFunc(func([]string, *plan.ExecutionContext) plan.Validation {
		panic("validator bug")
	})
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions(), plan.WithValidator(panicking))

	report := engine.Execute(context.Background(), []string{memorySkill}, newContext())
	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.False(t, report.FallbackUsed)
	assert.Contains(t, report.Error, plan.ErrFallbackExhausted.Error())
}

func TestCoordinator_TerminalStateIsFinal(t *testing.T) {
	engine := plan.NewCoordinator(standardRegistry(t), plan.DefaultEngineOptions())
	ec := newContext()

	report := engine.Execute(context.Background(), []string{memorySkill}, ec)
	require.Equal(t, plan.ResultSuccess, report.Result)

	err := ec.Finish(skill.StatusFailure, nil, time.Now())
	assert.ErrorIs(t, err, skill.ErrInvalidTransition)
	assert.Equal(t, skill.StatusSuccess, ec.Status())

	// Reusing a finished context is refused without touching it.
	again := engine.Execute(context.Background(), []string{memorySkill}, ec)
	assert.Equal(t, plan.ResultFailure, again.Result)
	assert.Equal(t, skill.StatusSuccess, ec.Status())
}

func TestCoordinator_ExecutedIsSubsequenceOfPlan(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill("A"), failSkill("B"))
	engine := plan.NewCoordinator(reg, plan.DefaultEngineOptions())

	steps := []string{"A", "B", "Ghost", "A", "B"}
	report := engine.Execute(context.Background(), steps, newContext())

	i := 0
	for _, name := range report.ExecutedSkills {
		for i < len(steps) && steps[i] != name {
			i++
		}
		require.Less(t, i, len(steps), "%s not found in order", name)
		i++
	}
	assert.Equal(t, []string{"A", "B", "A", "B"}, report.ExecutedSkills)
	assert.Equal(t, plan.ResultPartialSuccess, report.Result)
}

func TestCoordinator_Recover(t *testing.T) {
	engine := plan.NewCoordinator(standardRegistry(t), plan.DefaultEngineOptions())

	report := engine.Recover(context.Background(), newContext(), plan.ErrNoExecutablePlan)
	assert.Equal(t, plan.ResultSuccess, report.Result)
	assert.True(t, report.FallbackUsed)

	empty := plan.NewCoordinator(skill.NewRegistry(), plan.DefaultEngineOptions())
	ec := newContext()
	report = empty.Recover(context.Background(), ec, plan.ErrNoExecutablePlan)
	assert.Equal(t, plan.ResultFailure, report.Result)
	assert.ErrorIs(t, ec.Err(), plan.ErrNoExecutablePlan)
	assert.Contains(t, report.Error, plan.ErrFallbackExhausted.Error())
}

func TestCoordinator_HistoryRecordsReports(t *testing.T) {
	history := plan.NewHistory(10)
	engine := plan.NewCoordinator(standardRegistry(t), plan.DefaultEngineOptions(), plan.WithHistory(history))

	engine.Execute(context.Background(), []string{memorySkill}, newContext())
	engine.Execute(context.Background(), []string{"Ghost"}, newContext())

	require.Equal(t, 2, history.Len())
	recent := history.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, plan.ResultFailure, recent[0].Result)
}

// Preemptive per-skill cancellation is an opt-in enhancement; without it the
// engine waits for a skill to return.
func TestCoordinator_EnforceSkillTimeouts(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	reg := skill.NewRegistry()
	reg.MustRegister(
		skill.NewFunc(skill.Descriptor{Name: "Hang", MaxExecutionTime: 20 * time.Millisecond},
			func(context.Context, *skill.ExecutionContext) error {
				<-release
				return nil
			}),
		okSkill("After"),
	)
	opts := plan.DefaultEngineOptions()
	opts.EnforceSkillTimeouts = true
	engine := plan.NewCoordinator(reg, opts)

	ec := newContext()
	report := engine.Execute(context.Background(), []string{"Hang", "After"}, ec)

	assert.Equal(t, plan.ResultPartialSuccess, report.Result)
	assert.Equal(t, []string{"Hang"}, report.FailedSkills)
	assert.True(t, ec.Has("After.done"))
	assert.Contains(t, strings.Join(ec.Log(), "\n"), context.DeadlineExceeded.Error())
}

func TestCoordinator_SkillSeesDeadlineWhenEnforced(t *testing.T) {
	reg := skill.NewRegistry()
	var hasDeadline bool
	reg.MustRegister(skill.NewFunc(skill.Descriptor{Name: "Check", MaxExecutionTime: time.Minute},
		func(ctx context.Context, _ *skill.ExecutionContext) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		}))
	opts := plan.DefaultEngineOptions()
	opts.EnforceSkillTimeouts = true
	engine := plan.NewCoordinator(reg, opts)

	report := engine.Execute(context.Background(), []string{"Check"}, newContext())
	require.Equal(t, plan.ResultSuccess, report.Result)
	assert.True(t, hasDeadline)
}

// blockSkill waits for its context to end.
func blockSkill(name string) *skill.Func {
	return skill.NewFunc(skill.Descriptor{Name: name},
		func(ctx context.Context, _ *skill.ExecutionContext) error {
			<-ctx.Done()
			return ctx.Err()
		})
}

func TestCoordinator_EnforcedBudgetEndsInTimeout(t *testing.T) {
	tests := []struct {
		name      string
		keepGoing bool
		steps     []string
	}{
		{"abort", false, []string{"A", "Hang", "C"}},
		{"continue", true, []string{"A", "Hang"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := skill.NewRegistry()
			reg.MustRegister(okSkill("A"), blockSkill("Hang"), okSkill("C"))
			opts := plan.DefaultEngineOptions()
			opts.EnforceSkillTimeouts = true
			opts.ContinueOnSkillFailure = tt.keepGoing
			opts.MaxExecutionTime = 30 * time.Millisecond
			engine := plan.NewCoordinator(reg, opts)

			ec := newContext()
			report := engine.Execute(context.Background(), tt.steps, ec)

			assert.Equal(t, plan.ResultTimeout, report.Result)
			assert.Equal(t, []string{"A"}, report.ExecutedSkills)
			assert.Empty(t, report.FailedSkills)
			assert.False(t, ec.Has("C.done"))
			assert.Equal(t, skill.StatusTimeout, ec.Status())
			assert.ErrorIs(t, ec.Err(), plan.ErrTimeout)
		})
	}
}

func TestCoordinator_EnforcedCancelMidSkill(t *testing.T) {
	reg := skill.NewRegistry()
	reg.MustRegister(okSkill("A"), blockSkill("Hang"), okSkill("C"))
	opts := plan.DefaultEngineOptions()
	opts.EnforceSkillTimeouts = true
	opts.ContinueOnSkillFailure = false
	engine := plan.NewCoordinator(reg, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	ec := newContext()
	report := engine.Execute(ctx, []string{"A", "Hang", "C"}, ec)

	assert.Equal(t, plan.ResultCancelled, report.Result)
	assert.Equal(t, []string{"A"}, report.ExecutedSkills)
	assert.Empty(t, report.FailedSkills)
	assert.Equal(t, skill.StatusCancelled, ec.Status())
	assert.ErrorIs(t, ec.Err(), plan.ErrCancelled)
}

// Recover starts the context before failing it, so StartedAt is the time
// recovery began rather than the time it gave up.
func TestCoordinator_RecoverStartsContext(t *testing.T) {
	clock := newFakeClock()
	begin := clock.Now()
	ticking := func() time.Time {
		clock.Advance(time.Second)
		return clock.Now()
	}
	engine := plan.NewCoordinator(skill.NewRegistry(), plan.DefaultEngineOptions(), plan.WithClock(ticking))

	ec := newContext()
	report := engine.Recover(context.Background(), ec, plan.ErrNoExecutablePlan)

	require.Equal(t, plan.ResultFailure, report.Result)
	assert.Equal(t, skill.StatusFailure, ec.Status())
	assert.Equal(t, begin.Add(time.Second), ec.StartedAt())
	assert.True(t, ec.EndedAt().After(ec.StartedAt()))
	assert.Empty(t, ec.Plan())
}
