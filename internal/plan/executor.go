// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vinforge/SAM-sub002/internal/logging"
	"github.com/vinforge/SAM-sub002/internal/skill"
)

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator is the execution engine. It runs a plan step by step against
// the registry, enforces the wall-clock budget between steps, aggregates
// per-skill outcomes and drives the fallback ladder when a plan is rejected
// or the engine itself fails.
//
// One Coordinator serves every request; the per-request state lives in the
// ExecutionContext passed to Execute.
type Coordinator struct {
	registry  *skill.Registry
	validator Validator
	fallback  FallbackGenerator
	classes   *skill.ClassMatcher
	history   *History
	logger    logging.Logger
	observer  Observer
	now       func() time.Time

	// mu protects opts, which the config watcher may replace
	mu   sync.RWMutex
	opts EngineOptions
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithValidator sets the plan validator.
func WithValidator(v Validator) CoordinatorOption {
	return func(c *Coordinator) { c.validator = v }
}

// WithFallbackGenerator sets the last-resort text generator.
func WithFallbackGenerator(f FallbackGenerator) CoordinatorOption {
	return func(c *Coordinator) { c.fallback = f }
}

// WithHistory records every report produced by Execute and Recover.
func WithHistory(h *History) CoordinatorOption {
	return func(c *Coordinator) { c.history = h }
}

// WithEngineClassMatcher overrides the class patterns used for the default
// safe plan.
func WithEngineClassMatcher(m *skill.ClassMatcher) CoordinatorOption {
	return func(c *Coordinator) {
		if m != nil {
			c.classes = m
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logging.OrNop(l) }
}

// WithEngineObserver sets the event observer.
func WithEngineObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock overrides time.Now for timing and budget checks.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates an execution engine.
func NewCoordinator(registry *skill.Registry, opts EngineOptions, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry: registry,
		classes:  skill.DefaultClassMatcher(),
		logger:   logging.Nop(),
		observer: nopObserver{},
		now:      time.Now,
		opts:     opts,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Options returns the current engine options.
func (c *Coordinator) Options() EngineOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// SetOptions replaces the engine options for subsequent requests.
func (c *Coordinator) SetOptions(opts EngineOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

// Execute runs plan against ec and returns the report. It never panics and
// never returns nil: every failure ends in a report whose Result says so.
//
// ec must be PENDING. ctx cancellation is honored between steps, and inside a
// step when skill timeouts are enforced.
func (c *Coordinator) Execute(ctx context.Context, plan []string, ec *ExecutionContext) (report *ExecutionReport) {
	opts := c.Options()
	start := c.now()

	defer func() {
		if r := recover(); r != nil {
			report = c.recoverPanic(ctx, ec, opts, start, r)
		}
		c.done(report)
	}()

	return c.run(ctx, plan, ec, opts, start, true)
}

// Recover is used when no plan could be generated at all: it finishes ec as
// FAILURE with cause unless the fallback ladder produces a usable result.
func (c *Coordinator) Recover(ctx context.Context, ec *ExecutionContext, cause error) (report *ExecutionReport) {
	opts := c.Options()
	start := c.now()

	defer func() {
		if r := recover(); r != nil {
			report = c.recoverPanic(ctx, ec, opts, start, r)
		}
		c.done(report)
	}()

	c.logf(ec, "no plan: %v", cause)
	if err := ec.Start(nil, start); err != nil {
		c.logger.Warn("could not start context", "request_id", ec.RequestID(), "error", err)
	}
	c.finish(ec, skill.StatusFailure, cause)
	if !opts.EnableFallbackPlans {
		return c.report(ec, ResultFailure, nil, nil, nil, start, false, cause.Error())
	}
	if fb := c.ladder(ctx, ec, opts); fb != nil {
		fb.ExecutionTime = c.now().Sub(start)
		return fb
	}
	return c.report(ec, ResultFailure, nil, nil, nil, start, false, fmt.Sprintf("%v; %v", cause, ErrFallbackExhausted))
}

// run is the state machine for one plan. allowFallback is false inside the
// ladder so a failing default plan never recurses into it.
func (c *Coordinator) run(ctx context.Context, plan []string, ec *ExecutionContext, opts EngineOptions, start time.Time, allowFallback bool) *ExecutionReport {
	if err := ec.Start(plan, start); err != nil {
		return &ExecutionReport{
			Result:         ResultFailure,
			Context:        ec,
			Plan:           copyStrings(plan),
			ExecutedSkills: copyStrings(ec.ExecutedSkills()),
			FailedSkills:   []string{},
			Error:          err.Error(),
		}
	}
	c.logf(ec, "executing plan: %s", strings.Join(plan, " -> "))

	// Validation
	if len(plan) == 0 {
		return c.rejected(ctx, ec, opts, start, []string{"plan is empty"}, allowFallback)
	}
	if opts.EnablePlanValidation && c.validator != nil {
		v := c.validator.Validate(append([]string(nil), plan...), ec)
		if !v.IsValid {
			issues := v.Issues
			if len(issues) == 0 {
				issues = []string{"rejected without detail"}
			}
			return c.rejected(ctx, ec, opts, start, issues, allowFallback)
		}
		if len(v.OptimizedPlan) > 0 {
			plan = append([]string(nil), v.OptimizedPlan...)
			if err := ec.SetPlan(plan); err != nil {
				panic(err)
			}
			c.logf(ec, "validator reordered plan: %s", strings.Join(plan, " -> "))
		}
	}

	// Steps
	var executed, failed []string
	for i, name := range plan {
		if status, err := c.interrupted(ctx, start, opts); err != nil {
			c.logf(ec, "stopping before step %d (%s): %v", i+1, name, err)
			c.finish(ec, status, err)
			return c.report(ec, resultFor(status), plan, executed, failed, start, false, err.Error())
		}

		s, ok := c.registry.Get(name)
		if !ok {
			err := &SkillError{Skill: name, Cause: ErrUnknownSkill}
			failed = append(failed, name)
			c.observer.SkillFailed(name)
			c.logf(ec, "step %d: %v", i+1, err)
			if !opts.ContinueOnSkillFailure {
				c.finish(ec, skill.StatusFailure, err)
				return c.report(ec, ResultFailure, plan, executed, failed, start, false, err.Error())
			}
			continue
		}

		err := c.invoke(ctx, name, s, ec, opts, start)
		if err == nil {
			ec.RecordExecuted(name)
			executed = append(executed, name)
			c.logf(ec, "step %d: %s ok", i+1, name)
			continue
		}
		if status, ok := interruption(err); ok {
			c.logf(ec, "step %d (%s) abandoned: %v", i+1, name, err)
			c.finish(ec, status, err)
			return c.report(ec, resultFor(status), plan, executed, failed, start, false, err.Error())
		}

		failed = append(failed, name)
		c.observer.SkillFailed(name)
		c.logf(ec, "step %d: %v", i+1, err)
		if !opts.ContinueOnSkillFailure {
			c.finish(ec, skill.StatusFailure, err)
			return c.report(ec, ResultFailure, plan, executed, failed, start, false, err.Error())
		}
		ec.RecordExecuted(name)
		executed = append(executed, name)
	}

	// Aggregation
	var (
		status skill.Status
		detail string
		cause  error
	)
	switch {
	case len(failed) == 0:
		status = skill.StatusSuccess
	case len(failed) < len(plan):
		status = skill.StatusPartialSuccess
		detail = fmt.Sprintf("%d of %d steps failed: %s", len(failed), len(plan), strings.Join(failed, ", "))
	default:
		status = skill.StatusFailure
		detail = fmt.Sprintf("all %d steps failed", len(plan))
		cause = errors.New(detail)
	}
	c.finish(ec, status, cause)
	c.logf(ec, "plan finished: %s", status)
	return c.report(ec, resultFor(status), plan, executed, failed, start, false, detail)
}

// rejected handles an invalid plan: fallback ladder first, FAILURE otherwise.
func (c *Coordinator) rejected(ctx context.Context, ec *ExecutionContext, opts EngineOptions, start time.Time, issues []string, allowFallback bool) *ExecutionReport {
	cause := fmt.Errorf("%w: %s", ErrPlanRejected, strings.Join(issues, "; "))
	c.logf(ec, "%v", cause)
	c.finish(ec, skill.StatusFailure, cause)

	if allowFallback && opts.EnableFallbackPlans {
		if fb := c.ladder(ctx, ec, opts); fb != nil {
			fb.ExecutionTime = c.now().Sub(start)
			return fb
		}
		return c.report(ec, ResultFailure, ec.Plan(), nil, nil, start, false, fmt.Sprintf("%v; %v", cause, ErrFallbackExhausted))
	}
	return c.report(ec, ResultFailure, ec.Plan(), nil, nil, start, false, cause.Error())
}

// recoverPanic turns an engine-level panic into a FAILURE report, running the
// ladder first. FallbackUsed reports whether the ladder produced a usable
// result; its output is copied onto ec.
func (c *Coordinator) recoverPanic(ctx context.Context, ec *ExecutionContext, opts EngineOptions, start time.Time, r any) *ExecutionReport {
	cause := fmt.Errorf("engine failure: %v", r)
	c.logger.Error("recovered engine panic", "request_id", requestID(ec), "panic", r)
	if ec == nil {
		return &ExecutionReport{
			Result:         ResultFailure,
			ExecutedSkills: []string{},
			FailedSkills:   []string{},
			ExecutionTime:  c.now().Sub(start),
			Error:          cause.Error(),
		}
	}
	c.logf(ec, "%v", cause)
	c.finish(ec, skill.StatusFailure, cause)

	used := false
	detail := cause.Error()
	if opts.EnableFallbackPlans {
		if fb := c.safeLadder(ctx, ec, opts); fb != nil {
			used = true
			ec.SetOutput(fb.Output())
			c.logf(ec, "fallback produced output via %s", strings.Join(fb.ExecutedSkills, ", "))
		} else {
			detail = fmt.Sprintf("%s; %v", detail, ErrFallbackExhausted)
		}
	}
	return c.report(ec, ResultFailure, ec.Plan(), ec.ExecutedSkills(), nil, start, used, detail)
}

// safeLadder runs the ladder with its own recover so a second panic cannot
// escape the engine.
func (c *Coordinator) safeLadder(ctx context.Context, ec *ExecutionContext, opts EngineOptions) (fb *ExecutionReport) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fallback ladder panicked", "request_id", requestID(ec), "panic", r)
			fb = nil
		}
	}()
	return c.ladder(ctx, ec, opts)
}

// interrupted checks cancellation and the wall-clock budget.
func (c *Coordinator) interrupted(ctx context.Context, start time.Time, opts EngineOptions) (skill.Status, error) {
	if err := ctx.Err(); err != nil {
		return skill.StatusCancelled, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if opts.MaxExecutionTime > 0 {
		if elapsed := c.now().Sub(start); elapsed > opts.MaxExecutionTime {
			return skill.StatusTimeout, fmt.Errorf("%w after %s (max: %s)", ErrTimeout, elapsed.Round(time.Millisecond), opts.MaxExecutionTime)
		}
	}
	return 0, nil
}

// invoke runs one skill. Errors and panics come back as *SkillError. With
// EnforceSkillTimeouts the skill runs under its own deadline (bounded by the
// remaining request budget) and is abandoned when it passes. Cancellation of
// ctx or exhaustion of the request budget come back wrapping ErrCancelled or
// ErrTimeout instead.
func (c *Coordinator) invoke(ctx context.Context, name string, s skill.Skill, ec *ExecutionContext, opts EngineOptions, start time.Time) error {
	if !opts.EnforceSkillTimeouts {
		return execute(ctx, name, s, ec)
	}

	limit := time.Duration(0)
	if d, ok := c.registry.Descriptor(name); ok {
		limit = d.MaxExecutionTime
	}
	budgetBound := false
	if opts.MaxExecutionTime > 0 {
		remaining := opts.MaxExecutionTime - c.now().Sub(start)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		if limit == 0 || remaining < limit {
			limit = remaining
			budgetBound = true
		}
	}
	if limit <= 0 {
		return execute(ctx, name, s, ec)
	}

	sctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- execute(sctx, name, s, ec)
	}()

	var err error
	select {
	case err = <-done:
		if err == nil {
			return nil
		}
	case <-sctx.Done():
		err = &SkillError{Skill: name, Cause: sctx.Err()}
	}

	// A deadline that came from the request, not the skill, ends the request.
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, cerr)
	}
	if budgetBound && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s (max: %s)", ErrTimeout, c.now().Sub(start).Round(time.Millisecond), opts.MaxExecutionTime)
	}
	return err
}

// interruption maps an error from invoke that ended the whole request to its
// terminal status.
func interruption(err error) (skill.Status, bool) {
	switch {
	case errors.Is(err, ErrCancelled):
		return skill.StatusCancelled, true
	case errors.Is(err, ErrTimeout):
		return skill.StatusTimeout, true
	default:
		return 0, false
	}
}

// execute calls the skill, converting panics into errors.
func execute(ctx context.Context, name string, s skill.Skill, ec *ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SkillError{Skill: name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := s.Execute(ctx, ec); err != nil {
		return &SkillError{Skill: name, Cause: err}
	}
	return nil
}

// finish moves ec to a terminal status unless it already is.
func (c *Coordinator) finish(ec *ExecutionContext, status skill.Status, err error) {
	if ec.Status().IsTerminal() {
		return
	}
	if ferr := ec.Finish(status, err, c.now()); ferr != nil {
		c.logger.Warn("could not finish context", "request_id", ec.RequestID(), "error", ferr)
	}
}

func (c *Coordinator) report(ec *ExecutionContext, result ResultKind, plan, executed, failed []string, start time.Time, fallbackUsed bool, detail string) *ExecutionReport {
	return &ExecutionReport{
		Result:         result,
		Context:        ec,
		Plan:           copyStrings(plan),
		ExecutedSkills: copyStrings(executed),
		FailedSkills:   copyStrings(failed),
		ExecutionTime:  c.now().Sub(start),
		FallbackUsed:   fallbackUsed,
		Error:          detail,
	}
}

func (c *Coordinator) done(report *ExecutionReport) {
	if report == nil {
		return
	}
	c.observer.ExecutionFinished(report)
	if c.history != nil {
		c.history.Add(report)
	}
	c.logger.Info("request finished",
		"request_id", report.RequestID(),
		"result", report.Result,
		"executed", report.ExecutedSkills,
		"failed", report.FailedSkills,
		"fallback", report.FallbackUsed,
		"duration", report.ExecutionTime,
	)
}

// logf appends to the request log and mirrors the line at debug level.
func (c *Coordinator) logf(ec *ExecutionContext, format string, args ...any) {
	ec.Logf(format, args...)
	c.logger.Debug(fmt.Sprintf(format, args...), "request_id", ec.RequestID())
}

func requestID(ec *ExecutionContext) string {
	if ec == nil {
		return ""
	}
	return ec.RequestID()
}
