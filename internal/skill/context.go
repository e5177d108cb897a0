// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package skill

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a status change violates the
// PENDING -> RUNNING -> terminal state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a request. Contexts move PENDING ->
// RUNNING -> terminal. Finish also accepts a PENDING context so a context
// abandoned before it ever started can still be closed out.
type Status int

const (
	// StatusPending - Context created, nothing executed yet
	StatusPending Status = iota

	// StatusRunning - Plan recorded and execution under way
	StatusRunning

	// StatusSuccess - Every step succeeded
	StatusSuccess

	// StatusPartialSuccess - Some but not all steps failed
	StatusPartialSuccess

	// StatusFailure - Every step failed, or execution aborted
	StatusFailure

	// StatusTimeout - Wall-clock budget exhausted between steps
	StatusTimeout

	// StatusCancelled - Caller cancelled the request
	StatusCancelled
)

// String returns the string representation of a status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusPartialSuccess:
		return "PARTIAL_SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s >= StatusSuccess && s <= StatusCancelled
}

// =============================================================================
// EXECUTION CONTEXT
// =============================================================================

// ExecutionContext is the per-request envelope. It is created once per
// request, owned by the execution engine, and discarded after the report is
// produced.
//
// Skills read and write intermediate results through Get/Set. Lifecycle
// methods (Start, Finish, RecordExecuted) belong to the engine.
//
// The mutex only matters when per-skill timeouts abandon a still-running
// skill; the engine itself is single-threaded per request.
type ExecutionContext struct {
	mu sync.RWMutex

	requestID string
	query     string
	profile   string

	// inputs is the caller-supplied snapshot; results starts as a copy of it
	inputs  map[string]any
	results map[string]any
	output  string

	status   Status
	log      []string
	plan     []string
	executed []string

	startedAt time.Time
	endedAt   time.Time
	err       error
}

// NewExecutionContext creates a PENDING context with a fresh request ID.
func NewExecutionContext(query, profile string, inputs map[string]any) *ExecutionContext {
	return newContext(uuid.NewString(), query, profile, inputs)
}

func newContext(requestID, query, profile string, inputs map[string]any) *ExecutionContext {
	snapshot := make(map[string]any, len(inputs))
	results := make(map[string]any, len(inputs))
	for k, v := range inputs {
		snapshot[k] = v
		results[k] = v
	}
	return &ExecutionContext{
		requestID: requestID,
		query:     query,
		profile:   profile,
		inputs:    snapshot,
		results:   results,
		status:    StatusPending,
	}
}

// Fork returns a fresh PENDING context for the same request: same ID, query,
// profile and original inputs, none of the intermediate results or history.
func (ec *ExecutionContext) Fork() *ExecutionContext {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return newContext(ec.requestID, ec.query, ec.profile, ec.inputs)
}

// RequestID returns the request identifier.
func (ec *ExecutionContext) RequestID() string { return ec.requestID }

// Query returns the natural-language request.
func (ec *ExecutionContext) Query() string { return ec.query }

// Profile returns the caller profile the plan was generated for.
func (ec *ExecutionContext) Profile() string { return ec.profile }

// -----------------------------------------------------------------------------
// Intermediate results
// -----------------------------------------------------------------------------

// Set stores an intermediate result.
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.results[key] = value
}

// Get returns an intermediate result.
func (ec *ExecutionContext) Get(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.results[key]
	return v, ok
}

// Has reports whether key is present in the results.
func (ec *ExecutionContext) Has(key string) bool {
	_, ok := ec.Get(key)
	return ok
}

// Keys returns the result keys, sorted.
func (ec *ExecutionContext) Keys() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	keys := make([]string, 0, len(ec.results))
	for k := range ec.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Results returns a copy of every intermediate result.
func (ec *ExecutionContext) Results() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]any, len(ec.results))
	for k, v := range ec.results {
		out[k] = v
	}
	return out
}

// SetOutput sets the final output returned to the caller.
func (ec *ExecutionContext) SetOutput(output string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.output = output
}

// Output returns the final output.
func (ec *ExecutionContext) Output() string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.output
}

// -----------------------------------------------------------------------------
// Log
// -----------------------------------------------------------------------------

// Logf appends a formatted line to the request log.
func (ec *ExecutionContext) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.log = append(ec.log, line)
}

// Log returns a copy of the request log.
func (ec *ExecutionContext) Log() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]string(nil), ec.log...)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Status returns the current lifecycle state.
func (ec *ExecutionContext) Status() Status {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.status
}

// Start records the plan and start time and moves PENDING -> RUNNING.
func (ec *ExecutionContext) Start(plan []string, now time.Time) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ec.status, StatusRunning)
	}
	ec.plan = append([]string(nil), plan...)
	ec.startedAt = now
	ec.status = StatusRunning
	return nil
}

// SetPlan replaces the plan being executed (e.g. with a validator's
// optimized ordering). Only allowed while RUNNING.
func (ec *ExecutionContext) SetPlan(plan []string) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status != StatusRunning {
		return fmt.Errorf("%w: cannot replace plan while %s", ErrInvalidTransition, ec.status)
	}
	ec.plan = append([]string(nil), plan...)
	return nil
}

// Plan returns the plan recorded on the context.
func (ec *ExecutionContext) Plan() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]string(nil), ec.plan...)
}

// RecordExecuted appends a skill name to the executed list.
func (ec *ExecutionContext) RecordExecuted(name string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.executed = append(ec.executed, name)
}

// ExecutedSkills returns the skills invoked so far, in order.
func (ec *ExecutionContext) ExecutedSkills() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]string(nil), ec.executed...)
}

// Finish moves a RUNNING (or never started) context to a terminal status.
// Terminal states are final: a second Finish fails.
func (ec *ExecutionContext) Finish(status Status, err error, now time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status.IsTerminal() {
		return fmt.Errorf("%w: already %s", ErrInvalidTransition, ec.status)
	}
	if ec.status == StatusPending {
		ec.startedAt = now
	}
	ec.status = status
	ec.err = err
	ec.endedAt = now
	return nil
}

// StartedAt returns when execution started.
func (ec *ExecutionContext) StartedAt() time.Time {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.startedAt
}

// EndedAt returns when the context reached a terminal state.
func (ec *ExecutionContext) EndedAt() time.Time {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.endedAt
}

// Err returns the terminal error, if any.
func (ec *ExecutionContext) Err() error {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.err
}
