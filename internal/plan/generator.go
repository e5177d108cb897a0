// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vinforge/SAM-sub002/internal/logging"
	"github.com/vinforge/SAM-sub002/internal/skill"
)

// =============================================================================
// PLANNER BACKEND INTERFACE
// =============================================================================

// PlannerBackend generates text from a prompt. Errors and malformed output are
// recoverable: the generator falls through to rule-based planning.
type PlannerBackend interface {
	// GenerateCompletion generates a text completion from the LLM
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// PlannerBackendFunc adapts a function into a PlannerBackend.
type PlannerBackendFunc func(ctx context.Context, prompt string) (string, error)

// GenerateCompletion calls f.
func (f PlannerBackendFunc) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type queryKey struct{}

// WithQuery attaches the user query to ctx. The generator does this before
// calling the backend so routing backends can classify the request rather
// than the full prompt.
func WithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryKey{}, query)
}

// QueryFromContext returns the query stored by WithQuery.
func QueryFromContext(ctx context.Context) (string, bool) {
	q, ok := ctx.Value(queryKey{}).(string)
	return q, ok
}

// =============================================================================
// STATISTICS
// =============================================================================

// GeneratorStats counts generated plans by source.
type GeneratorStats struct {
	Total         int
	BySource      map[Source]int
	LLMRejections int
	Cache         CacheStats
}

// CacheHitRate returns the share of requests answered from the cache.
func (s GeneratorStats) CacheHitRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.BySource[SourceCache]) / float64(s.Total)
}

// =============================================================================
// PLAN GENERATOR
// =============================================================================

// Generator produces plans: cache first, then the planner backend, then
// deterministic rules.
type Generator struct {
	registry *skill.Registry
	backend  PlannerBackend
	cache    *Cache
	classes  *skill.ClassMatcher
	opts     GeneratorOptions
	logger   logging.Logger
	observer Observer

	mu            sync.Mutex
	total         int
	bySource      map[Source]int
	llmRejections int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithPlannerBackend sets the LLM planner backend. Without one the generator
// goes straight from the cache to rules.
func WithPlannerBackend(b PlannerBackend) GeneratorOption {
	return func(g *Generator) { g.backend = b }
}

// WithCache supplies a shared cache instead of building one from the options.
func WithCache(c *Cache) GeneratorOption {
	return func(g *Generator) { g.cache = c }
}

// WithClassMatcher overrides the default skill class patterns.
func WithClassMatcher(m *skill.ClassMatcher) GeneratorOption {
	return func(g *Generator) {
		if m != nil {
			g.classes = m
		}
	}
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l logging.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logging.OrNop(l) }
}

// WithGeneratorObserver sets the event observer.
func WithGeneratorObserver(o Observer) GeneratorOption {
	return func(g *Generator) {
		if o != nil {
			g.observer = o
		}
	}
}

// NewGenerator creates a plan generator over the registry.
func NewGenerator(registry *skill.Registry, opts GeneratorOptions, options ...GeneratorOption) (*Generator, error) {
	if registry == nil {
		return nil, fmt.Errorf("plan generator requires a skill registry")
	}
	g := &Generator{
		registry: registry,
		classes:  skill.DefaultClassMatcher(),
		opts:     opts.withDefaults(),
		logger:   logging.Nop(),
		observer: nopObserver{},
		bySource: make(map[Source]int),
	}
	for _, opt := range options {
		opt(g)
	}
	if g.opts.EnablePlanCaching && g.cache == nil {
		cache, err := NewCache(g.opts.CacheMaxEntries, g.opts.CacheTTL, registry.Signature)
		if err != nil {
			return nil, err
		}
		g.cache = cache
	}
	return g, nil
}

// Cache returns the plan cache, or nil when caching is disabled.
func (g *Generator) Cache() *Cache {
	return g.cache
}

// Generate returns a plan for the request. The result is never an empty plan:
// when nothing applies it returns the single-skill default, or
// ErrNoExecutablePlan if the registry is empty or empty plans are allowed.
func (g *Generator) Generate(ctx context.Context, query, profile string) (Generated, error) {
	fingerprint := Fingerprint(query, profile, g.registry.Names())
	log := g.logger.With("fingerprint", shortKey(fingerprint))

	// 1. Cache
	if g.cachingEnabled() {
		if entry, ok := g.cache.Get(fingerprint); ok {
			g.observer.CacheEvent(CacheHit)
			log.Debug("plan cache hit", "plan", entry.Plan, "usage", entry.UsageCount)
			return g.record(Generated{
				Skills:      entry.Plan,
				Confidence:  entry.Confidence,
				Reasoning:   entry.Reasoning,
				CacheHit:    true,
				Source:      SourceCache,
				Fingerprint: fingerprint,
			}), nil
		}
		g.observer.CacheEvent(CacheMiss)
	}

	// 2. Planner backend
	var result Generated
	if g.backend != nil {
		llm, err := g.fromBackend(ctx, query, profile)
		if err == nil {
			result = llm
		} else {
			g.mu.Lock()
			g.llmRejections++
			g.mu.Unlock()
			log.Warn("LLM plan rejected, using rules", "error", err)
		}
	}

	// 3. Rules
	if len(result.Skills) == 0 {
		rules, err := g.fromRules(query)
		if err != nil {
			return Generated{Fingerprint: fingerprint}, err
		}
		result = rules
	}
	result.Fingerprint = fingerprint

	// 4. Store
	g.store(result)

	log.Debug("plan generated", "source", result.Source, "plan", result.Skills, "confidence", result.Confidence)
	return g.record(result), nil
}

// fromBackend asks the planner backend and validates what it returns.
func (g *Generator) fromBackend(ctx context.Context, query, profile string) (Generated, error) {
	prompt := BuildPrompt(query, profile, g.registry.Describe(), g.opts.MaxPlanLength)

	text, err := g.backend.GenerateCompletion(WithQuery(ctx, query), prompt)
	if err != nil {
		return Generated{}, &PlannerError{Reason: "backend unavailable", Cause: err}
	}

	resp, err := ParseResponse(text)
	if err != nil {
		return Generated{}, &PlannerError{Reason: "unparseable response", Cause: err}
	}
	if len(resp.Plan) == 0 {
		return Generated{}, &PlannerError{Reason: "empty plan", Cause: ErrMalformedPlan}
	}
	if len(resp.Plan) > g.opts.MaxPlanLength {
		return Generated{}, &PlannerError{
			Reason: fmt.Sprintf("%d steps", len(resp.Plan)),
			Cause:  fmt.Errorf("%w (max: %d)", ErrPlanTooLong, g.opts.MaxPlanLength),
		}
	}
	for _, name := range resp.Plan {
		if !g.registry.Has(name) {
			return Generated{}, &PlannerError{
				Reason: "plan references " + name,
				Cause:  fmt.Errorf("%w: %s", ErrUnknownSkill, name),
			}
		}
	}

	return Generated{
		Skills:     resp.Plan,
		Confidence: clamp(resp.Confidence, g.opts.LLMConfidenceFloor, 1),
		Reasoning:  resp.Reasoning,
		Source:     SourceLLM,
	}, nil
}

// fromRules builds the deterministic plan: memory first, conflict when the
// query asks for a comparison, response last.
func (g *Generator) fromRules(query string) (Generated, error) {
	var steps []string
	var why []string

	if name, ok := g.classes.Resolve(g.registry, skill.ClassMemory); ok {
		steps = append(steps, name)
		why = append(why, "retrieve memory")
	}
	if trigger := g.conflictTrigger(query); trigger != "" {
		if name, ok := g.classes.Resolve(g.registry, skill.ClassConflict); ok {
			steps = append(steps, name)
			why = append(why, fmt.Sprintf("check conflicts (%q)", trigger))
		}
	}
	if name, ok := g.classes.Resolve(g.registry, skill.ClassResponse); ok {
		steps = append(steps, name)
		why = append(why, "generate response")
	}

	if len(steps) > 0 {
		return Generated{
			Skills:       steps,
			Confidence:   g.opts.RuleConfidence,
			Reasoning:    "rule-based: " + strings.Join(why, ", "),
			FallbackUsed: true,
			Source:       SourceRules,
		}, nil
	}

	names := g.registry.Names()
	if len(names) == 0 {
		return Generated{}, fmt.Errorf("%w: no skills registered", ErrNoExecutablePlan)
	}
	if g.opts.AllowEmptyPlans {
		return Generated{}, fmt.Errorf("%w: no rule matched", ErrNoExecutablePlan)
	}
	return Generated{
		Skills:       names[:1],
		Confidence:   g.opts.RuleConfidence,
		Reasoning:    "default: single registered skill " + names[0],
		FallbackUsed: true,
		Source:       SourceDefault,
	}, nil
}

func (g *Generator) conflictTrigger(query string) string {
	q := strings.ToLower(query)
	for _, t := range g.opts.ConflictTriggers {
		if t != "" && strings.Contains(q, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}

func (g *Generator) store(result Generated) {
	if !g.cachingEnabled() {
		return
	}
	if result.Confidence <= g.opts.CachingConfidenceThreshold {
		g.observer.CacheEvent(CacheSkipped)
		return
	}
	if g.cache.Put(result.Fingerprint, result.Skills, result.Confidence, result.Reasoning) {
		g.observer.CacheEvent(CacheStore)
	}
	for i := g.cache.InvalidateStale(); i > 0; i-- {
		g.observer.CacheEvent(CacheEvict)
	}
}

func (g *Generator) record(result Generated) Generated {
	g.mu.Lock()
	g.total++
	g.bySource[result.Source]++
	g.mu.Unlock()
	g.observer.PlanGenerated(result.Source)
	return result
}

func (g *Generator) cachingEnabled() bool {
	return g.opts.EnablePlanCaching && g.cache != nil
}

// DefaultPlan returns the safe plan used by the fallback ladder: the memory
// skill, if registered, followed by the response skill, if registered.
func (g *Generator) DefaultPlan() []string {
	return defaultPlan(g.registry, g.classes)
}

func defaultPlan(registry *skill.Registry, classes *skill.ClassMatcher) []string {
	var steps []string
	if name, ok := classes.Resolve(registry, skill.ClassMemory); ok {
		steps = append(steps, name)
	}
	if name, ok := classes.Resolve(registry, skill.ClassResponse); ok {
		steps = append(steps, name)
	}
	return steps
}

// Stats returns generation counters.
func (g *Generator) Stats() GeneratorStats {
	g.mu.Lock()
	stats := GeneratorStats{
		Total:         g.total,
		BySource:      make(map[Source]int, len(g.bySource)),
		LLMRejections: g.llmRejections,
	}
	for k, v := range g.bySource {
		stats.BySource[k] = v
	}
	g.mu.Unlock()

	if g.cache != nil {
		stats.Cache = g.cache.Stats()
	}
	return stats
}

// IsPlannerError reports whether err came from the LLM stage.
func IsPlannerError(err error) bool {
	var pe *PlannerError
	return errors.As(err, &pe)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
