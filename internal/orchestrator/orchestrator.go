// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vinforge/SAM-sub002/internal/cloud"
	"github.com/vinforge/SAM-sub002/internal/config"
	"github.com/vinforge/SAM-sub002/internal/logging"
	"github.com/vinforge/SAM-sub002/internal/offline"
	"github.com/vinforge/SAM-sub002/internal/ollama"
	"github.com/vinforge/SAM-sub002/internal/plan"
	"github.com/vinforge/SAM-sub002/internal/router"
	"github.com/vinforge/SAM-sub002/internal/skill"
	"github.com/vinforge/SAM-sub002/internal/telemetry"
	"github.com/vinforge/SAM-sub002/internal/util"
)

// Request is one user request.
type Request struct {
	Query   string
	Profile string
	Inputs  map[string]any
}

// Stats is a snapshot of every component's counters.
type Stats struct {
	Generator plan.GeneratorStats
	Cache     plan.CacheStats
	History   plan.HistoryStats
	Router    router.Stats
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator wires the planner backends, plan generator and execution
// engine together and runs requests through them.
type Orchestrator struct {
	registry  *skill.Registry
	logger    logging.Logger
	guard     *offline.Guard
	metrics   *telemetry.Metrics
	local     *ollama.Client
	router    *router.Router
	generator *plan.Generator
	engine    *plan.Coordinator
	history   *plan.History

	mu  sync.RWMutex
	cfg *config.Config
}

// Option configures an Orchestrator.
type Option func(*settings)

type settings struct {
	validator    plan.Validator
	validatorSet bool
	fallback     plan.FallbackGenerator
	backend      plan.PlannerBackend
	backendSet   bool
	logger       logging.Logger
	registerer   prometheus.Registerer
	now          func() time.Time
}

// WithValidator replaces the contract validator. A nil validator disables
// plan validation.
func WithValidator(v plan.Validator) Option {
	return func(s *settings) {
		s.validator = v
		s.validatorSet = true
	}
}

// WithFallbackGenerator sets the last rung of the fallback ladder.
func WithFallbackGenerator(f plan.FallbackGenerator) Option {
	return func(s *settings) { s.fallback = f }
}

// WithBackend uses b as the planner backend instead of the one built from
// planner.backend. A nil backend means rule-based planning only.
func WithBackend(b plan.PlannerBackend) Option {
	return func(s *settings) {
		s.backend = b
		s.backendSet = true
	}
}

// WithLogger uses l instead of a logger built from the logging section.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRegisterer registers metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// WithClock overrides time.Now for the plan cache and the execution engine.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New builds an orchestrator over registry from cfg. A nil cfg uses the
// defaults. The configuration is validated first.
func New(cfg *config.Config, registry *skill.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("orchestrator: nil skill registry")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	o := &Orchestrator{
		registry: registry,
		logger:   s.logger,
		guard:    offline.NewGuard(cfg.Routing.OfflineMode),
		history:  plan.NewHistory(cfg.Orchestrator.HistorySize),
		cfg:      cfg,
	}
	if o.logger == nil {
		o.logger = logging.New(cfg.LoggingOptions())
	}

	var err error
	if cfg.Metrics.Enabled {
		if o.metrics, err = telemetry.NewMetrics(cfg.Metrics.Namespace, s.registerer); err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	classes, err := cfg.ClassMatcher()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	backend := s.backend
	if !s.backendSet {
		if backend, err = o.buildBackend(cfg); err != nil {
			return nil, err
		}
	}

	genOpts := []plan.GeneratorOption{
		plan.WithClassMatcher(classes),
		plan.WithGeneratorLogger(o.logger.With("component", "generator")),
	}
	if backend != nil {
		genOpts = append(genOpts, plan.WithPlannerBackend(backend))
	}
	if o.metrics != nil {
		genOpts = append(genOpts, plan.WithGeneratorObserver(o.metrics))
	}
	gopts := cfg.GeneratorOptions()
	if s.now != nil && gopts.EnablePlanCaching {
		cache, err := plan.NewCache(gopts.CacheMaxEntries, gopts.CacheTTL, registry.Signature, plan.WithCacheClock(s.now))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		genOpts = append(genOpts, plan.WithCache(cache))
	}
	if o.generator, err = plan.NewGenerator(registry, gopts, genOpts...); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	validator := s.validator
	if !s.validatorSet {
		validator = plan.NewContractValidator(registry, cfg.Orchestrator.MaxPlanLength)
	}
	engineOpts := []plan.CoordinatorOption{
		plan.WithValidator(validator),
		plan.WithHistory(o.history),
		plan.WithEngineClassMatcher(classes),
		plan.WithEngineLogger(o.logger.With("component", "engine")),
		plan.WithClock(s.now),
	}
	if s.fallback != nil {
		engineOpts = append(engineOpts, plan.WithFallbackGenerator(s.fallback))
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, plan.WithEngineObserver(o.metrics))
	}
	o.engine = plan.NewCoordinator(registry, cfg.EngineOptions(), engineOpts...)

	o.logger.Info("orchestrator ready",
		"skills", registry.Len(),
		"backend", backendName(backend),
		"offline", o.guard.Enabled(),
		"metrics", cfg.Metrics.Enabled)
	return o, nil
}

// buildBackend creates the planner backend named by planner.backend.
//
// SECURITY: the cloud backend is left out of the router entirely in offline
// or paranoid mode, and every backend also consults the offline guard per
// request.
func (o *Orchestrator) buildBackend(cfg *config.Config) (plan.PlannerBackend, error) {
	switch cfg.Planner.Backend {
	case config.BackendNone:
		return nil, nil

	case config.BackendOllama:
		o.local = ollama.NewClientWithConfig(cfg.OllamaConfig(), ollama.WithGuard(o.guard))
		return o.local, nil

	case config.BackendCloud:
		c, err := cloud.New(cfg.CloudConfig(), o.guard)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: cloud backend: %w", err)
		}
		return c, nil
	}

	o.local = ollama.NewClientWithConfig(cfg.OllamaConfig(), ollama.WithGuard(o.guard))
	ropts := []router.Option{
		router.WithLocal(o.local),
		router.WithGuard(o.guard),
		router.WithLogger(o.logger.With("component", "router")),
	}
	if cfg.Cloud.APIKey != "" && !cfg.Routing.OfflineMode && !cfg.Routing.ParanoidMode {
		c, err := cloud.New(cfg.CloudConfig(), o.guard)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: cloud backend: %w", err)
		}
		ropts = append(ropts, router.WithCloud(c))
	}
	o.router = router.New(cfg.RouterConfig(), ropts...)
	return o.router, nil
}

func backendName(b plan.PlannerBackend) string {
	switch b := b.(type) {
	case nil:
		return "none"
	case *router.Router:
		return "router"
	case interface{ Name() string }:
		return b.Name()
	default:
		return "custom"
	}
}

// =============================================================================
// REQUEST PIPELINE
// =============================================================================

// Handle generates a plan for req and executes it. It always returns a
// report; failures are expressed through the report's Result. When no plan
// can be generated the fallback ladder runs directly.
func (o *Orchestrator) Handle(ctx context.Context, req Request) *plan.ExecutionReport {
	ec := skill.NewExecutionContext(req.Query, req.Profile, req.Inputs)
	log := o.logger.With("request_id", ec.RequestID())
	log.Debug("request received", "query", util.TruncateRunes(req.Query, 80), "profile", req.Profile)

	generated, err := o.generate(ctx, req)
	var report *plan.ExecutionReport
	if err != nil {
		log.Warn("no plan generated", "error", err)
		report = o.engine.Recover(ctx, ec, err)
	} else {
		log.Debug("plan generated",
			"plan", generated.Skills,
			"source", generated.Source,
			"confidence", generated.Confidence,
			"cache_hit", generated.CacheHit)
		report = o.engine.Execute(ctx, generated.Skills, ec)
	}

	log.Info("request finished",
		"result", report.Result,
		"plan", report.Plan,
		"failed", report.FailedSkills,
		"fallback", report.FallbackUsed,
		"duration", report.ExecutionTime)
	return report
}

// generate shields Handle from a panicking planner backend.
func (o *Orchestrator) generate(ctx context.Context, req Request) (g plan.Generated, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plan generation panicked: %v", r)
		}
	}()
	return o.generator.Generate(ctx, req.Query, req.Profile)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config returns a copy of the configuration in effect.
func (o *Orchestrator) Config() *config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.Clone()
}

// ApplyConfig applies the hot-reloadable parts of cfg: engine options,
// routing configuration and offline mode. Planner backends, generator
// settings, cache sizing and metrics keep their construction-time values; a
// warning names any of the generator and cache settings that changed.
func (o *Orchestrator) ApplyConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("orchestrator: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	cfg = cfg.Clone()

	o.mu.RLock()
	pending := restartRequired(o.cfg, cfg)
	o.mu.RUnlock()
	if len(pending) > 0 {
		o.logger.Warn("config changes need a restart to take effect", "keys", pending)
	}

	o.engine.SetOptions(cfg.EngineOptions())
	if o.router != nil {
		o.router.SetConfig(cfg.RouterConfig())
	}
	o.guard.SetEnabled(cfg.Routing.OfflineMode)

	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()

	o.logger.Info("configuration applied",
		"max_execution_time", cfg.EngineOptions().MaxExecutionTime,
		"continue_on_skill_failure", cfg.Orchestrator.ContinueOnSkillFailure,
		"offline", cfg.Routing.OfflineMode)
	return nil
}

// restartRequired names the settings that differ between prev and next but
// are only read when the orchestrator is built.
func restartRequired(prev, next *config.Config) []string {
	var keys []string
	check := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}
	p, n := prev.Orchestrator, next.Orchestrator
	check("orchestrator.enable_plan_caching", p.EnablePlanCaching != n.EnablePlanCaching)
	check("orchestrator.plan_cache_ttl_seconds", p.PlanCacheTTLSeconds != n.PlanCacheTTLSeconds)
	check("orchestrator.max_plan_length", p.MaxPlanLength != n.MaxPlanLength)
	check("orchestrator.caching_confidence_threshold", p.CachingConfidenceThreshold != n.CachingConfidenceThreshold)
	check("orchestrator.rule_confidence", p.RuleConfidence != n.RuleConfidence)
	check("orchestrator.llm_confidence_floor", p.LLMConfidenceFloor != n.LLMConfidenceFloor)
	check("orchestrator.allow_empty_plans", p.AllowEmptyPlans != n.AllowEmptyPlans)
	check("orchestrator.history_size", p.HistorySize != n.HistorySize)
	check("cache.max_entries", prev.Cache.MaxEntries != next.Cache.MaxEntries)
	return keys
}

// WatchConfig reloads path whenever it changes and applies each valid
// version. It blocks until ctx is done.
func (o *Orchestrator) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		if err := o.ApplyConfig(cfg); err != nil {
			o.logger.Warn("config change ignored", "path", path, "error", err)
		}
	}, config.WithWatcherLogger(o.logger.With("component", "config")))
	if err != nil {
		return err
	}
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// Preflight checks that the local planner is reachable and its model is
// pulled. It is a no-op when no local backend is configured.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	if o.local == nil {
		return nil
	}
	if err := o.local.Ready(ctx); err != nil {
		return fmt.Errorf("orchestrator: local planner: %w", err)
	}
	return nil
}

// History returns the report history.
func (o *Orchestrator) History() *plan.History {
	return o.history
}

// Registry returns the skill registry.
func (o *Orchestrator) Registry() *skill.Registry {
	return o.registry
}

// Stats returns a snapshot of generator, cache, history and router counters.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Generator: o.generator.Stats(),
		History:   o.history.Stats(),
	}
	if c := o.generator.Cache(); c != nil {
		s.Cache = c.Stats()
	}
	if o.router != nil {
		s.Router = o.router.Stats()
	}
	return s
}

// ClearCache drops every cached plan and returns how many were held.
func (o *Orchestrator) ClearCache() int {
	c := o.generator.Cache()
	if c == nil {
		return 0
	}
	n := c.Len()
	c.Clear()
	o.logger.Info("plan cache cleared", "entries", n)
	return n
}

// MetricsHandler serves the private metrics registry. It returns nil when
// metrics are disabled or registered on a caller's registry.
func (o *Orchestrator) MetricsHandler() http.Handler {
	return o.metrics.Handler()
}
