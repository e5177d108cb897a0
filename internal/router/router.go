// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vinforge/SAM-sub002/internal/logging"
	"github.com/vinforge/SAM-sub002/internal/offline"
	"github.com/vinforge/SAM-sub002/internal/plan"
	"github.com/vinforge/SAM-sub002/internal/util"
)

// ErrNoBackend is returned when the chosen tier has no backend configured.
var ErrNoBackend = errors.New("router: no planner backend available")

// MaxQueryLength is the maximum query length in bytes considered for cloud
// routing. Longer queries are planned locally.
const MaxQueryLength = 100000

// Backend is a named planner backend.
type Backend interface {
	Name() string
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// Config controls routing behavior.
type Config struct {
	Mode         Mode
	AutoFallback AutoFallback
	Paranoid     bool    // never use the cloud backend
	RateLimit    float64 // requests per second per backend; <= 0 is unlimited
	Burst        int
}

// DefaultConfig returns auto routing with local fallback and no rate limit.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeAuto,
		AutoFallback: FallbackLocal,
		Burst:        1,
	}
}

// Router implements plan.PlannerBackend by choosing between a local and a
// cloud backend per request.
//
// SECURITY: offline mode and paranoid mode are checked before any other
// routing logic and always pin the request to the local backend.
type Router struct {
	local  Backend
	cloud  Backend
	guard  *offline.Guard
	logger logging.Logger

	mu       sync.Mutex
	cfg      Config
	limiters map[Tier]*rate.Limiter
	stats    Stats
}

var _ plan.PlannerBackend = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithLocal sets the local backend.
func WithLocal(b Backend) Option {
	return func(r *Router) { r.local = b }
}

// WithCloud sets the cloud backend.
func WithCloud(b Backend) Option {
	return func(r *Router) { r.cloud = b }
}

// WithGuard sets the offline guard consulted on every request.
func WithGuard(g *offline.Guard) Option {
	return func(r *Router) { r.guard = g }
}

// WithLogger sets the logger for routing decisions.
func WithLogger(l logging.Logger) Option {
	return func(r *Router) { r.logger = logging.OrNop(l) }
}

// New creates a router. Backends are optional; a request routed to a
// missing backend fails with ErrNoBackend.
func New(cfg Config, opts ...Option) *Router {
	r := &Router{logger: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	r.SetConfig(cfg)
	return r
}

// SetConfig replaces the routing configuration. Rate limiters are rebuilt.
func (r *Router) SetConfig(cfg Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.AutoFallback == "" {
		cfg.AutoFallback = FallbackLocal
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.limiters = map[Tier]*rate.Limiter{
		TierLocal: rate.NewLimiter(limit, cfg.Burst),
		TierCloud: rate.NewLimiter(limit, cfg.Burst),
	}
}

// Config returns the current routing configuration.
func (r *Router) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Route decides which tier plans the query.
//
// SECURITY CHECK ORDER (DO NOT REORDER):
//  1. Offline mode
//  2. Paranoid mode
//  3. Query length
//  4. Pinned mode, then complexity
func (r *Router) Route(query string) RoutingDecision {
	cfg := r.Config()
	complexity := ClassifyComplexity(query)

	forced := func(reason string) RoutingDecision {
		return RoutingDecision{Tier: TierLocal, Complexity: complexity, Reason: reason, Forced: true}
	}

	if r.guard.Enabled() {
		return forced("offline mode blocks cloud")
	}
	if cfg.Paranoid {
		return forced("paranoid mode blocks cloud")
	}
	if len(query) > MaxQueryLength {
		return forced(fmt.Sprintf("query exceeds %d bytes", MaxQueryLength))
	}

	switch cfg.Mode {
	case ModeLocal:
		return forced("local mode")
	case ModeCloud:
		if r.cloud == nil {
			return forced("no cloud backend")
		}
		return RoutingDecision{Tier: TierCloud, Complexity: complexity, Reason: "cloud mode", Forced: true}
	}

	tier := complexity.MinTier()
	reason := fmt.Sprintf("%s complexity -> %s", complexity, tier)
	switch {
	case tier == TierCloud && r.cloud == nil:
		tier, reason = TierLocal, reason+" (no cloud backend)"
	case tier == TierLocal && r.local == nil && r.cloud != nil:
		tier, reason = TierCloud, reason+" (no local backend)"
	}
	return RoutingDecision{Tier: tier, Complexity: complexity, Reason: reason}
}

// GenerateCompletion routes the prompt. The query used for classification is
// taken from the context (see plan.WithQuery), falling back to the prompt.
func (r *Router) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	query, ok := plan.QueryFromContext(ctx)
	if !ok {
		query = prompt
	}
	d := r.Route(query)

	r.logger.Debug("routing decision",
		"query", util.TruncateRunes(query, 50),
		"tier", d.Tier.String(),
		"complexity", d.Complexity.String(),
		"reason", d.Reason)

	text, err := r.call(ctx, d.Tier, prompt)
	if err == nil {
		return text, nil
	}

	cfg := r.Config()
	if d.Tier == TierCloud && cfg.AutoFallback == FallbackLocal && r.local != nil && ctx.Err() == nil {
		r.logger.Warn("cloud planner failed, retrying locally", "error", err)
		r.count(func(s *Stats) { s.Fallbacks++ })
		text, err = r.call(ctx, TierLocal, prompt)
		if err == nil {
			return text, nil
		}
	}

	r.count(func(s *Stats) { s.Errors++ })
	return "", err
}

func (r *Router) call(ctx context.Context, tier Tier, prompt string) (string, error) {
	backend := r.local
	if tier == TierCloud {
		backend = r.cloud
	}
	if backend == nil {
		return "", fmt.Errorf("%w: %s tier", ErrNoBackend, tier)
	}

	r.mu.Lock()
	limiter := r.limiters[tier]
	r.mu.Unlock()
	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("router: %s rate limit: %w", backend.Name(), err)
	}

	r.count(func(s *Stats) {
		if tier == TierCloud {
			s.Cloud++
		} else {
			s.Local++
		}
	})

	text, err := backend.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", backend.Name(), err)
	}
	return text, nil
}

func (r *Router) count(f func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.stats)
}
