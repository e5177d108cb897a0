// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"time"

	"github.com/vinforge/SAM-sub002/internal/cloud"
	"github.com/vinforge/SAM-sub002/internal/logging"
	"github.com/vinforge/SAM-sub002/internal/ollama"
	"github.com/vinforge/SAM-sub002/internal/plan"
	"github.com/vinforge/SAM-sub002/internal/router"
)

// seconds converts a float number of seconds to a Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// EngineOptions translates the orchestrator section for the coordinator.
func (c *Config) EngineOptions() plan.EngineOptions {
	o := c.Orchestrator
	return plan.EngineOptions{
		EnablePlanValidation:   o.EnablePlanValidation,
		ContinueOnSkillFailure: o.ContinueOnSkillFailure,
		EnableFallbackPlans:    o.EnableFallbackPlans,
		MaxExecutionTime:       seconds(o.MaxExecutionTimeSeconds),
		EnforceSkillTimeouts:   o.EnforceSkillTimeouts,
	}
}

// GeneratorOptions translates the orchestrator, cache and planner sections
// for the plan generator.
func (c *Config) GeneratorOptions() plan.GeneratorOptions {
	o := c.Orchestrator
	return plan.GeneratorOptions{
		EnablePlanCaching:          o.EnablePlanCaching,
		CacheTTL:                   seconds(o.PlanCacheTTLSeconds),
		CacheMaxEntries:            c.Cache.MaxEntries,
		MaxPlanLength:              o.MaxPlanLength,
		CachingConfidenceThreshold: o.CachingConfidenceThreshold,
		RuleConfidence:             o.RuleConfidence,
		LLMConfidenceFloor:         o.LLMConfidenceFloor,
		AllowEmptyPlans:            o.AllowEmptyPlans,
		ConflictTriggers:           append([]string(nil), c.Planner.ConflictTriggers...),
	}
}

// RouterConfig translates the planner and routing sections. Invalid names
// fall back to the router defaults; Validate reports them.
func (c *Config) RouterConfig() router.Config {
	mode, err := router.ParseMode(c.Planner.Mode)
	if err != nil {
		mode = router.ModeAuto
	}
	fallback, err := router.ParseAutoFallback(c.Planner.AutoFallback)
	if err != nil {
		fallback = router.FallbackLocal
	}
	return router.Config{
		Mode:         mode,
		AutoFallback: fallback,
		Paranoid:     c.Routing.ParanoidMode,
		RateLimit:    c.Planner.RateLimitPerSecond,
		Burst:        c.Planner.RateLimitBurst,
	}
}

// OllamaConfig translates the local section.
func (c *Config) OllamaConfig() *ollama.ClientConfig {
	return &ollama.ClientConfig{
		BaseURL:     c.Local.OllamaURL,
		Timeout:     seconds(c.Planner.TimeoutSeconds),
		Model:       c.Local.OllamaModel,
		JSONFormat:  c.Local.JSONFormat,
		Temperature: c.Local.Temperature,
		MaxRetries:  c.Local.MaxRetries,
	}
}

// CloudConfig translates the cloud section.
func (c *Config) CloudConfig() cloud.Config {
	return cloud.Config{
		Provider:    cloud.Provider(c.Cloud.Provider),
		APIKey:      c.Cloud.APIKey,
		Model:       c.Cloud.Model,
		BaseURL:     c.Cloud.BaseURL,
		MaxTokens:   c.Cloud.MaxTokens,
		Temperature: c.Cloud.Temperature,
		Timeout:     seconds(c.Planner.TimeoutSeconds),
	}
}

// LoggingOptions translates the logging section.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:   c.Logging.Level,
		Format:  c.Logging.Format,
		NoColor: c.Logging.NoColor,
	}
}
