// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vinforge/SAM-sub002/internal/cloud"
	"github.com/vinforge/SAM-sub002/internal/offline"
	"github.com/vinforge/SAM-sub002/internal/plan"
	"github.com/vinforge/SAM-sub002/internal/router"
	"github.com/vinforge/SAM-sub002/internal/skill"
	"github.com/vinforge/SAM-sub002/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete orchestrator configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	// Plan generation and execution
	Orchestrator OrchestratorConfig `toml:"orchestrator" json:"orchestrator" yaml:"orchestrator"`

	// Plan cache sizing
	Cache CacheConfig `toml:"cache" json:"cache" yaml:"cache"`

	// Planner backend selection
	Planner PlannerConfig `toml:"planner" json:"planner" yaml:"planner"`

	// Local (Ollama) planner
	Local LocalConfig `toml:"local" json:"local" yaml:"local"`

	// Cloud planner
	Cloud CloudConfig `toml:"cloud" json:"cloud" yaml:"cloud"`

	// Offline and paranoid modes
	Routing RoutingConfig `toml:"routing" json:"routing" yaml:"routing"`

	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// OrchestratorConfig holds the recognized plan options.
type OrchestratorConfig struct {
	EnablePlanValidation       bool    `toml:"enable_plan_validation" json:"enable_plan_validation" yaml:"enable_plan_validation"`
	EnablePlanCaching          bool    `toml:"enable_plan_caching" json:"enable_plan_caching" yaml:"enable_plan_caching"`
	PlanCacheTTLSeconds        float64 `toml:"plan_cache_ttl_seconds" json:"plan_cache_ttl_seconds" yaml:"plan_cache_ttl_seconds"`
	MaxPlanLength              int     `toml:"max_plan_length" json:"max_plan_length" yaml:"max_plan_length"`
	MaxExecutionTimeSeconds    float64 `toml:"max_execution_time_seconds" json:"max_execution_time_seconds" yaml:"max_execution_time_seconds"`
	ContinueOnSkillFailure     bool    `toml:"continue_on_skill_failure" json:"continue_on_skill_failure" yaml:"continue_on_skill_failure"`
	EnableFallbackPlans        bool    `toml:"enable_fallback_plans" json:"enable_fallback_plans" yaml:"enable_fallback_plans"`
	CachingConfidenceThreshold float64 `toml:"caching_confidence_threshold" json:"caching_confidence_threshold" yaml:"caching_confidence_threshold"`

	// EnforceSkillTimeouts runs each skill under its own deadline
	EnforceSkillTimeouts bool `toml:"enforce_skill_timeouts" json:"enforce_skill_timeouts" yaml:"enforce_skill_timeouts"`
	// AllowEmptyPlans disables the single-skill default plan
	AllowEmptyPlans    bool    `toml:"allow_empty_plans" json:"allow_empty_plans" yaml:"allow_empty_plans"`
	HistorySize        int     `toml:"history_size" json:"history_size" yaml:"history_size"`
	RuleConfidence     float64 `toml:"rule_confidence" json:"rule_confidence" yaml:"rule_confidence"`
	LLMConfidenceFloor float64 `toml:"llm_confidence_floor" json:"llm_confidence_floor" yaml:"llm_confidence_floor"`
}

// CacheConfig contains plan cache sizing.
type CacheConfig struct {
	// MaxEntries bounds the cache; least recently used entries are evicted
	MaxEntries int `toml:"max_entries" json:"max_entries" yaml:"max_entries"`
}

// Planner backend names.
const (
	BackendRouter = "router" // local and cloud, chosen per request
	BackendOllama = "ollama"
	BackendCloud  = "cloud"
	BackendNone   = "none" // rule-based planning only
)

// PlannerConfig selects and tunes the planner backend.
type PlannerConfig struct {
	// Backend is "router" (default), "ollama", "cloud" or "none"
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
	// Mode is the router mode: "auto", "local" or "cloud"
	Mode string `toml:"mode" json:"mode" yaml:"mode"`
	// AutoFallback is "local" or "error"
	AutoFallback       string  `toml:"auto_fallback" json:"auto_fallback" yaml:"auto_fallback"`
	RateLimitPerSecond float64 `toml:"rate_limit_per_second" json:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"rate_limit_burst" json:"rate_limit_burst" yaml:"rate_limit_burst"`
	TimeoutSeconds     float64 `toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	// ConflictTriggers override the words that add a conflict step to rule plans
	ConflictTriggers []string `toml:"conflict_triggers" json:"conflict_triggers" yaml:"conflict_triggers"`
	// SkillClasses override the glob patterns per skill class (memory, conflict, response)
	SkillClasses map[string][]string `toml:"skill_classes" json:"skill_classes" yaml:"skill_classes"`
}

// LocalConfig contains local Ollama configuration.
type LocalConfig struct {
	OllamaURL   string  `toml:"ollama_url" json:"ollama_url" yaml:"ollama_url"`
	OllamaModel string  `toml:"ollama_model" json:"ollama_model" yaml:"ollama_model"`
	JSONFormat  bool    `toml:"json_format" json:"json_format" yaml:"json_format"`
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
	MaxRetries  int     `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
}

// CloudConfig contains cloud provider configuration.
type CloudConfig struct {
	// Provider is "openai", "openrouter", "anthropic" or "gemini"
	Provider    string  `toml:"provider" json:"provider" yaml:"provider"`
	APIKey      string  `toml:"api_key" json:"api_key" yaml:"api_key"`
	Model       string  `toml:"model" json:"model" yaml:"model"`
	BaseURL     string  `toml:"base_url" json:"base_url" yaml:"base_url"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
}

// RoutingConfig contains the network restrictions.
type RoutingConfig struct {
	// OfflineMode blocks cloud backends and non-loopback URLs
	OfflineMode bool `toml:"offline_mode" json:"offline_mode" yaml:"offline_mode"`
	// ParanoidMode blocks cloud backends
	ParanoidMode bool `toml:"paranoid_mode" json:"paranoid_mode" yaml:"paranoid_mode"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level   string `toml:"level" json:"level" yaml:"level"`
	Format  string `toml:"format" json:"format" yaml:"format"`
	NoColor bool   `toml:"no_color" json:"no_color" yaml:"no_color"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" json:"namespace" yaml:"namespace"`
}

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Orchestrator: OrchestratorConfig{
			EnablePlanValidation:       true,
			EnablePlanCaching:          true,
			PlanCacheTTLSeconds:        plan.DefaultCacheTTL.Seconds(),
			MaxPlanLength:              plan.DefaultMaxPlanLength,
			MaxExecutionTimeSeconds:    plan.DefaultMaxExecutionTime.Seconds(),
			ContinueOnSkillFailure:     true,
			EnableFallbackPlans:        true,
			CachingConfidenceThreshold: plan.DefaultCachingConfidenceThreshold,
			HistorySize:                plan.DefaultHistorySize,
			RuleConfidence:             plan.DefaultRuleConfidence,
			LLMConfidenceFloor:         plan.DefaultLLMConfidenceFloor,
		},
		Cache: CacheConfig{
			MaxEntries: plan.DefaultCacheMaxEntries,
		},
		Planner: PlannerConfig{
			Backend:        BackendRouter,
			Mode:           string(router.ModeAuto),
			AutoFallback:   string(router.FallbackLocal),
			RateLimitBurst: 1,
			TimeoutSeconds: 30,
		},
		Local: LocalConfig{
			// Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
			OllamaURL:   "http://127.0.0.1:11434",
			OllamaModel: "qwen2.5:7b",
			JSONFormat:  true,
			Temperature: 0.1,
			MaxRetries:  2,
		},
		Cloud: CloudConfig{
			Provider:  string(cloud.ProviderOpenRouter),
			MaxTokens: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "sam",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".sam"), nil
}

// configPath returns a file under ConfigDir.
func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.sam/config.{toml,json,yaml}, first match
// wins. Without any file the defaults are used. Environment overrides are
// applied last.
func Load() (*Config, error) {
	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		path, err := configPath(name)
		if err != nil {
			break
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format follows the extension; anything else is TOML.
// Keys absent from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format names a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Parse decodes data over the defaults without validating it.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, cfg)
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return cfg, nil
}

// finalize applies env overrides, migration, defaults and validation.
func (c *Config) finalize() error {
	c.ApplyEnvOverrides()
	if err := c.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS AND MIGRATION
// =============================================================================

// SetDefaults sets default values for any missing or zero-value fields.
// Booleans are left alone: a file that sets them false means false.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	o := &c.Orchestrator
	if o.PlanCacheTTLSeconds == 0 {
		o.PlanCacheTTLSeconds = defaults.Orchestrator.PlanCacheTTLSeconds
	}
	if o.MaxPlanLength == 0 {
		o.MaxPlanLength = defaults.Orchestrator.MaxPlanLength
	}
	if o.MaxExecutionTimeSeconds == 0 {
		o.MaxExecutionTimeSeconds = defaults.Orchestrator.MaxExecutionTimeSeconds
	}
	if o.HistorySize == 0 {
		o.HistorySize = defaults.Orchestrator.HistorySize
	}
	if o.RuleConfidence == 0 {
		o.RuleConfidence = defaults.Orchestrator.RuleConfidence
	}
	if o.LLMConfidenceFloor == 0 {
		o.LLMConfidenceFloor = defaults.Orchestrator.LLMConfidenceFloor
	}

	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = defaults.Cache.MaxEntries
	}

	if c.Planner.Backend == "" {
		c.Planner.Backend = defaults.Planner.Backend
	}
	if c.Planner.Mode == "" {
		c.Planner.Mode = defaults.Planner.Mode
	}
	if c.Planner.AutoFallback == "" {
		c.Planner.AutoFallback = defaults.Planner.AutoFallback
	}
	if c.Planner.RateLimitBurst == 0 {
		c.Planner.RateLimitBurst = defaults.Planner.RateLimitBurst
	}
	if c.Planner.TimeoutSeconds == 0 {
		c.Planner.TimeoutSeconds = defaults.Planner.TimeoutSeconds
	}

	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = defaults.Local.OllamaURL
	}
	if c.Local.OllamaModel == "" {
		c.Local.OllamaModel = defaults.Local.OllamaModel
	}

	if c.Cloud.Provider == "" {
		c.Cloud.Provider = defaults.Cloud.Provider
	}
	if c.Cloud.MaxTokens == 0 {
		c.Cloud.MaxTokens = defaults.Cloud.MaxTokens
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaults.Metrics.Namespace
	}
}

// Migrate handles older spellings of option values.
func (c *Config) Migrate() error {
	// "hybrid" was the old name for auto routing
	if strings.EqualFold(c.Planner.Mode, "hybrid") {
		c.Planner.Mode = string(router.ModeAuto)
	}
	c.Planner.Mode = strings.ToLower(strings.TrimSpace(c.Planner.Mode))
	c.Planner.AutoFallback = strings.ToLower(strings.TrimSpace(c.Planner.AutoFallback))
	c.Planner.Backend = strings.ToLower(strings.TrimSpace(c.Planner.Backend))
	c.Cloud.Provider = strings.ToLower(strings.TrimSpace(c.Cloud.Provider))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SAM_OFFLINE: "1" or "true" enables offline mode
//   - SAM_PARANOID: "1" or "true" enables paranoid mode
//   - SAM_PLANNER_BACKEND: overrides planner.backend
//   - SAM_MODE: overrides planner.mode
//   - SAM_OLLAMA_URL: overrides local.ollama_url
//   - SAM_OLLAMA_MODEL: overrides local.ollama_model
//   - SAM_CLOUD_PROVIDER: overrides cloud.provider
//   - SAM_CLOUD_API_KEY: overrides cloud.api_key
//   - SAM_CLOUD_MODEL: overrides cloud.model
//   - SAM_MAX_EXECUTION_TIME: overrides orchestrator.max_execution_time_seconds
//   - SAM_LOG_LEVEL: overrides logging.level
//   - SAM_LOG_FORMAT: overrides logging.format
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SAM_OFFLINE"); v != "" {
		c.Routing.OfflineMode = isTrue(v)
	}
	if v := os.Getenv("SAM_PARANOID"); v != "" {
		c.Routing.ParanoidMode = isTrue(v)
	}
	if v := os.Getenv("SAM_PLANNER_BACKEND"); v != "" {
		c.Planner.Backend = v
	}
	if v := os.Getenv("SAM_MODE"); v != "" {
		c.Planner.Mode = v
	}
	if v := os.Getenv("SAM_OLLAMA_URL"); v != "" {
		c.Local.OllamaURL = v
	}
	if v := os.Getenv("SAM_OLLAMA_MODEL"); v != "" {
		c.Local.OllamaModel = v
	}
	if v := os.Getenv("SAM_CLOUD_PROVIDER"); v != "" {
		c.Cloud.Provider = v
	}
	if v := os.Getenv("SAM_CLOUD_API_KEY"); v != "" {
		c.Cloud.APIKey = v
	}
	if v := os.Getenv("SAM_CLOUD_MODEL"); v != "" {
		c.Cloud.Model = v
	}
	if v := os.Getenv("SAM_MAX_EXECUTION_TIME"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			c.Orchestrator.MaxExecutionTimeSeconds = secs
		}
	}
	if v := os.Getenv("SAM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SAM_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func isTrue(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Written atomically with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# SAM orchestrator configuration")
	fmt.Fprintln(&buf, "# Generated - edit with care")
	fmt.Fprintln(&buf)

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Written atomically with 0600 permissions (owner read/write only).
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns all problems at once as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Orchestrator
	o := c.Orchestrator
	if o.PlanCacheTTLSeconds <= 0 {
		add("orchestrator.plan_cache_ttl_seconds", "must be positive, got %v", o.PlanCacheTTLSeconds)
	}
	if o.MaxPlanLength < 1 {
		add("orchestrator.max_plan_length", "must be at least 1, got %d", o.MaxPlanLength)
	}
	if o.MaxExecutionTimeSeconds <= 0 {
		add("orchestrator.max_execution_time_seconds", "must be positive, got %v", o.MaxExecutionTimeSeconds)
	}
	if o.CachingConfidenceThreshold < 0 || o.CachingConfidenceThreshold > 1 {
		add("orchestrator.caching_confidence_threshold", "must be within [0, 1], got %v", o.CachingConfidenceThreshold)
	}
	if o.HistorySize < 1 {
		add("orchestrator.history_size", "must be at least 1, got %d", o.HistorySize)
	}
	if o.LLMConfidenceFloor <= 0 || o.LLMConfidenceFloor > 1 {
		add("orchestrator.llm_confidence_floor", "must be within (0, 1], got %v", o.LLMConfidenceFloor)
	}
	if o.RuleConfidence <= 0 || o.RuleConfidence >= o.LLMConfidenceFloor {
		add("orchestrator.rule_confidence", "must be positive and below llm_confidence_floor (%v), got %v", o.LLMConfidenceFloor, o.RuleConfidence)
	}

	// Cache
	if c.Cache.MaxEntries < 1 {
		add("cache.max_entries", "must be at least 1, got %d", c.Cache.MaxEntries)
	}

	// Planner
	p := c.Planner
	switch p.Backend {
	case BackendRouter, BackendOllama, BackendCloud, BackendNone:
	default:
		add("planner.backend", "invalid backend '%s', must be one of: router, ollama, cloud, none", p.Backend)
	}
	if _, err := router.ParseMode(p.Mode); err != nil {
		add("planner.mode", "invalid mode '%s', must be one of: auto, local, cloud", p.Mode)
	}
	if _, err := router.ParseAutoFallback(p.AutoFallback); err != nil {
		add("planner.auto_fallback", "invalid fallback '%s', must be one of: local, error", p.AutoFallback)
	}
	if p.RateLimitPerSecond < 0 {
		add("planner.rate_limit_per_second", "must not be negative, got %v", p.RateLimitPerSecond)
	}
	if p.RateLimitBurst < 0 {
		add("planner.rate_limit_burst", "must not be negative, got %d", p.RateLimitBurst)
	}
	if p.TimeoutSeconds <= 0 {
		add("planner.timeout_seconds", "must be positive, got %v", p.TimeoutSeconds)
	}
	if _, err := c.ClassMatcher(); err != nil {
		add("planner.skill_classes", "%v", err)
	}

	// Local
	guard := offline.NewGuard(c.Routing.OfflineMode)
	if err := guard.ValidateURL(c.Local.OllamaURL); err != nil {
		add("local.ollama_url", "%v", err)
	}

	// Cloud
	if _, err := cloud.ParseProvider(c.Cloud.Provider); err != nil {
		add("cloud.provider", "invalid provider '%s', must be one of: openai, openrouter, anthropic, gemini", c.Cloud.Provider)
	}
	if p.Backend == BackendCloud && strings.TrimSpace(c.Cloud.APIKey) == "" {
		add("cloud.api_key", "required when planner.backend is cloud")
	}
	if p.Backend == BackendCloud && (c.Routing.OfflineMode || c.Routing.ParanoidMode) {
		add("planner.backend", "cloud backend cannot be used in offline or paranoid mode")
	}
	if c.Cloud.BaseURL != "" {
		if err := offline.NewGuard(false).ValidateURL(c.Cloud.BaseURL); err != nil {
			add("cloud.base_url", "%v", err)
		}
	}
	if c.Cloud.MaxTokens < 0 {
		add("cloud.max_tokens", "must not be negative, got %d", c.Cloud.MaxTokens)
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// COPY HELPERS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	if c.Planner.ConflictTriggers != nil {
		clone.Planner.ConflictTriggers = append([]string(nil), c.Planner.ConflictTriggers...)
	}
	if c.Planner.SkillClasses != nil {
		clone.Planner.SkillClasses = make(map[string][]string, len(c.Planner.SkillClasses))
		for k, v := range c.Planner.SkillClasses {
			clone.Planner.SkillClasses[k] = append([]string(nil), v...)
		}
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the cloud API key.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Cloud.APIKey != "" {
		safe.Cloud.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// ClassMatcher builds the skill class matcher from planner.skill_classes.
func (c *Config) ClassMatcher() (*skill.ClassMatcher, error) {
	if len(c.Planner.SkillClasses) == 0 {
		return skill.DefaultClassMatcher(), nil
	}
	patterns := make(map[skill.Class][]string, len(c.Planner.SkillClasses))
	for name, globs := range c.Planner.SkillClasses {
		class, err := skill.ParseClass(name)
		if err != nil {
			return nil, err
		}
		patterns[class] = globs
	}
	return skill.NewClassMatcher(patterns)
}
