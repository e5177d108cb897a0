// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinforge/SAM-sub002/internal/offline"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingAPIKey is returned when a provider is configured without a key.
	ErrMissingAPIKey = errors.New("cloud: API key is required")

	// ErrUnknownProvider is returned for a provider name New does not know.
	ErrUnknownProvider = errors.New("cloud: unknown provider")

	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("cloud: empty response")
)

// =============================================================================
// PROVIDERS
// =============================================================================

// Provider names a hosted LLM API.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
)

// ParseProvider normalizes a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic, ProviderGemini:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// OpenRouterBaseURL is the OpenAI-compatible endpoint used for openrouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1/"

// SystemPrompt frames every planning request sent to a cloud provider.
const SystemPrompt = "You are a planning component. Reply with a single JSON object and nothing else."

// DefaultModels maps each provider to the model used when none is configured.
var DefaultModels = map[Provider]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderAnthropic:  "claude-haiku-4-5-20251001",
	ProviderGemini:     "gemini-2.0-flash",
}

// =============================================================================
// CONFIG
// =============================================================================

// Config configures one cloud planner backend.
type Config struct {
	Provider    Provider
	APIKey      string
	Model       string
	BaseURL     string // overrides the provider endpoint
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

const (
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModels[c.Provider]
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Provider == ProviderOpenRouter && c.BaseURL == "" {
		c.BaseURL = OpenRouterBaseURL
	}
	return c
}

// Validate checks the fields every provider needs.
func (c Config) Validate() error {
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return err
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w for %s", ErrMissingAPIKey, c.Provider)
	}
	return nil
}

// =============================================================================
// FACTORY
// =============================================================================

// Completer is a cloud planner backend.
type Completer interface {
	Name() string
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// New builds the backend for cfg.Provider. Every backend consults guard
// before each request and refuses to run in offline mode.
func New(cfg Config, guard *offline.Guard) (Completer, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOpenRouter:
		return NewOpenAI(cfg, guard)
	case ProviderAnthropic:
		return NewAnthropic(cfg, guard)
	case ProviderGemini:
		return NewGemini(cfg, guard)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// begin applies the offline check and the per-request timeout.
func begin(ctx context.Context, guard *offline.Guard, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := guard.CheckCloudAllowed(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

func finish(provider Provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
	}
	return text, nil
}
