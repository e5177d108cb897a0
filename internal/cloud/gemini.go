// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/vinforge/SAM-sub002/internal/offline"
)

// Gemini plans through the Gemini API. The genai client needs a context to
// construct, so it is created on first use.
type Gemini struct {
	config Config
	guard  *offline.Guard

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates a Gemini backend.
func NewGemini(cfg Config, guard *offline.Guard) (*Gemini, error) {
	cfg.Provider = ProviderGemini
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gemini{config: cfg, guard: guard}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string {
	return string(ProviderGemini)
}

func (g *Gemini) initClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  g.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create google genai client: %w", err)
	}
	g.client = client
	return g.client, nil
}

// GenerateCompletion requests a JSON response for the prompt.
func (g *Gemini) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel, err := begin(ctx, g.guard, g.config.Timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	client, err := g.initClient(ctx)
	if err != nil {
		return "", err
	}

	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   int32(g.config.MaxTokens),
	}
	if g.config.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(g.config.Temperature))
	}

	resp, err := client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return finish(ProviderGemini, resp.Text())
}
