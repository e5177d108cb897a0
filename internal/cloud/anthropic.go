// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vinforge/SAM-sub002/internal/offline"
)

// Anthropic plans through the Messages API.
type Anthropic struct {
	client *anthropic.Client
	config Config
	guard  *offline.Guard
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(cfg Config, guard *offline.Guard) (*Anthropic, error) {
	cfg.Provider = ProviderAnthropic
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, config: cfg, guard: guard}, nil
}

// Name returns the provider identifier.
func (a *Anthropic) Name() string {
	return string(ProviderAnthropic)
}

// GenerateCompletion sends the prompt and joins the text blocks of the reply.
func (a *Anthropic) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel, err := begin(ctx, a.guard, a.config.Timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: int64(a.config.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.config.Temperature > 0 {
		params.Temperature = anthropic.Float(a.config.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	return finish(ProviderAnthropic, sb.String())
}
