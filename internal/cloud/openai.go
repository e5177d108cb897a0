// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vinforge/SAM-sub002/internal/offline"
)

// OpenAI plans through the chat completions API. It also serves OpenRouter,
// which speaks the same protocol at a different base URL.
type OpenAI struct {
	client *openai.Client
	config Config
	guard  *offline.Guard
}

// NewOpenAI creates an OpenAI-compatible backend.
func NewOpenAI(cfg Config, guard *offline.Guard) (*OpenAI, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
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

	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, config: cfg, guard: guard}, nil
}

// Name returns the provider identifier.
func (o *OpenAI) Name() string {
	return string(o.config.Provider)
}

// GenerateCompletion sends the prompt as a single user message.
func (o *OpenAI) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel, err := begin(ctx, o.guard, o.config.Timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(int64(o.config.MaxTokens)),
	}
	if o.config.Temperature > 0 {
		params.Temperature = openai.Float(o.config.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", o.config.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", o.config.Provider, ErrEmptyResponse)
	}
	return finish(o.config.Provider, resp.Choices[0].Message.Content)
}
