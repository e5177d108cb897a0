// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides hosted planner backends: OpenAI, OpenRouter,
// Anthropic and Gemini.
//
// Each backend turns a planning prompt into raw model text through the
// provider's official Go SDK. Parsing and validation of that text belong to
// the plan package. Every call checks the offline guard first and fails with
// offline.ErrCloudBlocked while offline mode is on.
//
// # Usage
//
//	backend, err := cloud.New(cloud.Config{
//	    Provider: cloud.ProviderAnthropic,
//	    APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
//	}, guard)
//	raw, err := backend.GenerateCompletion(ctx, prompt)
package cloud
