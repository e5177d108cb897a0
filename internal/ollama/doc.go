// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the local planner backend, an HTTP client for the
// Ollama /api/generate endpoint.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - ClientConfig: base URL, model, timeouts and retry policy
//   - ClientError: typed error with an ErrorType for handling
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: "http://127.0.0.1:11434",
//	    Model:   "qwen2.5:7b",
//	}, ollama.WithGuard(guard))
//
//	raw, err := client.GenerateCompletion(ctx, prompt)
//	if ollama.IsNotRunning(err) {
//	    // fall through to rule-based planning
//	}
//
// Every request first validates the base URL with the offline guard, so a
// non-loopback Ollama host is refused while offline mode is on.
package ollama
