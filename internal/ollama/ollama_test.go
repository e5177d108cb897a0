// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinforge/SAM-sub002/internal/offline"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:9999/"})
	cfg := c.Config()

	if cfg.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.Model != "qwen2.5:7b" {
		t.Errorf("Model = %q, want default", cfg.Model)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if c.Name() != "ollama" {
		t.Errorf("Name() = %q", c.Name())
	}

	if got := NewClientWithConfig(nil).Config(); got.BaseURL != DefaultConfig().BaseURL {
		t.Errorf("nil config BaseURL = %q", got.BaseURL)
	}
}

func TestSameModel(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"llama3", "llama3:latest", true},
		{"Qwen2.5:7b", "qwen2.5:7b", true},
		{"qwen2.5:7b", "qwen2.5:14b", false},
		{"mistral", "llama3", false},
	}
	for _, tt := range tests {
		if got := sameModel(tt.a, tt.b); got != tt.want {
			t.Errorf("sameModel(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// =============================================================================
// GENERATION TESTS
// =============================================================================

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg ClientConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return NewClientWithConfig(&cfg)
}

func TestGenerateCompletion(t *testing.T) {
	var got GenerateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(GenerateResponse{
			Model:    got.Model,
			Response: "  {\"plan\": [\"A\"]}\n",
			Done:     true,
		})
	}, ClientConfig{Model: "llama3", JSONFormat: true, Temperature: 0.2})

	out, err := c.GenerateCompletion(context.Background(), "plan this")
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if out != `{"plan": ["A"]}` {
		t.Errorf("output = %q", out)
	}
	if got.Model != "llama3" || got.Prompt != "plan this" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Format != "json" {
		t.Errorf("Format = %q, want json", got.Format)
	}
	if got.Options == nil || got.Options.Temperature != 0.2 {
		t.Errorf("Options = %+v", got.Options)
	}
}

func TestGenerateCompletion_EmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateResponse{Response: "   ", Done: true})
	}, ClientConfig{})

	_, err := c.GenerateCompletion(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"model not found", http.StatusNotFound, "", IsModelNotFound},
		{"api error message", http.StatusBadRequest, `{"error":"bad prompt"}`, func(err error) bool {
			return err.Error() == "bad prompt"
		}},
		{"bad json", http.StatusOK, "not json", func(err error) bool {
			var ce *ClientError
			return asClientError(err, &ce) && ce.Type == ErrTypeInvalidResponse
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, ClientConfig{})

			_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
			if err == nil || !tt.check(err) {
				t.Errorf("Generate() error = %v", err)
			}
		})
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(GenerateResponse{Response: "ok", Done: true})
	}, ClientConfig{MaxRetries: 2})

	resp, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Response != "ok" {
		t.Errorf("Response = %q", resp.Response)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGenerate_NoRetryOnClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}, ClientConfig{MaxRetries: 3})

	if _, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGenerate_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url, RetryDelay: time.Millisecond})
	_, err := c.GenerateCompletion(context.Background(), "p")
	if !IsNotRunning(err) {
		t.Errorf("error = %v, want not running", err)
	}
	if err := c.CheckRunning(context.Background()); !IsNotRunning(err) {
		t.Errorf("CheckRunning() = %v, want not running", err)
	}
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestReady(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte("Ollama is running"))
		case "/api/tags":
			json.NewEncoder(w).Encode(ListModelsResponse{Models: []ModelInfo{{Name: "llama3:latest"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}

	c := newTestClient(t, handler, ClientConfig{Model: "llama3"})
	if err := c.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning() = %v", err)
	}
	if err := c.Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v", err)
	}

	missing := newTestClient(t, handler, ClientConfig{Model: "mistral"})
	if err := missing.Ready(context.Background()); !IsModelNotFound(err) {
		t.Errorf("Ready() = %v, want model not found", err)
	}
}

// =============================================================================
// OFFLINE GUARD TESTS
// =============================================================================

func TestClient_OfflineGuard(t *testing.T) {
	guard := offline.NewGuard(true)

	remote := NewClientWithConfig(&ClientConfig{BaseURL: "http://ollama.example.com:11434"}, WithGuard(guard))
	_, err := remote.GenerateCompletion(context.Background(), "p")
	var ce *ClientError
	if !asClientError(err, &ce) || ce.Type != ErrTypeBlocked {
		t.Fatalf("error = %v, want blocked", err)
	}

	// Loopback is allowed while offline.
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateResponse{Response: "ok"})
	}, ClientConfig{})
	WithGuard(guard)(c)
	if _, err := c.GenerateCompletion(context.Background(), "p"); err != nil {
		t.Errorf("loopback request blocked: %v", err)
	}

	bad := NewClientWithConfig(&ClientConfig{BaseURL: "file:///tmp/socket"}, WithGuard(offline.NewGuard(false)))
	if err := bad.CheckRunning(context.Background()); !asClientError(err, &ce) || ce.Type != ErrTypeBlocked {
		t.Errorf("CheckRunning() = %v, want blocked scheme", err)
	}
}

func asClientError(err error, target **ClientError) bool {
	ce, ok := err.(*ClientError)
	if ok {
		*target = ce
	}
	return ok
}
