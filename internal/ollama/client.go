// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vinforge/SAM-sub002/internal/offline"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeBlocked
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// maxResponseBytes bounds a decoded response body.
const maxResponseBytes = 4 << 20

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
	BaseURL string

	// Timeout for a single HTTP request (default: 30s)
	Timeout time.Duration

	// Model used for plan generation (default: "qwen2.5:7b")
	Model string

	// JSONFormat asks Ollama to constrain output to a JSON value.
	JSONFormat bool

	// Temperature for plan generation. Zero leaves the model default.
	Temperature float64

	// MaxRetries for transient failures (default: 2)
	MaxRetries int

	// RetryDelay between retries (default: 500ms)
	RetryDelay time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     "http://127.0.0.1:11434",
		Timeout:     30 * time.Second,
		Model:       "qwen2.5:7b",
		JSONFormat:  true,
		Temperature: 0.1,
		MaxRetries:  2,
		RetryDelay:  500 * time.Millisecond,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a local Ollama server and serves as the local planner
// backend. It is safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClientWithConfig(cfg, ollama.WithGuard(guard))
//	if err := client.Ready(ctx); err != nil {
//	    log.Warn("local planner unavailable", "error", err)
//	}
//	raw, err := client.GenerateCompletion(ctx, prompt)
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	guard      *offline.Guard
}

// Option configures a Client.
type Option func(*Client)

// WithGuard validates the base URL against the offline guard on every request.
func WithGuard(g *offline.Guard) Option {
	return func(c *Client) { c.guard = g }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewClient creates a new Ollama client with default configuration.
func NewClient(opts ...Option) *Client {
	return NewClientWithConfig(DefaultConfig(), opts...)
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
// Zero values fall back to DefaultConfig.
func NewClientWithConfig(config *ClientConfig, opts ...Option) *Client {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	cfg := *config

	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend in logs and routing decisions.
func (c *Client) Name() string {
	return "ollama"
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() ClientConfig {
	return c.config
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "", nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}
	return nil
}

// ListModels retrieves all available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result ListModelsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// Ready checks that Ollama is running and the configured model is pulled.
func (c *Client) Ready(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if sameModel(m.Name, c.config.Model) {
			return nil
		}
	}
	return &ClientError{Type: ErrTypeModelNotFound, Message: "model not found: " + c.config.Model}
}

// sameModel compares model names, treating an untagged name as ":latest".
func sameModel(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if !strings.Contains(s, ":") {
			s += ":latest"
		}
		return s
	}
	return norm(a) == norm(b)
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate sends a non-streaming /api/generate request, retrying transient
// failures up to MaxRetries times.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &ClientError{Type: ErrTypeTimeout, Message: "request cancelled", Cause: ctx.Err()}
			case <-time.After(c.config.RetryDelay):
			}
		}

		result, err := c.generateOnce(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) generateOnce(ctx context.Context, body []byte) (*GenerateResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		errType := ErrTypeInvalidResponse
		if resp.StatusCode >= 500 {
			errType = ErrTypeConnection
		}
		// Try to read error message
		var ollamaErr OllamaError
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
			return nil, &ClientError{Type: errType, Message: ollamaErr.Error}
		}
		return nil, &ClientError{Type: errType, Message: "generate request failed: " + resp.Status}
	}

	var result GenerateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &result, nil
}

// GenerateCompletion returns the raw model output for a planning prompt.
func (c *Client) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	req := GenerateRequest{Prompt: prompt}
	if c.config.JSONFormat {
		req.Format = "json"
	}
	if c.config.Temperature > 0 {
		req.Options = &Options{Temperature: c.config.Temperature}
	}

	resp, err := c.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Response)
	if out == "" {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "empty response from model " + resp.Model}
	}
	return out, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do validates the base URL against the guard and performs one request.
// Transport failures are mapped to ErrTimeout or ErrNotRunning.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := c.guard.ValidateURL(c.config.BaseURL); err != nil {
		return nil, &ClientError{Type: ErrTypeBlocked, Message: "base URL rejected", Cause: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
			return nil, ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return nil, &ClientError{Type: ErrTypeTimeout, Message: "request cancelled", Cause: err}
		}
		return nil, ErrNotRunning
	}
	return resp, nil
}

func isNetTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func isTransient(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	return clientErr.Type == ErrTypeNotRunning || clientErr.Type == ErrTypeConnection
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeModelNotFound
	}
	return false
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxResponseBytes))
	r.Close()
}
