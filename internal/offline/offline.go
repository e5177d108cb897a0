// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCloudBlocked is returned when a cloud planner backend is used in offline mode.
	ErrCloudBlocked = errors.New("offline mode: cloud planner backends disabled")

	// ErrNonLocalhost is returned when a backend URL is not loopback in offline mode.
	ErrNonLocalhost = errors.New("offline mode: only localhost connections allowed")

	// ErrInvalidURLScheme is returned when URL scheme is not http or https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")

	// ErrInvalidURL is returned when a backend URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid backend URL")
)

// =============================================================================
// GUARD
// =============================================================================

// Guard holds the offline flag for one orchestrator. It is safe for
// concurrent use and may be flipped at runtime by a config reload.
type Guard struct {
	mu      sync.RWMutex
	enabled bool
}

// NewGuard creates a guard in the given mode.
func NewGuard(enabled bool) *Guard {
	return &Guard{enabled: enabled}
}

// SetEnabled turns offline mode on or off. When on, cloud backends refuse to
// run and only loopback URLs pass ValidateURL.
func (g *Guard) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// Enabled reports whether offline mode is on. A nil guard is never offline.
func (g *Guard) Enabled() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// CheckCloudAllowed returns ErrCloudBlocked in offline mode.
func (g *Guard) CheckCloudAllowed() error {
	if g.Enabled() {
		return ErrCloudBlocked
	}
	return nil
}

// ValidateURL checks a backend base URL. The scheme must be http or https in
// every mode; in offline mode the host must also be loopback.
func (g *Guard) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}

	if g.Enabled() && !IsLocalhost(parsed.Hostname()) {
		return ErrNonLocalhost
	}
	return nil
}

// StatusIndicator returns "OFFLINE MODE" when offline, "" otherwise.
func (g *Guard) StatusIndicator() string {
	if g.Enabled() {
		return "OFFLINE MODE"
	}
	return ""
}

// =============================================================================
// URL HELPERS
// =============================================================================

// IsLocalhost checks if a host string refers to localhost.
// Accepts "localhost", any 127.0.0.0/8 address and every IPv6 loopback form,
// with or without a port or brackets.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	host = strings.Trim(host, "[]")
	host = strings.ToLower(host)

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
