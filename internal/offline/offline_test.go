// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"sync"
	"testing"
)

// =============================================================================
// MODE TESTS
// =============================================================================

func TestGuard_SetEnabled(t *testing.T) {
	g := NewGuard(false)
	if g.Enabled() {
		t.Fatal("new guard should start online")
	}

	g.SetEnabled(true)
	if !g.Enabled() {
		t.Error("Enabled should return true after SetEnabled(true)")
	}
	if g.StatusIndicator() != "OFFLINE MODE" {
		t.Errorf("StatusIndicator = %q", g.StatusIndicator())
	}

	g.SetEnabled(false)
	if g.Enabled() {
		t.Error("Enabled should return false after SetEnabled(false)")
	}
	if g.StatusIndicator() != "" {
		t.Errorf("StatusIndicator = %q, want empty", g.StatusIndicator())
	}
}

func TestGuard_NilIsOnline(t *testing.T) {
	var g *Guard
	if g.Enabled() {
		t.Error("nil guard should be online")
	}
	if err := g.CheckCloudAllowed(); err != nil {
		t.Errorf("nil guard blocked cloud: %v", err)
	}
}

func TestGuard_ThreadSafe(t *testing.T) {
	g := NewGuard(false)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.SetEnabled(j%2 == 0)
				_ = g.Enabled()
			}
		}()
	}
	wg.Wait()
}

func TestGuard_CheckCloudAllowed(t *testing.T) {
	g := NewGuard(true)
	if err := g.CheckCloudAllowed(); !errors.Is(err, ErrCloudBlocked) {
		t.Errorf("CheckCloudAllowed offline = %v, want ErrCloudBlocked", err)
	}
	g.SetEnabled(false)
	if err := g.CheckCloudAllowed(); err != nil {
		t.Errorf("CheckCloudAllowed online = %v, want nil", err)
	}
}

// =============================================================================
// LOCALHOST DETECTION TESTS
// =============================================================================

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host   string
		expect bool
	}{
		{"localhost", true},
		{"LOCALHOST", true},
		{"127.0.0.1", true},
		{"127.0.0.1:8080", true},
		{"127.1.2.3", true},
		{"::1", true},
		{"[::1]", true},
		{"[::1]:8080", true},
		{"0:0:0:0:0:0:0:1", true},

		{"google.com", false},
		{"192.168.1.1", false},
		{"10.0.0.1", false},
		{"0.0.0.0", false},
		{"localhost.evil.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := IsLocalhost(tt.host); got != tt.expect {
				t.Errorf("IsLocalhost(%q) = %v, want %v", tt.host, got, tt.expect)
			}
		})
	}
}

// =============================================================================
// URL VALIDATION TESTS
// =============================================================================

func TestGuard_ValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		offline bool
		url     string
		want    error
	}{
		{"online remote", false, "https://api.openai.com/v1", nil},
		{"online local", false, "http://localhost:11434", nil},
		{"offline local", true, "http://127.0.0.1:11434", nil},
		{"offline ipv6 local", true, "http://[::1]:11434", nil},
		{"offline remote", true, "https://openrouter.ai/api/v1", ErrNonLocalhost},
		{"file scheme online", false, "file:///etc/passwd", ErrInvalidURLScheme},
		{"file scheme offline", true, "file:///etc/passwd", ErrInvalidURLScheme},
		{"no scheme", false, "localhost:11434", ErrInvalidURLScheme},
		{"unparseable", false, "http://[::1", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(tt.offline)
			err := g.ValidateURL(tt.url)
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateURL(%q) = %v, want %v", tt.url, err, tt.want)
			}
		})
	}
}
