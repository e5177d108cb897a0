// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// orchestrator.
//
// Supports TOML, JSON and YAML configuration files, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - OrchestratorConfig: plan generation and execution options
//   - PlannerConfig: planner backend and routing options
//   - Watcher: fsnotify-based hot reload
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SAM_*)
//   - ~/.sam/config.toml, ~/.sam/config.json or ~/.sam/config.yaml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.LoadFromPath("sam.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	coord := plan.NewCoordinator(reg, cfg.EngineOptions())
package config
