// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the orchestrator packages:
// crash-safe file writes for config saves and rune-safe truncation for log
// fields.
package util
