// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline keeps planning on the local machine when configured to.
//
// In offline mode the cloud planner backends refuse to run and backend URLs
// must resolve to a loopback host. The router consults the same Guard to
// force local routing.
//
// # Usage
//
//	guard := offline.NewGuard(cfg.Routing.OfflineMode)
//
//	if err := guard.ValidateURL(cfg.Local.OllamaURL); err != nil {
//		return err // not http(s), or not loopback while offline
//	}
//	if err := guard.CheckCloudAllowed(); err != nil {
//		// use the local backend only
//	}
package offline
