// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator builds the planning pipeline from configuration and
// runs requests through it.
//
// New creates the logger, offline guard, Prometheus metrics, planner backend
// (router over Ollama and a cloud provider by default), plan generator,
// contract validator, execution engine and report history. Handle then runs
// generate -> execute -> record for one request and always returns a report.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	orc, err := orchestrator.New(cfg, registry)
//	if err != nil {
//	    return err
//	}
//	go orc.WatchConfig(ctx, path)
//
//	report := orc.Handle(ctx, orchestrator.Request{Query: "compare my notes"})
//	fmt.Println(report.Result, report.Output())
package orchestrator
