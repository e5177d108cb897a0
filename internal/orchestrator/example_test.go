// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinforge/SAM-sub002/internal/config"
	"github.com/vinforge/SAM-sub002/internal/logging"
	"github.com/vinforge/SAM-sub002/internal/orchestrator"
	"github.com/vinforge/SAM-sub002/internal/skill"
)

// ExampleOrchestrator_Handle plans with rules only and shows the second
// identical request being served from the plan cache.
func ExampleOrchestrator_Handle() {
	reg := skill.NewRegistry()
	reg.MustRegister(
		skill.NewFunc(skill.Descriptor{Name: "MemoryRetrievalSkill", OutputKeys: []string{"memories"}},
			func(_ context.Context, ec *skill.ExecutionContext) error {
				ec.Set("memories", []string{"the meeting moved to Tuesday"})
				return nil
			}),
		skill.NewFunc(skill.Descriptor{Name: "ResponseGenerationSkill", RequiredInputs: []string{"memories"}},
			func(_ context.Context, ec *skill.ExecutionContext) error {
				m, _ := ec.Get("memories")
				ec.SetOutput("From your notes: " + strings.Join(m.([]string), "; "))
				return nil
			}),
	)

	cfg := config.Default()
	cfg.Planner.Backend = config.BackendNone
	cfg.Metrics.Enabled = false

	orc, err := orchestrator.New(cfg, reg, orchestrator.WithLogger(logging.Nop()))
	if err != nil {
		fmt.Println(err)
		return
	}

	for i := 0; i < 2; i++ {
		report := orc.Handle(context.Background(), orchestrator.Request{Query: "when is the meeting?"})
		fmt.Println(report.Result, report.Plan)
		fmt.Println(report.Output())
	}
	fmt.Println("cache hits:", orc.Stats().Cache.Hits)

	// Output:
	// SUCCESS [MemoryRetrievalSkill ResponseGenerationSkill]
	// From your notes: the meeting moved to Tuesday
	// SUCCESS [MemoryRetrievalSkill ResponseGenerationSkill]
	// From your notes: the meeting moved to Tuesday
	// cache hits: 1
}
