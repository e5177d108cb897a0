// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package skill provides the capability registry shared by the planner and
// the execution engine.
//
// A skill is a black-box capability with a declared input/output contract. The
// orchestration core never looks inside a skill: it resolves skills by name
// through the Registry and invokes them with the per-request ExecutionContext.
//
// # Key Types
//
//   - Skill: Capability interface (Descriptor + Execute)
//   - Descriptor: Name, declared inputs/outputs, version, time budget
//   - Registry: Name -> Skill mapping, safe for concurrent readers
//   - ExecutionContext: The request envelope skills read from and write to
//   - ClassMatcher: Resolves memory / conflict / response class skills
//
// # Usage
//
//	reg := skill.NewRegistry()
//	reg.MustRegister(skill.NewFunc(skill.Descriptor{
//	    Name:       "MemoryRetrievalSkill",
//	    Category:   "memory",
//	    OutputKeys: []string{"memories"},
//	}, retrieve))
//
//	sig := reg.Signature() // "MemoryRetrievalSkill:1.0.0"
//
// # Signatures
//
// The skill-set signature is the sorted "name:version" list of every
// registered skill. Cached plans store the signature they were generated
// under; any registration change invalidates them.
package skill
