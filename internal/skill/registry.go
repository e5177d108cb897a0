// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package skill

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateSkill is returned when a name is registered twice.
var ErrDuplicateSkill = errors.New("skill already registered")

// signatureSeparator joins "name:version" entries in a skill-set signature.
const signatureSeparator = "|"

type entry struct {
	skill Skill
	desc  Descriptor
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps skill names to skills. It is populated at startup and read by
// every in-flight request; all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a skill. The descriptor is validated and normalized once here
// and never re-read from the skill afterwards.
func (r *Registry) Register(s Skill) error {
	if s == nil {
		return fmt.Errorf("%w: nil skill", ErrInvalidDescriptor)
	}
	desc, err := s.Descriptor().Validate()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, desc.Name)
	}
	r.entries[desc.Name] = entry{skill: s, desc: desc}
	return nil
}

// MustRegister registers skills and panics on the first error.
// Intended for startup wiring only.
func (r *Registry) MustRegister(skills ...Skill) {
	for _, s := range skills {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a skill by name. Returns false if it was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.skill, ok
}

// Descriptor returns the normalized descriptor registered under name.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.desc, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns every descriptor, sorted by name.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Signature returns the skill-set signature: "name:version" for every
// registered skill, sorted by name and joined with "|".
func (r *Registry) Signature() string {
	descs := r.Describe()
	parts := make([]string, len(descs))
	for i, d := range descs {
		parts[i] = d.SignatureEntry()
	}
	return strings.Join(parts, signatureSeparator)
}
