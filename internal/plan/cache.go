// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// CACHE ENTRY
// =============================================================================

// CacheEntry is a cached plan together with the conditions it was generated
// under.
type CacheEntry struct {
	// Plan is the cached skill sequence
	Plan []string

	// Confidence is the score the plan was generated with
	Confidence float64

	// Reasoning is carried over from the generator
	Reasoning string

	// CreatedAt drives TTL expiry
	CreatedAt time.Time

	// UsageCount is incremented on every hit
	UsageCount int

	// Fingerprint is the key the entry is stored under
	Fingerprint string

	// Signature is the skill-set signature at creation time
	Signature string
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// =============================================================================
// PLAN CACHE
// =============================================================================

// Cache stores generated plans by fingerprint. Entries are invalid once older
// than the TTL or when the current skill-set signature differs from the one
// they were stored with. Invalid entries are evicted when a read finds them
// and by InvalidateStale; there is no background sweeper.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *CacheEntry]
	ttl       time.Duration
	signature func() string
	now       func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheClock overrides time.Now for TTL checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates a cache holding at most size entries. signature returns the
// current skill-set signature, normally skill.Registry.Signature.
func NewCache(size int, ttl time.Duration, signature func() string, opts ...CacheOption) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheMaxEntries
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	if signature == nil {
		return nil, fmt.Errorf("cache signature provider is required")
	}
	entries, err := lru.New[string, *CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create plan cache: %w", err)
	}
	c := &Cache{
		entries:   entries,
		ttl:       ttl,
		signature: signature,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the entry for fingerprint when it is still valid, incrementing
// its usage counter. A stale entry is evicted and reported as a miss.
func (c *Cache) Get(fingerprint string) (CacheEntry, bool) {
	sig := c.signature()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(fingerprint)
	if !ok {
		c.misses++
		return CacheEntry{}, false
	}
	if !c.valid(e, sig) {
		c.entries.Remove(fingerprint)
		c.evictions++
		c.misses++
		return CacheEntry{}, false
	}
	e.UsageCount++
	c.hits++
	return e.clone(), true
}

// Put stores a plan. An existing valid entry with higher confidence is kept;
// Put reports whether the new plan was stored.
func (c *Cache) Put(fingerprint string, plan []string, confidence float64, reasoning string) bool {
	if len(plan) == 0 {
		return false
	}
	sig := c.signature()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries.Peek(fingerprint); ok && c.valid(existing, sig) && existing.Confidence > confidence {
		return false
	}
	c.entries.Add(fingerprint, &CacheEntry{
		Plan:        append([]string(nil), plan...),
		Confidence:  confidence,
		Reasoning:   reasoning,
		CreatedAt:   c.now(),
		Fingerprint: fingerprint,
		Signature:   sig,
	})
	return true
}

// InvalidateStale evicts every expired or signature-mismatched entry and
// returns how many were removed.
func (c *Cache) InvalidateStale() int {
	sig := c.signature()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok || c.valid(e, sig) {
			continue
		}
		c.entries.Remove(key)
		removed++
	}
	c.evictions += uint64(removed)
	return removed
}

// Remove deletes one entry.
func (c *Cache) Remove(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Remove(fingerprint)
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of stored entries, valid or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.entries.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) valid(e *CacheEntry, signature string) bool {
	if c.now().Sub(e.CreatedAt) > c.ttl {
		return false
	}
	return e.Signature == signature
}

func (e *CacheEntry) clone() CacheEntry {
	out := *e
	out.Plan = append([]string(nil), e.Plan...)
	return out
}
