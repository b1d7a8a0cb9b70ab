package domain

import "sync"

// DefaultShoutoutCap is the per-session shout-out limit for articles and
// magazines.
const DefaultShoutoutCap = 5

// CounterCache reflects a user's own shout-outs and clicks immediately. The
// displayed value for a key is always max(cache, server), so the cache never
// needs invalidating when the server count grows.
//
// It also tracks how many times each key was incremented locally, which is
// what CanIncrement checks against the configured caps.
type CounterCache struct {
	mu         sync.Mutex
	counts     map[CounterKey]int
	increments map[CounterKey]int
	caps       map[string]int // by CounterKey.Kind; missing means no cap
}

// NewCounterCache returns an empty cache with the given caps keyed by kind
// (a ContentType or FollowKind string).
func NewCounterCache(caps map[string]int) *CounterCache {
	c := &CounterCache{
		counts:     make(map[CounterKey]int),
		increments: make(map[CounterKey]int),
		caps:       make(map[string]int, len(caps)),
	}
	for k, v := range caps {
		c.caps[k] = v
	}
	return c
}

// RecordLocalIncrement bumps the cached count for key one past the larger of
// the cached and server values and returns the new value.
func (c *CounterCache) RecordLocalIncrement(key CounterKey, serverValue int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := max(c.counts[key], serverValue) + 1
	c.counts[key] = n
	c.increments[key]++
	return n
}

// TryIncrement records a local increment for key if it is still below its
// cap. The check and the increment happen under one lock. It returns the
// count to display and whether the increment was recorded.
func (c *CounterCache) TryIncrement(key CounterKey, serverValue int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit, ok := c.caps[key.Kind]; ok && c.increments[key] >= limit {
		return max(c.counts[key], serverValue), false
	}
	n := max(c.counts[key], serverValue) + 1
	c.counts[key] = n
	c.increments[key]++
	return n, true
}

// Observe raises the cached count for key to serverValue if it is higher and
// returns the count to display. Later local increments build on it.
func (c *CounterCache) Observe(key CounterKey, serverValue int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := max(c.counts[key], serverValue)
	c.counts[key] = n
	return n
}

// EffectiveCount returns the count to display for key.
func (c *CounterCache) EffectiveCount(key CounterKey, serverValue int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.counts[key], serverValue)
}

// CanIncrement reports whether key is still below its increment cap.
func (c *CounterCache) CanIncrement(key CounterKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit, ok := c.caps[key.Kind]
	if !ok {
		return true
	}
	return c.increments[key] < limit
}

// Increments returns the number of local increments recorded for key.
func (c *CounterCache) Increments(key CounterKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.increments[key]
}

// Restore seeds the increment counters for one kind, typically from the
// preference store at startup. Existing higher values are kept.
func (c *CounterCache) Restore(kind string, counts map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, n := range counts {
		key := CounterKey{Kind: kind, ID: id}
		c.increments[key] = max(c.increments[key], n)
	}
}
