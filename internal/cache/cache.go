// Package cache is a process-local, best-effort, short-TTL store with two
// uses: as a read-mostly cache (internal/runtime.CachedSurveyStore caches
// survey definitions, keyed by surveyId), and as the landing/analytics
// counter spec.md §9 Open Question (a) describes — TTL'd, with no
// transactional guarantee against the outbox consumer, documented here as
// the chosen semantics rather than left ambiguous.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a process-local TTL cache guarded by a single RWMutex. It never
// errors: Get reports a miss, Set always succeeds.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: make(map[string]entry), now: time.Now}
}

// Increment bumps a TTL-windowed counter and returns its new value. The
// window resets on first increment after expiry — a best-effort analytics
// tally, not a precise rate limiter: concurrent increments around the
// window boundary may reset rather than accumulate.
func (c *Cache) Increment(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		e = entry{value: 0, expiresAt: c.now().Add(c.ttl)}
	}
	n := e.value.(int) + 1
	e.value = n
	c.entries[key] = e
	return n
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate drops a key immediately, used when a survey is republished
// mid-TTL and a stale definition would otherwise linger.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
