package rbac

import (
	"sync"
	"time"
)

// DefaultDecisionTTL bounds how long a cached decision may be served.
const DefaultDecisionTTL = 5 * time.Minute

type decisionKey struct {
	principalID int64
	resource    string
	action      string
}

// DecisionCache memoizes evaluation results per principal. Expiry is
// enforced by a lazy bulk clear: once the TTL window since the last sweep
// has elapsed, the whole cache is dropped on the next access. The session
// lifecycle manager additionally clears it explicitly whenever the
// principal snapshot changes; a cache entry must never outlive the
// snapshot it was computed from.
type DecisionCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	entries   map[decisionKey]bool
}

// DecisionCacheOption customises cache construction.
type DecisionCacheOption func(*DecisionCache)

// WithClock injects a time source, used by tests to control expiry.
func WithClock(now func() time.Time) DecisionCacheOption {
	return func(c *DecisionCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewDecisionCache constructs a cache with the given TTL. A non-positive
// TTL falls back to DefaultDecisionTTL.
func NewDecisionCache(ttl time.Duration, opts ...DecisionCacheOption) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	c := &DecisionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[decisionKey]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSweep = c.now()
	return c
}

// Get returns the cached decision for the key, if present and fresh.
func (c *DecisionCache) Get(principalID int64, resource, action string) (allowed, ok bool) {
	if c == nil {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	allowed, ok = c.entries[decisionKey{principalID, resource, action}]
	return allowed, ok
}

// Set stores a decision for the key.
func (c *DecisionCache) Set(principalID int64, resource, action string, allowed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries[decisionKey{principalID, resource, action}] = allowed
}

// Invalidate drops every entry. Always safe: the worst case is a
// recomputation on the next check.
func (c *DecisionCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[decisionKey]bool)
	c.lastSweep = c.now()
}

// Len reports the number of live entries.
func (c *DecisionCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.entries)
}

func (c *DecisionCache) sweepLocked() {
	if c.now().Sub(c.lastSweep) < c.ttl {
		return
	}
	c.entries = make(map[decisionKey]bool)
	c.lastSweep = c.now()
}
