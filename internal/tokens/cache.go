package tokens

import "sync"

// Scope lists the route groups a token may call. An empty scope allows all.
type Scope map[string]bool

func (s Scope) Allows(name string) bool {
	return len(s) == 0 || s[name]
}

// Entry is one API token as loaded from Postgres.
type Entry struct {
	RateLimit int
	Scope     Scope
}

// Cache is the in-memory copy of the token table. A nil map means the
// table has never been loaded.
type Cache struct {
	mu sync.RWMutex
	m  map[string]Entry
}

func NewCache() *Cache { return &Cache{} }

// Replace swaps the whole token set.
func (c *Cache) Replace(m map[string]Entry) {
	cp := make(map[string]Entry, len(m))
	for k, v := range m {
		cp[k] = v
	}
	c.mu.Lock()
	c.m = cp
	c.mu.Unlock()
}

// Ready reports whether tokens were loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m != nil
}

func (c *Cache) Validate(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.m[token]
	return ok
}

// RateLimit returns the per-interval limit for token; 0 means unlimited or unknown.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m[token].RateLimit
}

func (c *Cache) Scope(token string) Scope {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m[token].Scope
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
