package sandbox

import (
	"context"
	"sync"
	"time"
)

// CachedSandbox wraps a Sandbox and caches Poll() results with a TTL,
// adapted from the teacher's CachedRuntime status cache. The health loop
// calls Poll once per tick anyway, but a cached layer keeps repeated
// in-tick callers (e.g. a manual status query racing the health loop)
// from hitting the provider twice.
type CachedSandbox struct {
	Sandbox
	mu        sync.Mutex
	ttl       time.Duration
	cached    *int
	expiresAt time.Time
	have      bool
}

// NewCachedSandbox wraps s with a poll cache of the given TTL. ttl <= 0
// defaults to 2 seconds.
func NewCachedSandbox(s Sandbox, ttl time.Duration) *CachedSandbox {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &CachedSandbox{Sandbox: s, ttl: ttl}
}

// Poll returns the cached exit code if still fresh, else refreshes it
// from the wrapped Sandbox. A nil exit code (still running) is cached
// just like a terminal one, so a tight poll loop doesn't hammer the
// provider while the sandbox is healthy.
func (c *CachedSandbox) Poll(ctx context.Context) (*int, error) {
	c.mu.Lock()
	if c.have && time.Now().Before(c.expiresAt) {
		code := c.cached
		c.mu.Unlock()
		return code, nil
	}
	c.mu.Unlock()

	code, err := c.Sandbox.Poll(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = code
	c.have = true
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return code, nil
}

// Invalidate clears the cached poll result, forcing the next Poll to
// hit the wrapped Sandbox.
func (c *CachedSandbox) Invalidate() {
	c.mu.Lock()
	c.have = false
	c.mu.Unlock()
}

// Terminate invalidates the cache before delegating, since termination
// changes exit-code state that a stale cache entry would hide.
func (c *CachedSandbox) Terminate(ctx context.Context) error {
	c.Invalidate()
	return c.Sandbox.Terminate(ctx)
}
