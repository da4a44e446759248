package app

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TokenCache caches the identity provider's admin credential for a short
// TTL. It is constructed once and handed to whichever identity adapter
// needs it, instead of living as a module-level singleton. The clock is
// injectable so expiry can be tested without sleeping.
type TokenCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenCache creates a cache with the given TTL. A nil clock uses wall
// time.
func NewTokenCache(ttl time.Duration, c clock.Clock) *TokenCache {
	if c == nil {
		c = clock.New()
	}
	return &TokenCache{ttl: ttl, clock: c}
}

// Get returns the cached token, calling fetch to refresh it when absent or
// expired. Concurrent callers serialize on the refresh so the identity
// provider sees at most one token request per expiry.
func (c *TokenCache) Get(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clock.Now().Before(c.expiry) {
		return c.token, nil
	}

	token, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiry = c.clock.Now().Add(c.ttl)
	return token, nil
}

// Invalidate drops the cached token, forcing the next Get to refresh.
// Called when the provider rejects a token before its expected expiry.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}
