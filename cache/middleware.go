package cache

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
)

// FetchFunc loads a fresh response body from the network.
type FetchFunc func(ctx context.Context) ([]byte, error)

// SkipRule determines whether to skip caching for a given request method.
// Returns true if caching should be skipped.
type SkipRule func(method string) bool

// DefaultSkipRule caches GET requests only. Method matching is case-insensitive.
func DefaultSkipRule(method string) bool {
	return !strings.EqualFold(method, http.MethodGet)
}

// Stats reports cache effectiveness for the middleware.
type Stats struct {
	Hits   int64
	Misses int64
}

// Middleware wraps request execution with caching.
type Middleware struct {
	cache    Cache
	policy   Policy
	skipRule SkipRule

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMiddleware creates a new cache middleware.
// If skipRule is nil, DefaultSkipRule is used.
func NewMiddleware(cache Cache, policy Policy, skipRule SkipRule) *Middleware {
	if skipRule == nil {
		skipRule = DefaultSkipRule
	}
	return &Middleware{
		cache:    cache,
		policy:   policy,
		skipRule: skipRule,
	}
}

// Execute runs fetch with caching.
// On cache hit, returns the cached body and cached=true without calling fetch.
// On cache miss, calls fetch and stores the body, overwriting any previous entry.
// Errors are NOT cached.
func (m *Middleware) Execute(ctx context.Context, method, key string, fetch FetchFunc) (body []byte, cached bool, err error) {
	if m == nil || m.cache == nil || m.skipRule(method) || !m.policy.ShouldCache() {
		body, err = fetch(ctx)
		return body, false, err
	}

	if ValidateKey(key) != nil {
		body, err = fetch(ctx)
		return body, false, err
	}

	if hit, ok := m.cache.Get(ctx, key); ok {
		m.hits.Add(1)
		return hit, true, nil
	}
	m.misses.Add(1)

	body, err = fetch(ctx)
	if err != nil {
		return body, false, err
	}

	if ttl := m.policy.EffectiveTTL(0); ttl > 0 {
		_ = m.cache.Set(ctx, key, body, ttl)
	}

	return body, false, nil
}

// Clear removes keys containing pattern, or all keys when pattern is empty.
func (m *Middleware) Clear(ctx context.Context, pattern string) (int, error) {
	if m == nil || m.cache == nil {
		return 0, ErrNilCache
	}
	return m.cache.Clear(ctx, pattern)
}

// Stats returns hit and miss counters since creation.
func (m *Middleware) Stats() Stats {
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
}
