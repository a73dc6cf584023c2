package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/traf3li/clientops/observe"
)

// cacheFirst serves a cached copy without touching the network. On a miss
// it fetches and stores a successful response. If the network fails the
// offline shell is served instead.
func (w *Worker) cacheFirst(ctx context.Context, cache Cache, r *http.Request) (*CachedResponse, error) {
	key := cacheKey(r)
	if hit, ok := w.match(ctx, cache, r, CacheFirst, key); ok {
		return hit, nil
	}

	resp, err := w.fetch(ctx, r)
	if err != nil {
		return w.shell(ctx, cache, err)
	}
	if isOK(resp) {
		w.put(ctx, cache, key, resp)
	}
	return resp, nil
}

// networkFirst prefers the network and stores successful responses. When
// the network fails it falls back to the cached copy, then to the offline
// shell for page loads.
func (w *Worker) networkFirst(ctx context.Context, cache Cache, r *http.Request) (*CachedResponse, error) {
	key := cacheKey(r)

	resp, err := w.fetch(ctx, r)
	if err == nil {
		if isOK(resp) {
			w.put(ctx, cache, key, resp)
		}
		return resp, nil
	}

	if hit, ok := w.match(ctx, cache, r, NetworkFirst, key); ok {
		return hit, nil
	}
	if isNavigation(r) {
		return w.shell(ctx, cache, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrOffline, err)
}

// staleWhileRevalidate serves the cached copy at once and refreshes it in
// the background. With nothing cached the caller waits for the refresh.
func (w *Worker) staleWhileRevalidate(ctx context.Context, cache Cache, r *http.Request) (*CachedResponse, error) {
	key := cacheKey(r)
	hit, cached := w.match(ctx, cache, r, StaleWhileRevalidate, key)

	type result struct {
		resp *CachedResponse
		err  error
	}
	done := make(chan result, 1)

	bgCtx := context.WithoutCancel(ctx)
	bgReq := r.Clone(bgCtx)
	revalidate := func() {
		resp, err := w.fetch(bgCtx, bgReq)
		switch {
		case err != nil:
			w.logger.Debug(bgCtx, "revalidation failed", observe.F("key", key), observe.F("error", err.Error()))
		case isOK(resp):
			w.put(bgCtx, cache, key, resp)
		}
		done <- result{resp: resp, err: err}
	}
	if !w.background(revalidate) {
		if cached {
			return hit, nil
		}
		revalidate()
	}

	if cached {
		return hit, nil
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOffline, res.err)
		}
		return res.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) shell(ctx context.Context, cache Cache, cause error) (*CachedResponse, error) {
	resp, ok, err := cache.Match(ctx, ShellPath)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: %v", ErrOffline, cause)
	}
	return resp, nil
}

func (w *Worker) match(ctx context.Context, cache Cache, r *http.Request, s Strategy, key string) (*CachedResponse, bool) {
	resp, ok, err := cache.Match(ctx, key)
	if err != nil {
		w.logger.Warn(ctx, "cache lookup failed", observe.F("key", key), observe.F("error", err.Error()))
		ok = false
	}
	meta := observe.RequestMeta{Component: "offline", Method: r.Method, Route: s.String()}
	w.metrics.RecordCacheLookup(ctx, meta, ok)
	return resp, ok
}

func (w *Worker) put(ctx context.Context, cache Cache, key string, resp *CachedResponse) {
	if err := cache.Put(ctx, key, resp); err != nil {
		w.logger.Warn(ctx, "cache write failed", observe.F("key", key), observe.F("error", err.Error()))
	}
}
