package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMiddleware_GETCachedWithinTTL(t *testing.T) {
	clock := newFakeClock()
	mem := NewMemoryCache(DefaultPolicy(), WithClock(clock.Now))
	mw := NewMiddleware(mem, DefaultPolicy(), nil)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"cases":[1]}`), nil
	}

	key, _ := NewRequestKeyer().Key("/api/cases", map[string]string{"page": "1"})

	if _, cached, _ := mw.Execute(ctx, "GET", key, fetch); cached {
		t.Fatal("first call cannot be a cache hit")
	}

	clock.Advance(60 * time.Second)
	body, cached, err := mw.Execute(ctx, "GET", key, fetch)
	if err != nil || !cached {
		t.Fatalf("second call at t=60s: cached=%v err=%v, want cached", cached, err)
	}
	if string(body) != `{"cases":[1]}` {
		t.Errorf("cached body = %s", body)
	}

	clock.Advance(70 * time.Second)
	if _, cached, _ := mw.Execute(ctx, "GET", key, fetch); cached {
		t.Fatal("third call at t=130s must reach the network")
	}

	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
	if s := mw.Stats(); s.Hits != 1 || s.Misses != 2 {
		t.Errorf("Stats() = %+v, want 1 hit / 2 misses", s)
	}
}

func TestMiddleware_SkipsNonGET(t *testing.T) {
	mw := NewMiddleware(NewMemoryCache(DefaultPolicy()), DefaultPolicy(), nil)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	}

	for i := 0; i < 2; i++ {
		if _, cached, _ := mw.Execute(ctx, "POST", "/api/invoices{}", fetch); cached {
			t.Fatal("POST must never be served from cache")
		}
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestMiddleware_ErrorsNotCached(t *testing.T) {
	mw := NewMiddleware(NewMemoryCache(DefaultPolicy()), DefaultPolicy(), nil)
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := mw.Execute(ctx, "GET", "/api/x{}", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want boom", err)
	}

	body, cached, err := mw.Execute(ctx, "GET", "/api/x{}", func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	if err != nil || cached || string(body) != "v" {
		t.Errorf("Execute() after failure = %q, %v, %v; want fresh fetch", body, cached, err)
	}
}

func TestMiddleware_NoCachePolicy(t *testing.T) {
	mw := NewMiddleware(NewMemoryCache(NoCachePolicy()), NoCachePolicy(), nil)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		_, _, _ = mw.Execute(ctx, "GET", "/api/x{}", func(context.Context) ([]byte, error) {
			calls++
			return []byte("v"), nil
		})
	}
	if calls != 3 {
		t.Errorf("fetch calls = %d, want 3 with caching disabled", calls)
	}
}

func TestMiddleware_ClearNil(t *testing.T) {
	var mw *Middleware
	if _, err := mw.Clear(context.Background(), ""); !errors.Is(err, ErrNilCache) {
		t.Errorf("Clear() on nil middleware = %v, want ErrNilCache", err)
	}
}
