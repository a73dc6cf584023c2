package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// origin is a fake web origin that can be taken offline.
type origin struct {
	t      *testing.T
	server *httptest.Server
	down   atomic.Bool

	mu      sync.Mutex
	hits    map[string]int
	version map[string]string
	missing map[string]bool
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{
		t:       t,
		hits:    make(map[string]int),
		version: make(map[string]string),
		missing: make(map[string]bool),
	}
	o.server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.server.Close)
	return o
}

func (o *origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	body, versioned := o.version[r.URL.Path]
	missing := o.missing[r.URL.Path]
	o.mu.Unlock()

	if missing {
		http.NotFound(w, r)
		return
	}
	if !versioned {
		body = "content of " + r.URL.Path
	}
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		body = "<html>shell</html>"
	}
	_, _ = fmt.Fprint(w, body)
}

func (o *origin) set(path, body string) {
	o.mu.Lock()
	o.version[path] = body
	o.mu.Unlock()
}

func (o *origin) remove(path string) {
	o.mu.Lock()
	o.missing[path] = true
	o.mu.Unlock()
}

func (o *origin) Hits(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// RoundTrip fails while the origin is down.
func (o *origin) RoundTrip(r *http.Request) (*http.Response, error) {
	if o.down.Load() {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	return http.DefaultTransport.RoundTrip(r)
}

func newTestWorker(t *testing.T, o *origin, mutate ...func(*Config)) *Worker {
	t.Helper()
	cfg := Config{Origin: o.server.URL, Transport: o, Storage: NewMemoryStorage()}
	for _, m := range mutate {
		m(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

// startWorker runs w until the test ends and waits for activation.
func startWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})

	readyCtx, readyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readyCancel()
	if err := w.Ready(readyCtx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func get(t *testing.T, w *Worker, path string, header ...string) (*CachedResponse, error) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	return w.Fetch(context.Background(), r)
}

func cacheKeys(t *testing.T, s Storage, name string) []string {
	t.Helper()
	c, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", name, err)
	}
	keys, err := c.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	return keys
}

func TestNew_RequiresAbsoluteOrigin(t *testing.T) {
	if _, err := New(Config{Origin: "/relative"}); err == nil {
		t.Error("New() accepted a relative origin")
	}
}

func TestWorker_Lifecycle(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)

	if w.State() != StateInstalling {
		t.Fatalf("initial State() = %v, want installing", w.State())
	}
	startWorker(t, w)

	if w.State() != StateActive {
		t.Errorf("State() = %v, want active", w.State())
	}
	if !w.Controlling() {
		t.Error("Controlling() = false after activation")
	}

	keys := cacheKeys(t, w.storage, CurrentCacheName)
	if strings.Join(keys, ",") != "/,/images/badge-72.png,/images/icon-192.png,/images/icon-512.png,/manifest.json" {
		t.Errorf("precached keys = %v", keys)
	}
}

func TestWorker_PrecacheFailureDoesNotAbortInstall(t *testing.T) {
	o := newOrigin(t)
	o.remove("/images/badge-72.png")
	w := newTestWorker(t, o)

	startWorker(t, w)

	keys := cacheKeys(t, w.storage, CurrentCacheName)
	if len(keys) != 4 {
		t.Errorf("precached keys = %v, want 4 entries", keys)
	}
	for _, k := range keys {
		if k == "/images/badge-72.png" {
			t.Error("failed asset was cached")
		}
	}
}

func TestWorker_TransitionsOnlyMoveForward(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	ctx := context.Background()

	if err := w.Activate(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Activate() before Install error = %v, want ErrInvalidTransition", err)
	}
	if err := w.Install(ctx); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := w.Install(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Install() error = %v, want ErrInvalidTransition", err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := w.Activate(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Activate() error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorker_ActivatePrunesOldCaches(t *testing.T) {
	o := newOrigin(t)
	storage := NewMemoryStorage()
	ctx := context.Background()

	old, _ := storage.Open(ctx, "traf3li-cache-v1")
	_ = old.Put(ctx, "/app.js", &CachedResponse{Status: 200, Body: []byte("old")})
	_, _ = storage.Open(ctx, "some-other-cache")

	w := newTestWorker(t, o, func(cfg *Config) {
		cfg.Storage = storage
		cfg.CacheName = "traf3li-cache-v2"
	})
	startWorker(t, w)

	names, _ := storage.Names(ctx)
	if len(names) != 1 || names[0] != "traf3li-cache-v2" {
		t.Errorf("Names() = %v, want [traf3li-cache-v2]", names)
	}
	if ok, _ := storage.Has(ctx, "traf3li-cache-v1"); ok {
		t.Error("v1 cache still present")
	}
}

func TestWorker_NotControllingBeforeActivation(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)

	for range 2 {
		if _, err := get(t, w, "/images/logo.png"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if got := o.Hits("/images/logo.png"); got != 2 {
		t.Errorf("origin hits = %d, want 2", got)
	}
}

func TestWorker_CacheFirst(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)

	for range 3 {
		resp, err := get(t, w, "/fonts/inter.woff2")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(resp.Body) != "content of /fonts/inter.woff2" {
			t.Errorf("body = %q", resp.Body)
		}
	}
	if got := o.Hits("/fonts/inter.woff2"); got != 1 {
		t.Errorf("origin hits = %d, want 1", got)
	}
}

func TestWorker_CacheFirstFallsBackToShell(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)
	o.down.Store(true)

	resp, err := get(t, w, "/images/never-seen.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v, want shell", err)
	}
	if string(resp.Body) != "<html>shell</html>" {
		t.Errorf("body = %q, want shell", resp.Body)
	}
}

func TestWorker_CacheFirstDoesNotStoreFailures(t *testing.T) {
	o := newOrigin(t)
	o.remove("/images/gone.png")
	w := newTestWorker(t, o)
	startWorker(t, w)

	for range 2 {
		resp, err := get(t, w, "/images/gone.png")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if resp.Status != http.StatusNotFound {
			t.Errorf("Status = %d, want 404", resp.Status)
		}
	}
	if got := o.Hits("/images/gone.png"); got != 2 {
		t.Errorf("origin hits = %d, want 2", got)
	}
}

func TestWorker_NetworkFirst(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)

	o.set("/cases", "cases v1")
	resp, err := get(t, w, "/cases", "Sec-Fetch-Mode", "navigate")
	if err != nil || string(resp.Body) != "cases v1" {
		t.Fatalf("online Fetch() = %v, %v", resp, err)
	}

	o.set("/cases", "cases v2")
	resp, _ = get(t, w, "/cases", "Sec-Fetch-Mode", "navigate")
	if string(resp.Body) != "cases v2" {
		t.Errorf("body = %q, want network copy", resp.Body)
	}
	if got := o.Hits("/cases"); got != 2 {
		t.Errorf("origin hits = %d, want 2", got)
	}

	o.down.Store(true)
	tests := []struct {
		name    string
		path    string
		header  []string
		want    string
		wantErr error
	}{
		{name: "cached copy", path: "/cases", header: []string{"Sec-Fetch-Mode", "navigate"}, want: "cases v2"},
		{name: "navigation gets shell", path: "/clients", header: []string{"Sec-Fetch-Mode", "navigate"}, want: "<html>shell</html>"},
		{name: "html accept gets shell", path: "/reports", header: []string{"Accept", "text/html,application/xhtml+xml"}, want: "<html>shell</html>"},
		{name: "subresource fails", path: "/data.json", header: []string{"Sec-Fetch-Mode", "cors"}, wantErr: ErrOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := get(t, w, tt.path, tt.header...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(resp.Body) != tt.want {
				t.Errorf("body = %q, want %q", resp.Body, tt.want)
			}
		})
	}
}

func TestWorker_StaleWhileRevalidate(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)

	o.set("/assets/app.js", "v1")
	resp, err := get(t, w, "/assets/app.js")
	if err != nil || string(resp.Body) != "v1" {
		t.Fatalf("first Fetch() = %v, %v; want v1", resp, err)
	}
	w.Wait()

	o.set("/assets/app.js", "v2")
	resp, _ = get(t, w, "/assets/app.js")
	if string(resp.Body) != "v1" {
		t.Errorf("second body = %q, want stale v1", resp.Body)
	}
	w.Wait()

	resp, _ = get(t, w, "/assets/app.js")
	if string(resp.Body) != "v2" {
		t.Errorf("third body = %q, want revalidated v2", resp.Body)
	}
	w.Wait()
}

func TestWorker_StaleWhileRevalidateKeepsCacheWhenOffline(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)

	o.set("/assets/app.css", "body{}")
	if _, err := get(t, w, "/assets/app.css"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	w.Wait()

	o.down.Store(true)
	resp, err := get(t, w, "/assets/app.css")
	if err != nil || string(resp.Body) != "body{}" {
		t.Errorf("offline Fetch() = %v, %v; want cached", resp, err)
	}
	w.Wait()

	if _, err := get(t, w, "/assets/other.js"); !errors.Is(err, ErrOffline) {
		t.Errorf("uncached offline error = %v, want ErrOffline", err)
	}
	w.Wait()
}

func TestWorker_PassThroughNeverCached(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)

	for range 2 {
		if _, err := get(t, w, "/api/cases"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		r := httptest.NewRequest(http.MethodPost, "/images/upload.png", strings.NewReader("x"))
		if _, err := w.Fetch(context.Background(), r); err != nil {
			t.Fatalf("Fetch(POST) error = %v", err)
		}
	}
	if got := o.Hits("/api/cases"); got != 2 {
		t.Errorf("api hits = %d, want 2", got)
	}
	if got := o.Hits("/images/upload.png"); got != 2 {
		t.Errorf("post hits = %d, want 2", got)
	}
	for _, k := range cacheKeys(t, w.storage, CurrentCacheName) {
		if strings.HasPrefix(k, "/api/") || k == "/images/upload.png" {
			t.Errorf("pass-through request cached under %q", k)
		}
	}
}

func TestWorker_ServeHTTP(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	startWorker(t, w)

	proxy := httptest.NewServer(w)
	defer proxy.Close()

	res, err := http.Get(proxy.URL + "/api/ping")
	if err != nil {
		t.Fatalf("GET /api/ping error = %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("api status = %d, want 200", res.StatusCode)
	}

	o.down.Store(true)
	req, _ := http.NewRequest(http.MethodGet, proxy.URL+"/data.json", nil)
	req.Header.Set("Sec-Fetch-Mode", "cors")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /data.json error = %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("offline status = %d, want 503", res.StatusCode)
	}
}

func TestWorker_Messages(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)
	ctx := context.Background()

	if err := w.Post(ctx, Message{Type: "CLAIM_EVERYTHING"}); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Post(unknown) error = %v, want ErrUnknownMessage", err)
	}

	h := MessageHandler(w)
	tests := []struct {
		body string
		want int
	}{
		{body: `{"type":"SKIP_WAITING"}`, want: http.StatusAccepted},
		{body: `{"type":"NOPE"}`, want: http.StatusBadRequest},
		{body: `not json`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/__sw/message", strings.NewReader(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("POST %s status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
}

func TestWorker_StopRevalidatesInline(t *testing.T) {
	o := newOrigin(t)
	w := newTestWorker(t, o)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	readyCtx, readyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readyCancel()
	if err := w.Ready(readyCtx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}

	o.set("/assets/app.js", "v1")
	if _, err := get(t, w, "/assets/app.js"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	// Run returns only after the pending revalidation has drained.
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	hits := o.Hits("/assets/app.js")

	o.set("/assets/app.js", "v2")
	resp, err := get(t, w, "/assets/app.js")
	if err != nil || string(resp.Body) != "v1" {
		t.Fatalf("stopped cached Fetch() = %v, %v; want v1", resp, err)
	}
	if got := o.Hits("/assets/app.js"); got != hits {
		t.Errorf("origin hits after stop = %d, want %d", got, hits)
	}

	o.set("/assets/late.js", "late")
	resp, err = get(t, w, "/assets/late.js")
	if err != nil || string(resp.Body) != "late" {
		t.Fatalf("stopped uncached Fetch() = %v, %v; want inline fetch", resp, err)
	}
	w.Stop()
}
