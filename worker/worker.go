package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/traf3li/clientops/observe"
)

// CurrentCacheName is the only cache an active worker keeps.
const CurrentCacheName = "traf3li-cache-v1"

// ShellPath is the cached root document served when offline.
const ShellPath = "/"

// DefaultPrecache is the application shell stored at install.
var DefaultPrecache = []string{
	"/",
	"/manifest.json",
	"/images/icon-192.png",
	"/images/icon-512.png",
	"/images/badge-72.png",
}

// State is a worker lifecycle state.
type State int32

// Lifecycle states, in order.
const (
	StateInstalling State = iota
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Config configures a Worker.
type Config struct {
	// Origin is the web origin the worker sits in front of.
	Origin string

	// Storage holds the named caches. Default: a new MemoryStorage.
	Storage Storage

	// Transport reaches the origin. Default: http.DefaultTransport.
	Transport http.RoundTripper

	// CacheName is the current cache version. Default: CurrentCacheName.
	CacheName string

	// Precache lists the paths stored at install. Default: DefaultPrecache.
	Precache []string

	// PrecacheConcurrency bounds parallel pre-cache fetches. Default: 4.
	PrecacheConcurrency int

	// Observer instruments origin requests. Optional.
	Observer *observe.Middleware

	// Now stamps stored responses. Default: time.Now.
	Now func() time.Time
}

// Worker is one offline worker instance.
//
// Contract:
//   - Concurrency: safe for concurrent use once constructed.
//   - Lifecycle: states only move forward, installing to activating to
//     active. Until the worker claims its clients every request goes to
//     the network.
type Worker struct {
	origin      *url.URL
	storage     Storage
	network     *http.Client
	proxy       *httputil.ReverseProxy
	cacheName   string
	precache    []string
	concurrency int
	logger      observe.Logger
	metrics     observe.Metrics
	now         func() time.Time

	state     atomic.Int32
	installed atomic.Bool
	claimed   atomic.Bool
	skipOnce  sync.Once
	skip      chan struct{}
	activated chan struct{}
	inbox     chan Message

	bgMu     sync.Mutex
	stopping bool
	bg       sync.WaitGroup
}

// New creates a Worker in the installing state.
func New(cfg Config) (*Worker, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil || !origin.IsAbs() {
		return nil, fmt.Errorf("worker: origin %q must be an absolute URL", cfg.Origin)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := observe.NopLogger()
	metrics := observe.NoopMetrics()
	if cfg.Observer != nil {
		transport = cfg.Observer.Transport("offline", transport)
		logger = cfg.Observer.Logger()
		metrics = cfg.Observer.Metrics()
	}

	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryStorage()
	}
	name := cfg.CacheName
	if name == "" {
		name = CurrentCacheName
	}
	precache := cfg.Precache
	if precache == nil {
		precache = DefaultPrecache
	}
	concurrency := cfg.PrecacheConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	proxy := httputil.NewSingleHostReverseProxy(origin)
	proxy.Transport = transport

	return &Worker{
		origin:  origin,
		storage: storage,
		network: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		proxy:       proxy,
		cacheName:   name,
		precache:    precache,
		concurrency: concurrency,
		logger:      logger.With(observe.F("component", "offline"), observe.F("cache", name)),
		metrics:     metrics,
		now:         now,
		skip:        make(chan struct{}),
		activated:   make(chan struct{}),
		inbox:       make(chan Message, 16),
	}, nil
}

// State returns the lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// CacheName returns the worker's cache version.
func (w *Worker) CacheName() string { return w.cacheName }

// Controlling reports whether the worker has claimed its clients.
func (w *Worker) Controlling() bool { return w.claimed.Load() }

// Run drives the worker through install and activation, then handles
// messages until ctx is done. On return the worker stops: pending
// revalidations finish and no new ones start.
func (w *Worker) Run(ctx context.Context) error {
	defer w.Stop()

	if err := w.Install(ctx); err != nil {
		return err
	}
	for w.State() != StateActive {
		select {
		case <-ctx.Done():
			return ErrWorkerStopped
		case msg := <-w.inbox:
			w.handle(ctx, msg)
		case <-w.skip:
			if err := w.Activate(ctx); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-w.inbox:
			w.handle(ctx, msg)
		}
	}
}

// Install opens the current cache and stores the application shell. A
// pre-cache failure is logged and does not fail the install. Install asks
// to skip the waiting phase.
func (w *Worker) Install(ctx context.Context) error {
	if w.State() != StateInstalling || !w.installed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: install from %s", ErrInvalidTransition, w.State())
	}

	cache, err := w.storage.Open(ctx, w.cacheName)
	if err != nil {
		return fmt.Errorf("worker: install: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, p := range w.precache {
		g.Go(func() error {
			if err := w.precacheOne(ctx, cache, p); err != nil {
				w.logger.Warn(ctx, "precache failed", observe.F("path", p), observe.F("error", err.Error()))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.Error(ctx, "install completed with precache failures", observe.F("error", err.Error()))
	} else {
		w.logger.Info(ctx, "installed", observe.F("precached", len(w.precache)))
	}

	w.SkipWaiting()
	return nil
}

func (w *Worker) precacheOne(ctx context.Context, cache Cache, p string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return err
	}
	resp, err := w.fetch(ctx, req)
	if err != nil {
		return err
	}
	if !isOK(resp) {
		return fmt.Errorf("worker: precache %s: status %d", p, resp.Status)
	}
	return cache.Put(ctx, p, resp)
}

// SkipWaiting lets an installed worker activate without waiting for older
// clients to close. Calling it more than once has no further effect.
func (w *Worker) SkipWaiting() {
	w.skipOnce.Do(func() { close(w.skip) })
}

// Activate deletes every cache except the current one and claims clients.
func (w *Worker) Activate(ctx context.Context) error {
	if !w.installed.Load() || !w.state.CompareAndSwap(int32(StateInstalling), int32(StateActivating)) {
		return fmt.Errorf("%w: activate from %s", ErrInvalidTransition, w.State())
	}

	names, err := w.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("worker: activate: %w", err)
	}
	for _, name := range names {
		if name == w.cacheName {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("worker: delete cache %q: %w", name, err)
		}
		w.logger.Info(ctx, "deleted stale cache", observe.F("stale", name))
	}

	w.claimed.Store(true)
	w.state.Store(int32(StateActive))
	close(w.activated)
	w.logger.Info(ctx, "activated")
	return nil
}

// Ready blocks until the worker is active.
func (w *Worker) Ready(ctx context.Context) error {
	select {
	case <-w.activated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch answers r with the strategy Route picks. Pass-through requests and
// requests arriving before the worker controls its clients go straight to
// the network.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (*CachedResponse, error) {
	strategy := Route(r)
	if strategy == PassThrough || !w.Controlling() {
		return w.fetch(ctx, r)
	}

	cache, err := w.storage.Open(ctx, w.cacheName)
	if err != nil {
		w.logger.Warn(ctx, "cache unavailable", observe.F("error", err.Error()))
		return w.fetch(ctx, r)
	}

	switch strategy {
	case CacheFirst:
		return w.cacheFirst(ctx, cache, r)
	case StaleWhileRevalidate:
		return w.staleWhileRevalidate(ctx, cache, r)
	default:
		return w.networkFirst(ctx, cache, r)
	}
}

// ServeHTTP lets the worker sit in front of the origin as a proxy.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if Route(r) == PassThrough || !w.Controlling() {
		w.proxy.ServeHTTP(rw, r)
		return
	}

	resp, err := w.Fetch(r.Context(), r)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrOffline) {
			status = http.StatusServiceUnavailable
		}
		http.Error(rw, http.StatusText(status), status)
		return
	}

	for k, vs := range resp.Header {
		rw.Header()[k] = vs
	}
	rw.WriteHeader(resp.Status)
	_, _ = rw.Write(resp.Body)
}

// Wait blocks until background revalidations finish.
func (w *Worker) Wait() { w.bg.Wait() }

// Stop refuses further background revalidation and waits for the pending
// ones. Requests served afterwards revalidate inline. Stop is idempotent.
func (w *Worker) Stop() {
	w.bgMu.Lock()
	w.stopping = true
	w.bgMu.Unlock()
	w.bg.Wait()
}

// background runs fn on its own goroutine unless the worker is stopping.
func (w *Worker) background(fn func()) bool {
	w.bgMu.Lock()
	defer w.bgMu.Unlock()
	if w.stopping {
		return false
	}
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		fn()
	}()
	return true
}

// fetch sends r to the origin and buffers the response.
func (w *Worker) fetch(ctx context.Context, r *http.Request) (*CachedResponse, error) {
	target := w.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	out.Header.Del("Accept-Encoding")

	res, err := w.network.Do(out)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &CachedResponse{
		Status:   res.StatusCode,
		Header:   res.Header,
		Body:     data,
		StoredAt: w.now(),
	}, nil
}

func isOK(r *CachedResponse) bool {
	return r.Status >= 200 && r.Status < 300
}
