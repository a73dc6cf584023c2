package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/traf3li/clientops/cache"
	"github.com/traf3li/clientops/observe"
	"github.com/traf3li/clientops/resilience"
)

// component labels the client's telemetry.
const component = "api"

// Config configures a Client. Only BaseURL is required.
type Config struct {
	// BaseURL is the absolute API root, e.g. https://api.traf3li.com/api.
	BaseURL string

	// HTTPClient sends the requests. A cookie jar is attached when it has
	// none. Default: a new client with http.DefaultTransport.
	HTTPClient *http.Client

	// Cache holds GET bodies. Default: an in-memory cache.
	Cache cache.Cache

	// CachePolicy sets the GET TTL. Default: cache.DefaultPolicy().
	CachePolicy *cache.Policy

	// Keyer builds cache keys. Default: cache.NewRequestKeyer().
	Keyer cache.Keyer

	// Retry configures transient-failure retries. RetryIf is always
	// replaced by the client's classification.
	Retry resilience.RetryConfig

	// Circuit configures the per-group breakers. IsFailure is always
	// replaced: only 5xx and 429 responses count.
	Circuit resilience.CircuitBreakerConfig

	// AttemptTimeout bounds one HTTP attempt. Default: 15s.
	AttemptTimeout time.Duration

	// Session receives 401 side effects. Optional.
	Session Session

	// Notifier shows 403, 423, and 429 notices. Optional.
	Notifier Notifier

	// OnSessionWarning is called when a response says the session is about
	// to expire. Optional.
	OnSessionWarning func(SessionWarning)

	// Observer instruments every attempt. Optional.
	Observer *observe.Middleware

	// Locale selects the message language. Default: Arabic.
	Locale language.Tag

	// SignInPath is the redirect target on 401. Default: /sign-in.
	SignInPath string

	// NewIdempotencyKey generates idempotency keys. Default: uuid.NewString.
	NewIdempotencyKey func() string

	// Now replaces time.Now when parsing Retry-After dates.
	Now func() time.Time
}

// Client is the resilient API client.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: every error returned by Do and the helpers is an *APIError.
//   - Ownership: returned Responses may be shared and must not be modified.
type Client struct {
	base       *url.URL
	http       *http.Client
	cache      *cache.Middleware
	keyer      cache.Keyer
	retry      *resilience.Retry
	timeout    *resilience.Timeout
	circuits   *resilience.CircuitRegistry
	session    Session
	notifier   Notifier
	onWarning  func(SessionWarning)
	metrics    observe.Metrics
	logger     observe.Logger
	loc        localizer
	signInPath string
	now        func() time.Time

	group      singleflight.Group
	idem       *idempotencyKeys
	csrf       csrfTokens
	redirected atomic.Bool
	inflight   atomic.Int64
	rateLimit  atomic.Pointer[RateLimitInfo]
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	metrics := observe.NoopMetrics()
	logger := observe.NopLogger()
	if cfg.Observer != nil {
		hc.Transport = cfg.Observer.Transport(component, hc.Transport)
		metrics = cfg.Observer.Metrics()
		logger = cfg.Observer.Logger()
	}

	policy := cache.DefaultPolicy()
	if cfg.CachePolicy != nil {
		policy = *cfg.CachePolicy
	}
	store := cfg.Cache
	if store == nil {
		store = cache.NewMemoryCache(policy)
	}
	keyer := cfg.Keyer
	if keyer == nil {
		keyer = cache.NewRequestKeyer()
	}

	retryCfg := cfg.Retry
	retryCfg.RetryIf = isTransient
	circuitCfg := cfg.Circuit
	circuitCfg.IsFailure = isCircuitFailure

	signIn := cfg.SignInPath
	if signIn == "" {
		signIn = DefaultSignInPath
	}
	newKey := cfg.NewIdempotencyKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	locale := cfg.Locale
	if locale == language.Und {
		locale = language.Arabic
	}

	return &Client{
		base:       base,
		http:       hc,
		cache:      cache.NewMiddleware(store, policy, nil),
		keyer:      keyer,
		retry:      resilience.NewRetry(retryCfg),
		timeout:    resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.AttemptTimeout}),
		circuits:   resilience.NewCircuitRegistry(circuitCfg),
		session:    cfg.Session,
		notifier:   cfg.Notifier,
		onWarning:  cfg.OnSessionWarning,
		metrics:    metrics,
		logger:     logger.With(observe.F("component", component)),
		loc:        newLocalizer(locale),
		signInPath: signIn,
		now:        now,
		idem:       newIdempotencyKeys(newKey),
	}, nil
}

// Do sends req through the pipeline. GETs are served from the cache when
// fresh and share one fetch with identical concurrent GETs.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	t, err := resolveTarget(c.base, req.Path, req.Params)
	if err != nil {
		return nil, c.invalid(err)
	}
	if method != http.MethodGet {
		return c.send(ctx, method, t, req)
	}
	return c.get(ctx, t, req)
}

func (c *Client) get(ctx context.Context, t target, req Request) (*Response, error) {
	key, err := c.keyer.Key("/"+strings.TrimLeft(req.Path, "/"), req.Params)
	if err != nil {
		return nil, c.invalid(err)
	}
	meta := observe.RequestMeta{Component: component, Method: http.MethodGet, Route: EndpointGroup(t.path)}

	// The shared fetch outlives any single caller; each caller stops
	// waiting on its own context.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		var fresh *Response
		body, cached, err := c.cache.Execute(shared, http.MethodGet, key, func(ctx context.Context) ([]byte, error) {
			resp, err := c.send(ctx, http.MethodGet, t, req)
			if err != nil {
				return nil, err
			}
			fresh = resp
			return resp.Body, nil
		})
		c.metrics.RecordCacheLookup(shared, meta, cached)
		if err != nil {
			return nil, err
		}
		if cached {
			return &Response{Status: http.StatusOK, Header: http.Header{}, Body: body, Cached: true}, nil
		}
		return fresh, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, &APIError{Code: CodeCancelled, Message: c.loc.text(msgCancelled), cause: ctx.Err()}
	}
}

// send runs the retry loop for one logical request. Method, body, and
// headers are fixed before the first attempt and resent unchanged.
func (c *Client) send(ctx context.Context, method string, t target, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, c.invalid(err)
	}

	header := make(http.Header)
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "application/json")
	for k, vs := range req.Header {
		header[http.CanonicalHeaderKey(k)] = vs
	}
	if isMutation(method) && header.Get(HeaderCSRFToken) == "" {
		if token := c.csrfToken(); token != "" {
			header.Set(HeaderCSRFToken, token)
		}
	}
	idempotent := needsIdempotencyKey(method, t.path)
	if idempotent && header.Get(HeaderIdempotencyKey) == "" {
		header.Set(HeaderIdempotencyKey, c.idem.get(method, t.path, body))
	}

	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	group := EndpointGroup(t.path)
	meta := observe.RequestMeta{Component: component, Method: method, Route: group}

	// The breaker is consulted once per logical request and records its
	// final outcome; a sequence that got through keeps its retry budget.
	var resp *Response
	run := func(ctx context.Context) error {
		return c.retry.Do(ctx, func(ctx context.Context, rc resilience.RetryContext) error {
			if rc.HasRetried {
				c.metrics.RecordRetry(ctx, meta, rc.Attempt)
			}
			// The timeout may return before the attempt does, so the
			// response is handed over only on success.
			out := make(chan *Response, 1)
			err := c.timeout.Execute(ctx, func(ctx context.Context) error {
				r, err := c.roundTrip(ctx, method, t, header, body)
				if err != nil {
					return err
				}
				out <- r
				return nil
			})
			if err == nil {
				resp = <-out
			}
			return err
		})
	}
	if bypassesCircuit(t.path) {
		err = run(ctx)
	} else {
		err = c.circuits.Execute(ctx, group, run)
	}
	if err != nil {
		apiErr := c.normalize(ctx, t, group, err)
		c.logger.Debug(ctx, "request failed",
			observe.F("method", method),
			observe.F("path", t.path),
			observe.F("status", apiErr.Status),
			observe.F("code", string(apiErr.Code)),
		)
		return nil, apiErr
	}

	c.succeeded(method, t, body, idempotent, resp)
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, t target, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header = header.Clone()

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	r := &Response{Status: res.StatusCode, Header: res.Header, Body: data}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, &statusError{resp: r}
	}
	return r, nil
}

func (c *Client) succeeded(method string, t target, body []byte, idempotent bool, resp *Response) {
	if idempotent {
		c.idem.release(method, t.path, body)
	}
	// A successful auth call means the user signed in again.
	if bypassesCircuit(t.path) {
		c.redirected.Store(false)
	}
	c.csrf.remember(resp.Header)
	if w, ok := ParseSessionWarning(resp.Header); ok && c.onWarning != nil {
		c.onWarning(w)
	}
	if info, ok := ParseRateLimit(resp.Header); ok {
		c.rateLimit.Store(&info)
	}
}

func (c *Client) invalid(err error) *APIError {
	return &APIError{Code: CodeInvalidRequest, Message: c.loc.text(msgUnexpected), cause: err}
}

// Get sends a GET and decodes the body into out.
func (c *Client) Get(ctx context.Context, path string, params map[string]any, out any) error {
	return c.call(ctx, Request{Method: http.MethodGet, Path: path, Params: params}, out)
}

// Post sends a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put sends a PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Patch sends a PATCH with a JSON body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete sends a DELETE and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) call(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return &APIError{Status: resp.Status, Code: CodeInvalidRequest, Message: c.loc.text(msgUnexpected), cause: err}
	}
	return nil
}

// ClearCache removes cached GETs whose key contains pattern, or all of them
// when pattern is empty.
func (c *Client) ClearCache(ctx context.Context, pattern string) (int, error) {
	return c.cache.Clear(ctx, pattern)
}

// CacheStats reports GET cache hits and misses.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// InFlight returns the number of requests currently on the network. Cache
// hits never count.
func (c *Client) InFlight() int64 {
	return c.inflight.Load()
}

// RateLimit returns the most recent rate limit headers seen.
func (c *Client) RateLimit() (RateLimitInfo, bool) {
	info := c.rateLimit.Load()
	if info == nil {
		return RateLimitInfo{}, false
	}
	return *info, true
}

// OpenCircuits lists the endpoint groups currently refusing requests.
func (c *Client) OpenCircuits() []string {
	return c.circuits.OpenCircuits()
}

// CircuitStatus reports the breaker for an endpoint group.
func (c *Client) CircuitStatus(group string) (resilience.CircuitBreakerMetrics, bool) {
	return c.circuits.Status(group)
}

// Reset returns the client to a signed-out state: the cache is emptied,
// breakers close, pending idempotency keys and the remembered CSRF token
// are dropped, and the next 401 redirects again.
func (c *Client) Reset(ctx context.Context) error {
	c.circuits.Reset()
	c.idem.reset()
	c.redirected.Store(false)
	c.rateLimit.Store(nil)
	c.csrf.forget()
	if _, err := c.cache.Clear(ctx, ""); err != nil {
		return fmt.Errorf("client: reset cache: %w", err)
	}
	return nil
}
