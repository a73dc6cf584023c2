package observe

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Middleware instruments HTTP traffic with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: the returned transports and handlers are safe for concurrent use.
//   - Errors: transport errors are recorded and returned unchanged.
//   - Ownership: requests and responses pass through unmodified.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NoopTracer()
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger, now: time.Now}
}

// MiddlewareFromObserver builds a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Metrics returns the instruments used by the middleware.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Transport wraps base so that every attempt gets a client span, a metrics
// sample, and a log entry. A nil base means http.DefaultTransport.
func (m *Middleware) Transport(component string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		meta := RequestMeta{Component: component, Method: req.Method, Route: req.URL.Path}

		ctx, span := m.tracer.StartSpan(req.Context(), meta, trace.SpanKindClient)
		start := m.now()
		resp, err := base.RoundTrip(req.WithContext(ctx))
		elapsed := m.now().Sub(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		m.tracer.EndSpan(span, status, err)
		m.metrics.RecordRequest(ctx, meta, status, elapsed, err)

		log := m.logger.WithRequest(meta)
		fields := []Field{F("status", status), F("duration_ms", elapsed.Milliseconds())}
		switch {
		case err != nil:
			log.Warn(ctx, "request failed", append(fields, F("error", err.Error()))...)
		case status >= http.StatusInternalServerError:
			log.Warn(ctx, "request failed", fields...)
		default:
			log.Debug(ctx, "request completed", fields...)
		}

		return resp, err
	})
}

// Handler wraps next so that every incoming request gets a server span, a
// metrics sample, and a log entry.
func (m *Middleware) Handler(component string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := RequestMeta{Component: component, Method: r.Method, Route: r.URL.Path}

		ctx, span := m.tracer.StartSpan(r.Context(), meta, trace.SpanKindServer)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := m.now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := m.now().Sub(start)

		m.tracer.EndSpan(span, rec.status, nil)
		m.metrics.RecordRequest(ctx, meta, rec.status, elapsed, nil)

		log := m.logger.WithRequest(meta)
		fields := []Field{F("status", rec.status), F("duration_ms", elapsed.Milliseconds())}
		if rec.status >= http.StatusInternalServerError {
			log.Error(ctx, "request served", fields...)
		} else {
			log.Info(ctx, "request served", fields...)
		}
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
