package observe

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records HTTP and cache instruments.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records one attempt. Status 0 means no response.
	RecordRequest(ctx context.Context, meta RequestMeta, status int, duration time.Duration, err error)

	// RecordRetry records that a retry is about to be sent.
	RecordRetry(ctx context.Context, meta RequestMeta, attempt int)

	// RecordCacheLookup records a GET cache hit or miss.
	RecordCacheLookup(ctx context.Context, meta RequestMeta, hit bool)
}

type metricsImpl struct {
	requests    metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
	retries     metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.requests, err = meter.Int64Counter("http.client.requests",
		metric.WithDescription("HTTP attempts"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("http.client.errors",
		metric.WithDescription("HTTP attempts without a response or with a 5xx status"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("http.client.duration_ms",
		metric.WithDescription("HTTP attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.retries, err = meter.Int64Counter("http.client.retries",
		metric.WithDescription("Retries sent after transient failures"),
		metric.WithUnit("{retry}"),
	); err != nil {
		return nil, err
	}
	if m.cacheHits, err = meter.Int64Counter("cache.hits",
		metric.WithDescription("GET responses served from cache"),
	); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = meter.Int64Counter("cache.misses",
		metric.WithDescription("GET requests that reached the network"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordRequest(ctx context.Context, meta RequestMeta, status int, duration time.Duration, err error) {
	attrs := meta.attributes()
	if status > 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", status))
	}
	opt := metric.WithAttributes(attrs...)

	m.requests.Add(ctx, 1, opt)
	if err != nil || status == 0 || status >= http.StatusInternalServerError {
		m.errors.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta RequestMeta, attempt int) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		append(meta.attributes(), attribute.Int("retry.attempt", attempt))...,
	))
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, meta RequestMeta, hit bool) {
	opt := metric.WithAttributes(meta.attributes()...)
	if hit {
		m.cacheHits.Add(ctx, 1, opt)
		return
	}
	m.cacheMisses.Add(ctx, 1, opt)
}

type noopMetrics struct{}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordRequest(context.Context, RequestMeta, int, time.Duration, error) {}
func (noopMetrics) RecordRetry(context.Context, RequestMeta, int)                         {}
func (noopMetrics) RecordCacheLookup(context.Context, RequestMeta, bool)                  {}
