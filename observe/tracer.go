package observe

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// RequestMeta identifies an HTTP exchange for telemetry purposes.
type RequestMeta struct {
	Component string // api-client, offlined, pushd
	Method    string // HTTP method
	Route     string // URL path or route template
}

// SpanName returns the deterministic span name for this request.
// Format: http.<component>.<METHOD>
func (m RequestMeta) SpanName() string {
	return "http." + m.Component + "." + strings.ToUpper(m.Method)
}

// Validate checks that the metadata can label telemetry.
func (m RequestMeta) Validate() error {
	if m.Component == "" {
		return ErrMissingComponent
	}
	return nil
}

func (m RequestMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("component", m.Component),
		attribute.String("http.request.method", strings.ToUpper(m.Method)),
	}
	if m.Route != "" {
		attrs = append(attrs, attribute.String("http.route", m.Route))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing for HTTP exchanges.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span of the given kind for one exchange.
	StartSpan(ctx context.Context, meta RequestMeta, kind trace.SpanKind) (context.Context, trace.Span)

	// EndSpan records the status code and error, then ends the span.
	// Status 0 means no response was received.
	EndSpan(span trace.Span, status int, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta RequestMeta, kind trace.SpanKind) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(kind),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	switch {
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NoopTracer returns a tracer whose spans record nothing.
func NoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta RequestMeta, _ trace.SpanKind) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ int, _ error) {
	span.End()
}
