package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracer(tp.Tracer("test")), rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRequestMeta_SpanName(t *testing.T) {
	meta := RequestMeta{Component: "api-client", Method: "get", Route: "/api/cases"}
	if got := meta.SpanName(); got != "http.api-client.GET" {
		t.Errorf("SpanName() = %q", got)
	}
	if err := (RequestMeta{}).Validate(); !errors.Is(err, ErrMissingComponent) {
		t.Errorf("Validate() = %v, want ErrMissingComponent", err)
	}
}

func TestTracer_EndSpanStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		err      error
		wantCode codes.Code
	}{
		{name: "ok", status: 200, wantCode: codes.Ok},
		{name: "client error is not a span error", status: 404, wantCode: codes.Ok},
		{name: "server error", status: 503, wantCode: codes.Error},
		{name: "transport error", status: 0, err: errors.New("dial tcp: refused"), wantCode: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, rec := newRecordingTracer()
			meta := RequestMeta{Component: "api-client", Method: "GET", Route: "/api/cases"}

			_, span := tracer.StartSpan(context.Background(), meta, trace.SpanKindClient)
			tracer.EndSpan(span, tt.status, tt.err)

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("ended spans = %d, want 1", len(spans))
			}
			s := spans[0]
			if s.Name() != "http.api-client.GET" || s.SpanKind() != trace.SpanKindClient {
				t.Errorf("span = %s/%v", s.Name(), s.SpanKind())
			}
			if s.Status().Code != tt.wantCode {
				t.Errorf("status = %v, want %v", s.Status().Code, tt.wantCode)
			}
			if v, ok := attr(s.Attributes(), "http.route"); !ok || v.AsString() != "/api/cases" {
				t.Errorf("http.route = %v", v)
			}
			v, ok := attr(s.Attributes(), "http.response.status_code")
			if tt.status > 0 && (!ok || v.AsInt64() != int64(tt.status)) {
				t.Errorf("status attribute = %v, want %d", v, tt.status)
			}
			if tt.status == 0 && ok {
				t.Error("no status attribute expected without a response")
			}
		})
	}
}

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	_, span := tracer.StartSpan(context.Background(), RequestMeta{Component: "x"}, trace.SpanKindClient)
	tracer.EndSpan(span, 500, errors.New("boom"))
}
