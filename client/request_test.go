package client

import (
	"net/http"
	"net/url"
	"testing"
)

func TestEndpointGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/api/cases/123", want: "/cases"},
		{path: "/api/v1/invoices/9/pay", want: "/invoices"},
		{path: "/v2/reports", want: "/reports"},
		{path: "/clients", want: "/clients"},
		{path: "/api", want: "/api"},
		{path: "/", want: "/"},
		{path: "/api/vat/returns", want: "/vat"},
	}

	for _, tt := range tests {
		if got := EndpointGroup(tt.path); got != tt.want {
			t.Errorf("EndpointGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestResolveTarget(t *testing.T) {
	base, _ := url.Parse("https://api.traf3li.com/api/")

	got, err := resolveTarget(base, "/cases?status=open", map[string]any{
		"page": 2,
		"tags": []string{"a", "b"},
		"skip": nil,
	})
	if err != nil {
		t.Fatalf("resolveTarget() error = %v", err)
	}
	if got.endpoint != "https://api.traf3li.com/api/cases" {
		t.Errorf("endpoint = %q", got.endpoint)
	}
	if got.path != "/api/cases" {
		t.Errorf("path = %q", got.path)
	}
	if want := "page=2&status=open&tags=a&tags=b"; got.query != want {
		t.Errorf("query = %q, want %q", got.query, want)
	}

	if _, err := resolveTarget(base, "http://other.example/x", nil); err == nil {
		t.Error("resolveTarget() accepted an absolute URL")
	}
}

func TestNeedsIdempotencyKey(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{method: http.MethodPost, path: "/api/invoices", want: true},
		{method: http.MethodPatch, path: "/api/payments/1", want: true},
		{method: http.MethodDelete, path: "/api/journal-entries/5", want: true},
		{method: http.MethodGet, path: "/api/invoices", want: false},
		{method: http.MethodPost, path: "/api/cases", want: false},
	}

	for _, tt := range tests {
		if got := needsIdempotencyKey(tt.method, tt.path); got != tt.want {
			t.Errorf("needsIdempotencyKey(%s, %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestIdempotencyKeys(t *testing.T) {
	n := 0
	k := newIdempotencyKeys(func() string {
		n++
		return string(rune('a' + n - 1))
	})

	first := k.get(http.MethodPost, "/api/invoices", []byte(`{"amount":1}`))
	again := k.get(http.MethodPost, "/api/invoices", []byte(`{"amount":1}`))
	other := k.get(http.MethodPost, "/api/invoices", []byte(`{"amount":2}`))
	if first != "a" || again != "a" || other != "b" {
		t.Errorf("keys = %q %q %q, want a a b", first, again, other)
	}

	k.release(http.MethodPost, "/api/invoices", []byte(`{"amount":1}`))
	if got := k.get(http.MethodPost, "/api/invoices", []byte(`{"amount":1}`)); got != "c" {
		t.Errorf("key after release = %q, want c", got)
	}

	k.reset()
	if got := k.get(http.MethodPost, "/api/invoices", []byte(`{"amount":2}`)); got != "d" {
		t.Errorf("key after reset = %q, want d", got)
	}
}
