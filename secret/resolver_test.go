package secret

import (
	"context"
	"errors"
	"testing"
)

type mapProvider struct {
	name   string
	values map[string]string
}

func (p *mapProvider) Name() string { return p.name }

func (p *mapProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.values[ref]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func TestParseSecretRef(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		ref      string
		ok       bool
	}{
		{"secretref:file:jwt.key", "file", "jwt.key", true},
		{"secretref:env:A:B", "env", "A:B", true},
		{"secretref:file:", "", "", false},
		{"secretref::x", "", "", false},
		{"plain", "", "", false},
	}
	for _, tt := range tests {
		p, r, ok := ParseSecretRef(tt.in)
		if p != tt.provider || r != tt.ref || ok != tt.ok {
			t.Errorf("ParseSecretRef(%q) = %q, %q, %v", tt.in, p, r, ok)
		}
	}
}

func TestResolver_ResolveValue(t *testing.T) {
	t.Setenv("KEY_NAME", "access")
	r := NewResolver(true, &mapProvider{name: "stub", values: map[string]string{
		"access":  "A",
		"refresh": "R",
		"blank":   "",
	}})

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"full", "secretref:stub:access", "A", nil},
		{"env then ref", "secretref:stub:${KEY_NAME}", "A", nil},
		{"inline", "Bearer secretref:stub:access and secretref:stub:refresh", "Bearer A and R", nil},
		{"literal", "just-a-value", "just-a-value", nil},
		{"unknown provider", "secretref:vault:x", "", ErrUnknownProvider},
		{"missing", "secretref:stub:nope", "", ErrNotFound},
		{"strict empty", "secretref:stub:blank", "", ErrEmptyValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveValue(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_ResolveFields(t *testing.T) {
	r := NewResolver(true, &mapProvider{name: "stub", values: map[string]string{"k": "v"}})

	a, b := "secretref:stub:k", ""
	if err := r.ResolveFields(context.Background(), map[string]*string{"a": &a, "b": &b, "c": nil}); err != nil {
		t.Fatal(err)
	}
	if a != "v" || b != "" {
		t.Errorf("a = %q, b = %q", a, b)
	}

	bad := "secretref:stub:missing"
	err := r.ResolveFields(context.Background(), map[string]*string{"VAPID_PRIVATE_KEY": &bad})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v", err)
	}
}
