package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTAuthenticator_Sources(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	pair, _ := issuer.Issue(testSubject)
	a := NewJWTAuthenticator(JWTConfig{}, issuer)

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantMethod AuthMethod
		wantOK     bool
	}{
		{
			name:       "cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: pair.AccessToken}) },
			wantMethod: AuthMethodCookie,
			wantOK:     true,
		},
		{
			name:       "bearer",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+pair.AccessToken) },
			wantMethod: AuthMethodBearer,
			wantOK:     true,
		},
		{
			name: "cookie wins over header",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: pair.AccessToken})
				r.Header.Set("Authorization", "Bearer junk")
			},
			wantMethod: AuthMethodCookie,
			wantOK:     true,
		},
		{
			name:       "refresh cookie is not an access token",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: pair.RefreshToken}) },
			wantMethod: AuthMethodCookie,
		},
		{
			name:       "basic auth header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9vOmJhcg==") },
			wantMethod: AuthMethodNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
			tt.setup(r)
			req := NewAuthRequest(r)

			if got := a.Supports(context.Background(), req); got != (tt.wantMethod != AuthMethodNone) {
				t.Errorf("Supports() = %v", got)
			}
			result, err := a.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if result.Authenticated != tt.wantOK {
				t.Fatalf("Authenticated = %v, want %v (err %v)", result.Authenticated, tt.wantOK, result.Error)
			}
			if result.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", result.Method, tt.wantMethod)
			}
		})
	}
}

func TestJWTAuthenticator_Identity(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	pair, _ := issuer.Issue(testSubject)
	a := NewJWTAuthenticator(JWTConfig{}, issuer)

	result, err := a.Authenticate(context.Background(), &AuthRequest{
		Cookies: map[string]string{AccessCookieName: pair.AccessToken},
	})
	if err != nil || !result.Authenticated {
		t.Fatalf("Authenticate() = %+v, %v", result, err)
	}

	id := result.Identity
	if id.Principal != "user-1" || id.TenantID != "firm-9" || id.Email != "lawyer@example.com" {
		t.Errorf("identity = %+v", id)
	}
	if !id.HasRole("lawyer") {
		t.Error("HasRole(lawyer) = false")
	}
	if !id.HasPermission("cases:read") || id.HasPermission("billing:write") {
		t.Errorf("Permissions = %v", id.Permissions)
	}
	if !id.ExpiresAt.Equal(testStart.Add(15 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", id.ExpiresAt)
	}
	if id.IsExpired(testStart) || !id.IsExpired(testStart.Add(15*time.Minute)) {
		t.Error("IsExpired boundary wrong")
	}
}

func TestJWTAuthenticator_Missing(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	a := NewJWTAuthenticator(JWTConfig{}, issuer)

	result, err := a.Authenticate(context.Background(), &AuthRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Authenticated || !errors.Is(result.Error, ErrMissingCredentials) {
		t.Errorf("result = %+v", result)
	}
}

func TestIdentity_Wildcard(t *testing.T) {
	id := &Identity{Permissions: []string{"*"}}
	if !id.HasPermission("anything") {
		t.Error("wildcard permission not honored")
	}
	var nilID *Identity
	if nilID.HasPermission("x") || nilID.HasRole("x") {
		t.Error("nil identity should hold nothing")
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil || PrincipalFromContext(ctx) != "" || TenantIDFromContext(ctx) != "" {
		t.Fatal("empty context returned an identity")
	}

	ctx = WithIdentity(ctx, &Identity{Principal: "u", TenantID: "f"})
	if PrincipalFromContext(ctx) != "u" || TenantIDFromContext(ctx) != "f" {
		t.Error("identity not stored")
	}
}
