package auth_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/traf3li/clientops/auth"
)

func ExampleRequirePermission() {
	h := auth.RequirePermission("reports:read")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	r = r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{Principal: "u1"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	fmt.Println(rec.Code)
	// Output: 403
}

func ExampleTokenIssuer() {
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	pair, _ := issuer.Issue(auth.Subject{ID: "user-1"})
	claims, _ := issuer.ParseAccess(pair.AccessToken)
	fmt.Println(claims.UserID, claims.Type)
	// Output: user-1 access
}
