package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/traf3li/clientops/auth"
	"github.com/traf3li/clientops/client"
)

// signedInClient returns an API client whose cookie jar holds the user's
// session cookie for the API server.
func signedInClient(t *testing.T, apiURL, token string) *client.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(apiURL)
	jar.SetCookies(u, []*http.Cookie{{Name: auth.AccessCookieName, Value: token, Path: "/"}})

	c, err := client.New(client.Config{
		BaseURL:    apiURL + "/api",
		HTTPClient: &http.Client{Jar: jar},
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

func TestAPIBackend_EndToEnd(t *testing.T) {
	f := newServerFixture(t, true)
	api := httptest.NewServer(f.server)
	t.Cleanup(api.Close)

	ctx := context.Background()
	backend := &APIBackend{Client: signedInClient(t, api.URL, f.user)}

	key, err := backend.PublicKey(ctx)
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	if key != f.pub {
		t.Fatalf("PublicKey() = %q, want server key", key)
	}

	status, err := backend.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Subscribed {
		t.Fatal("subscribed before Subscribe")
	}

	device := &LocalPushManager{ServiceURL: f.push.server.URL + "/push"}
	m := NewManager(ManagerConfig{
		Registrar:      &fakeRegistrar{},
		PushManager:    device,
		Notifications:  &StaticNotifications{Answer: PermissionGranted},
		Backend:        backend,
		VAPIDPublicKey: key,
	})
	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// The status GET was cached before Subscribe; saving must drop it.
	status, err = backend.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Subscribed || status.Subscription.Endpoint != sub.Endpoint {
		t.Fatalf("Status() = %+v", status)
	}

	if err := backend.SetPreferences(ctx, Preferences{"invoice": false}); err != nil {
		t.Fatalf("SetPreferences() error = %v", err)
	}

	admin := signedInClient(t, api.URL, f.admin)
	var sent struct {
		Data Report `json:"data"`
	}
	err = admin.Post(ctx, "/notifications/push", sendRequest{
		UserID:  "u1",
		Payload: Payload{Title: "تذكير", Body: "موعد الجلسة غداً", URL: "/cases/42", Tag: "hearing"},
	}, &sent)
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if sent.Data.Sent != 1 {
		t.Fatalf("report = %+v", sent.Data)
	}

	deliveries := f.push.Deliveries()
	plain, err := device.Decrypt(deliveries[len(deliveries)-1].body)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	var got Payload
	if err := json.Unmarshal(plain, &got); err != nil || got.URL != "/cases/42" {
		t.Errorf("delivered payload = %s (%v)", plain, err)
	}

	if ok, err := m.Unsubscribe(ctx); !ok || err != nil {
		t.Fatalf("Unsubscribe() = %v, %v", ok, err)
	}
	status, err = backend.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Subscribed {
		t.Error("still subscribed after Unsubscribe")
	}
}

func TestAPIBackend_Unauthenticated(t *testing.T) {
	f := newServerFixture(t, false)
	api := httptest.NewServer(f.server)
	t.Cleanup(api.Close)

	c, err := client.New(client.Config{BaseURL: api.URL + "/api"})
	if err != nil {
		t.Fatal(err)
	}
	backend := &APIBackend{Client: c}

	err = backend.Save(context.Background(), testSubscription("https://push.example.net/a"))
	apiErr, ok := client.AsAPIError(err)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestAPIBackend_CSRF(t *testing.T) {
	f := newServerFixture(t, false, func(cfg *ServerConfig) { cfg.RequireCSRF = true })
	api := httptest.NewServer(f.server)
	t.Cleanup(api.Close)

	ctx := context.Background()
	backend := &APIBackend{Client: signedInClient(t, api.URL, f.user)}
	sub := testSubscription("https://push.example.net/csrf")

	err := backend.Save(ctx, sub)
	apiErr, ok := client.AsAPIError(err)
	if !ok || apiErr.Status != http.StatusForbidden || apiErr.Code != client.Code(auth.CodeCSRFInvalid) {
		t.Fatalf("Save() before any read error = %v", err)
	}

	// The first read hands out the token cookie.
	if _, err := backend.PublicKey(ctx); err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	if err := backend.Save(ctx, sub); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	recs, err := f.store.ForUser(ctx, "u1")
	if err != nil || len(recs) != 1 || recs[0].Subscription.Endpoint != sub.Endpoint {
		t.Fatalf("ForUser() = %+v, %v", recs, err)
	}
}
