package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
)

type delivery struct {
	path   string
	header http.Header
	body   []byte
}

// pushService accepts messages under /push/ and reports /gone/ endpoints as
// expired.
type pushService struct {
	server *httptest.Server

	mu         sync.Mutex
	deliveries []delivery
}

func newPushService(t *testing.T) *pushService {
	t.Helper()
	ps := &pushService{}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ps.mu.Lock()
		ps.deliveries = append(ps.deliveries, delivery{path: r.URL.Path, header: r.Header.Clone(), body: body})
		ps.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/gone/"):
			w.WriteHeader(http.StatusGone)
		case strings.HasPrefix(r.URL.Path, "/broken/"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *pushService) Deliveries() []delivery {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]delivery(nil), ps.deliveries...)
}

// device subscribes a fresh browser at prefix on the push service.
func (ps *pushService) device(t *testing.T, prefix, vapidPub string) (*LocalPushManager, Subscription) {
	t.Helper()
	pm := &LocalPushManager{ServiceURL: ps.server.URL + prefix}
	key, err := DecodeVAPIDKey(vapidPub)
	if err != nil {
		t.Fatalf("DecodeVAPIDKey() error = %v", err)
	}
	sub, err := pm.Subscribe(context.Background(), key)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return pm, *sub
}

func newTestSender(t *testing.T, store Store, priv, pub string) *Sender {
	t.Helper()
	s, err := NewSender(SenderConfig{
		Store:           store,
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subject:         "mailto:support@traf3li.com",
	})
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	return s
}

func TestNewSender_Validation(t *testing.T) {
	priv, pub := newVAPIDKeys(t)
	tests := []struct {
		name string
		cfg  SenderConfig
	}{
		{name: "no store", cfg: SenderConfig{VAPIDPublicKey: pub, VAPIDPrivateKey: priv}},
		{name: "no private key", cfg: SenderConfig{Store: NewMemoryStore(), VAPIDPublicKey: pub}},
		{name: "bad public key", cfg: SenderConfig{Store: NewMemoryStore(), VAPIDPublicKey: "x", VAPIDPrivateKey: priv}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSender(tt.cfg); err == nil {
				t.Error("NewSender() succeeded")
			}
		})
	}
}

func TestSender_SendEncryptsForDevice(t *testing.T) {
	ps := newPushService(t)
	priv, pub := newVAPIDKeys(t)
	pm, sub := ps.device(t, "/push", pub)
	s := newTestSender(t, NewMemoryStore(), priv, pub)

	msg := Message{Payload: Payload{Title: "جلسة", Body: "غداً الساعة 9", URL: "/cases/7"}, Topic: "hearing", Urgency: webpush.UrgencyHigh}
	if err := s.Send(context.Background(), sub, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := ps.Deliveries()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	h := got[0].header
	if h.Get("Content-Encoding") != "aes128gcm" || h.Get("TTL") != "86400" {
		t.Errorf("encoding=%q ttl=%q", h.Get("Content-Encoding"), h.Get("TTL"))
	}
	if h.Get("Urgency") != "high" || h.Get("Topic") != "hearing" {
		t.Errorf("urgency=%q topic=%q", h.Get("Urgency"), h.Get("Topic"))
	}
	if auth := h.Get("Authorization"); !strings.HasPrefix(auth, "vapid t=") || !strings.HasSuffix(auth, "k="+pub) {
		t.Errorf("Authorization = %q", auth)
	}

	plain, err := pm.Decrypt(got[0].body)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	var payload Payload
	if err := json.Unmarshal(plain, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload.Title != "جلسة" || payload.URL != "/cases/7" {
		t.Errorf("payload = %+v", payload)
	}

	d := &fakeDisplay{}
	n, err := HandlePush(context.Background(), d, plain)
	if err != nil {
		t.Fatalf("HandlePush() error = %v", err)
	}
	if n.Body != "غداً الساعة 9" || n.URL() != "/cases/7" {
		t.Errorf("notification = %+v", n)
	}
}

func TestSender_SendToUserPrunesGone(t *testing.T) {
	ps := newPushService(t)
	priv, pub := newVAPIDKeys(t)
	store := NewMemoryStore()
	ctx := context.Background()

	for _, prefix := range []string{"/push", "/push", "/gone", "/broken"} {
		_, sub := ps.device(t, prefix, pub)
		if _, err := store.Save(ctx, Record{UserID: "u1", Subscription: sub}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	_, other := ps.device(t, "/push", pub)
	if _, err := store.Save(ctx, Record{UserID: "u2", Subscription: other}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s := newTestSender(t, store, priv, pub)
	report, err := s.SendToUser(ctx, "u1", Message{Payload: Payload{Body: "hi"}})
	if err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}
	want := Report{Sent: 2, Pruned: 1, Failed: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if n := len(ps.Deliveries()); n != 4 {
		t.Errorf("deliveries = %d, want 4", n)
	}

	recs, _ := store.ForUser(ctx, "u1")
	if len(recs) != 3 {
		t.Errorf("u1 has %d records after pruning, want 3", len(recs))
	}
	for _, r := range recs {
		if strings.Contains(r.Subscription.Endpoint, "/gone/") {
			t.Errorf("gone endpoint kept: %s", r.Subscription.Endpoint)
		}
	}
}

func TestSender_SendToUserHonorsPreferences(t *testing.T) {
	ps := newPushService(t)
	priv, pub := newVAPIDKeys(t)
	store := NewMemoryStore()
	ctx := context.Background()

	_, sub := ps.device(t, "/push", pub)
	if _, err := store.Save(ctx, Record{UserID: "u1", Subscription: sub}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.SetPreferences(ctx, "u1", Preferences{"invoice": false}); err != nil {
		t.Fatalf("SetPreferences() error = %v", err)
	}

	s := newTestSender(t, store, priv, pub)
	report, err := s.SendToUser(ctx, "u1", Message{Payload: Payload{Tag: "invoice"}})
	if err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}
	if report != (Report{Skipped: 1}) {
		t.Errorf("report = %+v", report)
	}

	report, err = s.SendToUser(ctx, "u1", Message{Payload: Payload{Tag: "hearing"}})
	if err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}
	if report != (Report{Sent: 1}) {
		t.Errorf("report = %+v", report)
	}
	if n := len(ps.Deliveries()); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestSender_SendToUserRequiresUser(t *testing.T) {
	priv, pub := newVAPIDKeys(t)
	s := newTestSender(t, NewMemoryStore(), priv, pub)
	if _, err := s.SendToUser(context.Background(), "", Message{}); err == nil {
		t.Fatal("SendToUser() without user succeeded")
	}
}

func TestDeliveryError_Gone(t *testing.T) {
	for status, want := range map[int]bool{404: true, 410: true, 400: false, 500: false} {
		if got := (&DeliveryError{Status: status}).Gone(); got != want {
			t.Errorf("Gone() for %d = %v, want %v", status, got, want)
		}
	}
}
