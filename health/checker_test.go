package health

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatus_Worse(t *testing.T) {
	if got := StatusHealthy.Worse(StatusDegraded); got != StatusDegraded {
		t.Errorf("Worse = %v", got)
	}
	if got := StatusUnhealthy.Worse(StatusHealthy); got != StatusUnhealthy {
		t.Errorf("Worse = %v", got)
	}
}

// steppingClock advances by step on every call.
type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func TestPingChecker(t *testing.T) {
	pingErr := errors.New("connection refused")

	tests := []struct {
		name    string
		err     error
		latency time.Duration
		want    Status
	}{
		{"fast", nil, 10 * time.Millisecond, StatusHealthy},
		{"slow", nil, 200 * time.Millisecond, StatusDegraded},
		{"down", pingErr, time.Millisecond, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPingChecker("redis", PingFunc(func(context.Context) error { return tt.err }), 100*time.Millisecond)
			c.now = (&steppingClock{t: time.Unix(0, 0), step: tt.latency}).Now

			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v", r.Status, tt.want)
			}
			if tt.err != nil && !errors.Is(r.Error, tt.err) {
				t.Errorf("Error = %v, want %v", r.Error, tt.err)
			}
		})
	}
}

func TestSQLChecker(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}

	c := NewSQLChecker("subscriptions", db)
	if r := c.Check(context.Background()); r.Status == StatusUnhealthy {
		t.Fatalf("open db reported unhealthy: %v", r.Error)
	}

	_ = db.Close()
	if r := c.Check(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("closed db Status = %v, want unhealthy", r.Status)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Status
	}{
		{"ok", http.StatusOK, StatusHealthy},
		{"unauthorized still reachable", http.StatusUnauthorized, StatusHealthy},
		{"server error", http.StatusBadGateway, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			r := NewOriginChecker("api", srv.Client(), srv.URL).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v (%v)", r.Status, tt.want, r.Error)
			}
			if tt.want == StatusUnhealthy && !errors.Is(r.Error, ErrOriginStatus) {
				t.Errorf("Error = %v, want ErrOriginStatus", r.Error)
			}
		})
	}
}

func TestOriginChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewOriginChecker("api", nil, url).Check(context.Background())
	if r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
}
