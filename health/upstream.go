package health

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NewSQLChecker checks a database handle with PingContext.
func NewSQLChecker(name string, db *sql.DB) *PingChecker {
	return NewPingChecker(name, PingFunc(db.PingContext), 250*time.Millisecond)
}

// OriginChecker checks an upstream HTTP origin. Any response below 500
// counts as reachable, so an unauthenticated 401 from the API still passes.
type OriginChecker struct {
	name   string
	client *http.Client
	url    string
}

// NewOriginChecker creates a checker that issues GET url with client.
func NewOriginChecker(name string, client *http.Client, url string) *OriginChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &OriginChecker{name: name, client: client, url: url}
}

// Name returns the checker name.
func (c *OriginChecker) Name() string { return c.name }

// Check requests the origin.
func (c *OriginChecker) Check(ctx context.Context) Result {
	if err := c.Ping(ctx); err != nil {
		return Unhealthy(c.name+" unreachable", err).WithDetails(map[string]any{"url": c.url})
	}
	return Healthy(c.name + " reachable")
}

// Ping issues the check request.
func (c *OriginChecker) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %d", ErrOriginStatus, resp.StatusCode)
	}
	return nil
}
