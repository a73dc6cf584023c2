// Package cmd holds the startup plumbing shared by the service commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traf3li/clientops/config"
	"github.com/traf3li/clientops/health"
	"github.com/traf3li/clientops/observe"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Service identifiers used as telemetry service names.
const (
	ServiceOfflined = "offlined"
	ServicePushd    = "pushd"
)

// ParseConfig loads dotenv files that exist and then the environment into
// cfg.
func ParseConfig[T any](cfg *T, dotenv ...string) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.Load(cfg, dotenv...)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// Telemetry is what a run loop gets from RunWithTelemetry.
type Telemetry struct {
	Observer   observe.Observer
	Middleware *observe.Middleware
	Logger     observe.Logger
}

// RunWithTelemetry sets up the observer, runs run and shuts telemetry down
// when run returns.
func RunWithTelemetry(ctx context.Context, cfg observe.Config, run func(context.Context, Telemetry) error) error {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}

	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Printf("%s telemetry shutdown: %v", cfg.ServiceName, err)
		}
	}()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return err
	}
	return run(ctx, Telemetry{Observer: obs, Middleware: mw, Logger: obs.Logger()})
}

// ListenAndServe serves h on addr until ctx ends, then shuts the server
// down gracefully. If ready is non-nil it receives the bound address.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger observe.Logger, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.Info(ctx, "listening", observe.F("addr", ln.Addr().String()))
	if ready != nil {
		ready <- ln.Addr()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RedisChecker connects to the Redis server at url and returns a health
// checker for it. The caller closes the returned client.
func RedisChecker(url string) (health.Checker, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	checker := health.NewPingChecker("redis", health.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}), 250*time.Millisecond)
	return checker, rdb, nil
}

// Mount adds the health, readiness and metrics endpoints to mux.
func Mount(mux *http.ServeMux, agg *health.Aggregator, obs observe.Observer) {
	health.RegisterHandlers(mux, agg)
	if obs != nil {
		mux.Handle("GET /metrics", obs.MetricsHandler())
	}
}
