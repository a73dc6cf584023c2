// Package offlined parses the offline proxy configuration and runs the
// caching proxy in front of the web origin.
package offlined

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/traf3li/clientops/config"
	"github.com/traf3li/clientops/health"
	entrypoint "github.com/traf3li/clientops/internal/platform/cmd"
	"github.com/traf3li/clientops/observe"
	"github.com/traf3li/clientops/worker"
)

// MessagePath receives control messages such as {"type":"SKIP_WAITING"}.
const MessagePath = "/__sw/message"

// Config holds offlined configuration.
type Config struct {
	config.Offline

	// Ready, when set, receives the bound listen address.
	Ready chan<- net.Addr
}

// ParseConfig loads .env and the environment, then applies flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg.Offline, ".env"); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The listen address")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "The web origin to cache")
	fs.StringVar(&cfg.CacheDB, "cache-db", cfg.CacheDB, "SQLite file for the offline cache (empty keeps it in memory)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves the proxy until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, cfg.ObserveConfig(entrypoint.ServiceOfflined),
		func(ctx context.Context, tel entrypoint.Telemetry) error {
			app, err := newApp(cfg, tel)
			if err != nil {
				return err
			}
			defer app.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := app.worker.Run(gctx); err != nil && !errors.Is(err, worker.ErrWorkerStopped) {
					return fmt.Errorf("offline worker: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				return entrypoint.ListenAndServe(gctx, cfg.Addr, app.handler, tel.Logger, cfg.Ready)
			})
			err = g.Wait()
			// The server has drained; storage closes after the last revalidation.
			app.worker.Stop()
			return err
		})
}

// app is the wired proxy.
type app struct {
	worker  *worker.Worker
	handler http.Handler
	closers []io.Closer
}

func newApp(cfg Config, tel entrypoint.Telemetry) (*app, error) {
	a := &app{}
	agg := health.NewAggregator()

	var storage worker.Storage = worker.NewMemoryStorage()
	if cfg.CacheDB != "" {
		db, err := worker.OpenSQLiteStorage(cfg.CacheDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		agg.Register(health.NewSQLChecker("cache", db.DB()))
		storage = db
	}

	w, err := worker.New(worker.Config{
		Origin:   cfg.Origin,
		Storage:  storage,
		Observer: tel.Middleware,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.worker = w

	agg.Register(health.NewOriginChecker("origin", &http.Client{Timeout: 5 * time.Second}, cfg.Origin))
	agg.Register(health.NewCheckerFunc("worker", func(context.Context) health.Result {
		if s := w.State(); s != worker.StateActive {
			return health.Degraded("offline worker " + s.String())
		}
		return health.Healthy("offline worker active")
	}))
	if cfg.RedisURL != "" {
		checker, rdb, err := entrypoint.RedisChecker(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb)
		agg.Register(checker)
	}

	mux := http.NewServeMux()
	entrypoint.Mount(mux, agg, tel.Observer)
	mux.Handle("POST "+MessagePath, worker.MessageHandler(w))
	mux.Handle("/", tel.Middleware.Handler(entrypoint.ServiceOfflined, w))
	a.handler = mux

	tel.Logger.Info(context.Background(), "offline proxy configured",
		observe.F("origin", cfg.Origin), observe.F("cache", w.CacheName()))
	return a, nil
}

// Close releases the storage and Redis handles.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}
