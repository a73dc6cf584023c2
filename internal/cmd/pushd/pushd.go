// Package pushd parses the push backend configuration and runs the
// subscription API and sender.
package pushd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/traf3li/clientops/auth"
	"github.com/traf3li/clientops/config"
	"github.com/traf3li/clientops/health"
	entrypoint "github.com/traf3li/clientops/internal/platform/cmd"
	"github.com/traf3li/clientops/observe"
	"github.com/traf3li/clientops/push"
)

// Config holds pushd configuration.
type Config struct {
	config.Push

	// Ready, when set, receives the bound listen address.
	Ready chan<- net.Addr
}

// ParseConfig loads .env and the environment, then applies flags. Secret
// references are resolved by Run.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg.Push, ".env"); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The SQLite subscription database path")
	fs.StringVar(&cfg.SecretsDir, "secrets-dir", cfg.SecretsDir, "Directory for secretref:file references")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.Float64Var(&cfg.SendRate, "send-rate", cfg.SendRate, "Push deliveries per second")
	fs.IntVar(&cfg.SendConcurrency, "send-concurrency", cfg.SendConcurrency, "Push deliveries in flight")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves the push API until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.ResolveSecrets(ctx); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return entrypoint.RunWithTelemetry(ctx, cfg.ObserveConfig(entrypoint.ServicePushd),
		func(ctx context.Context, tel entrypoint.Telemetry) error {
			app, err := newApp(cfg, tel)
			if err != nil {
				return err
			}
			defer app.Close()
			return entrypoint.ListenAndServe(ctx, cfg.Addr, app.handler, tel.Logger, cfg.Ready)
		})
}

// app is the wired push backend.
type app struct {
	handler http.Handler
	closers []io.Closer
}

// vapidPublicKey derives the public key from the private one and checks
// it against an explicitly configured key.
func vapidPublicKey(cfg Config) (string, error) {
	derived, err := push.PublicKeyFor(cfg.VAPIDPrivateKey)
	if err != nil {
		return "", err
	}
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPublicKey != derived {
		return "", fmt.Errorf("%w: VITE_VAPID_PUBLIC_KEY does not match VAPID_PRIVATE_KEY", config.ErrInvalidValue)
	}
	return derived, nil
}

func newApp(cfg Config, tel entrypoint.Telemetry) (*app, error) {
	pub, err := vapidPublicKey(cfg)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
	})
	if err != nil {
		return nil, err
	}

	a := &app{}
	store, err := push.OpenSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	agg := health.NewAggregator()
	agg.Register(health.NewSQLChecker("store", store.DB()))
	if cfg.RedisURL != "" {
		checker, rdb, err := entrypoint.RedisChecker(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb)
		agg.Register(checker)
	}

	sender, err := push.NewSender(push.SenderConfig{
		Store:           store,
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
		Rate:            cfg.SendRate,
		Concurrency:     cfg.SendConcurrency,
		Observer:        tel.Middleware,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	srv, err := push.NewServer(push.ServerConfig{
		Store:          store,
		Authenticator:  auth.NewJWTAuthenticator(auth.JWTConfig{}, issuer),
		Sender:         sender,
		VAPIDPublicKey: pub,
		Observer:       tel.Middleware,
		RequireCSRF:    true,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	entrypoint.Mount(mux, agg, tel.Observer)
	mux.Handle("/", srv)
	a.handler = mux

	tel.Logger.Info(context.Background(), "push backend configured",
		observe.F("db", cfg.DBPath), observe.F("vapid_public_key", pub))
	return a, nil
}

// Close releases the store and Redis handles.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}
