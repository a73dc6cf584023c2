package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/traf3li/clientops/observe"
	"github.com/traf3li/clientops/secret"
)

// Built-in fallbacks used when the environment leaves a value unset.
const (
	DefaultAPIURL         = "https://api.traf3li.com/api"
	DefaultVAPIDPublicKey = "BH4cC53v4vaX2zkVaAvyY9zQRoIyixRodOYCIFhV2vlJcpByv3_tJnG4q84WVrwIfXp9mgqNECa_fDotCkUHP6A"
)

// Client holds settings shared by everything that talks to the API.
type Client struct {
	APIURL         string        `env:"VITE_API_URL"`
	VAPIDPublicKey string        `env:"VITE_VAPID_PUBLIC_KEY"`
	Locale         string        `env:"CLIENTOPS_LOCALE" envDefault:"ar"`
	CacheTTL       time.Duration `env:"CLIENTOPS_CACHE_TTL" envDefault:"2m"`
	RedisURL       string        `env:"CLIENTOPS_REDIS_URL"`
}

// BaseURL returns APIURL or the built-in fallback.
func (c Client) BaseURL() string {
	if c.APIURL == "" {
		return DefaultAPIURL
	}
	return c.APIURL
}

// PublicKey returns VAPIDPublicKey or the built-in fallback.
func (c Client) PublicKey() string {
	if c.VAPIDPublicKey == "" {
		return DefaultVAPIDPublicKey
	}
	return c.VAPIDPublicKey
}

// Observe holds telemetry settings.
type Observe struct {
	ServiceName     string  `env:"OTEL_SERVICE_NAME"`
	Version         string  `env:"CLIENTOPS_VERSION" envDefault:"dev"`
	LogLevel        string  `env:"CLIENTOPS_LOG_LEVEL" envDefault:"info"`
	TracingExporter string  `env:"CLIENTOPS_TRACING_EXPORTER" envDefault:"none"`
	TraceSamplePct  float64 `env:"CLIENTOPS_TRACE_SAMPLE_PCT" envDefault:"0.1"`
	MetricsExporter string  `env:"CLIENTOPS_METRICS_EXPORTER" envDefault:"prometheus"`
}

// ObserveConfig converts the settings for observe.NewObserver. service is
// used when OTEL_SERVICE_NAME is unset.
func (o Observe) ObserveConfig(service string) observe.Config {
	if o.ServiceName != "" {
		service = o.ServiceName
	}
	return observe.Config{
		ServiceName: service,
		Version:     o.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.TracingExporter != "none" && o.TracingExporter != "",
			Exporter:  o.TracingExporter,
			SamplePct: o.TraceSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.MetricsExporter != "none" && o.MetricsExporter != "",
			Exporter: o.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   o.LogLevel,
		},
	}
}

// Offline configures the offline caching proxy.
type Offline struct {
	Client
	Observe

	Addr    string `env:"OFFLINED_ADDR" envDefault:":8090"`
	Origin  string `env:"OFFLINED_ORIGIN" envDefault:"http://localhost:5173"`
	CacheDB string `env:"OFFLINED_CACHE_DB"`
}

// Validate checks the offline proxy settings.
func (c *Offline) Validate() error {
	u, err := url.Parse(c.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: OFFLINED_ORIGIN %q", ErrInvalidValue, c.Origin)
	}
	return nil
}

// Push configures the push backend.
type Push struct {
	Client
	Observe

	Addr             string  `env:"PUSHD_ADDR" envDefault:":8091"`
	DBPath           string  `env:"PUSHD_DB" envDefault:"push.db"`
	VAPIDPrivateKey  string  `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject     string  `env:"VAPID_SUBJECT" envDefault:"mailto:support@traf3li.com"`
	JWTAccessSecret  string  `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string  `env:"JWT_REFRESH_SECRET"`
	SecretsDir       string  `env:"CLIENTOPS_SECRETS_DIR"`
	SendRate         float64 `env:"PUSHD_SEND_RATE" envDefault:"50"`
	SendConcurrency  int     `env:"PUSHD_SEND_CONCURRENCY" envDefault:"8"`
}

// ResolveSecrets replaces secret references in the key and JWT fields.
func (c *Push) ResolveSecrets(ctx context.Context) error {
	r := secret.NewResolver(true)
	for _, prov := range []struct {
		name string
		opts map[string]string
	}{
		{"env", nil},
		{"file", map[string]string{"dir": c.SecretsDir}},
	} {
		if prov.name == "file" && c.SecretsDir == "" {
			continue
		}
		p, err := secret.DefaultRegistry.Create(prov.name, prov.opts)
		if err != nil {
			return err
		}
		r.Register(p)
	}

	return r.ResolveFields(ctx, map[string]*string{
		"VAPID_PRIVATE_KEY":  &c.VAPIDPrivateKey,
		"JWT_ACCESS_SECRET":  &c.JWTAccessSecret,
		"JWT_REFRESH_SECRET": &c.JWTRefreshSecret,
	})
}

// Validate checks the push backend settings.
func (c *Push) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"VAPID_PRIVATE_KEY":  c.VAPIDPrivateKey,
		"JWT_ACCESS_SECRET":  c.JWTAccessSecret,
		"JWT_REFRESH_SECRET": c.JWTRefreshSecret,
		"PUSHD_DB":           c.DBPath,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingValue, name))
		}
	}
	if c.SendRate <= 0 || c.SendConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: send rate and concurrency must be positive", ErrInvalidValue))
	}
	return errors.Join(errs...)
}

// Load seeds the environment from dotenv files that exist, then parses
// target. Variables already set in the environment win over the files.
func Load(target any, dotenv ...string) error {
	for _, path := range dotenv {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Parse reads target from an explicit environment instead of the process
// environment.
func Parse(target any, environ map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}
