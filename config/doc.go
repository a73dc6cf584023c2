// Package config loads process configuration from the environment.
//
// Values come from environment variables (parsed with caarlos0/env struct
// tags), optionally seeded from a .env file for local development.
// Secret-bearing fields are then passed through the secret resolver so they
// may be written as secretref:env:NAME or secretref:file:NAME.
//
// The browser build variables VITE_API_URL and VITE_VAPID_PUBLIC_KEY are
// honoured under their original names and fall back to built-in values
// when unset.
package config
