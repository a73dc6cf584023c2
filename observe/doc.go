// Package observe provides the telemetry used by the API client and the
// daemons: a structured logger backed by logrus, OpenTelemetry spans and
// instruments for HTTP traffic, and a Prometheus scrape endpoint.
//
// Outgoing requests are instrumented per attempt by wrapping the client's
// transport with Middleware.Transport; incoming requests are instrumented
// with Middleware.Handler.
package observe
