// Package health reports whether the dependencies a daemon relies on are
// reachable: the API origin behind the offline proxy, the SQLite stores, and
// the optional Redis response cache.
//
// Checkers are registered on an Aggregator, which runs them concurrently
// under a shared deadline and folds the results into one Status:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewPingChecker("redis", redisCache, 50*time.Millisecond))
//	agg.Register(health.NewSQLChecker("subscriptions", db))
//	agg.Register(health.NewOriginChecker("api", http.DefaultClient, apiURL))
//
//	health.RegisterHandlers(mux, agg) // /healthz, /readyz, /health
package health
