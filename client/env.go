package client

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/traf3li/clientops/cache"
	"github.com/traf3li/clientops/config"
)

// redisPrefix namespaces the shared GET cache in Redis.
const redisPrefix = "clientops:get"

// ConfigFromEnv builds a Config from the shared client settings. When a
// Redis URL is set the GET cache lives in Redis so several processes share
// it; the returned close func releases that connection and is never nil.
func ConfigFromEnv(c config.Client) (Config, func() error, error) {
	noop := func() error { return nil }

	locale, err := language.Parse(c.Locale)
	if err != nil {
		return Config{}, noop, fmt.Errorf("%w: CLIENTOPS_LOCALE %q", config.ErrInvalidValue, c.Locale)
	}
	policy := cache.PolicyFor(c.CacheTTL)
	cfg := Config{
		BaseURL:     c.BaseURL(),
		CachePolicy: &policy,
		Locale:      locale,
	}
	if c.RedisURL == "" {
		return cfg, noop, nil
	}

	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return Config{}, noop, fmt.Errorf("%w: CLIENTOPS_REDIS_URL: %v", config.ErrInvalidValue, err)
	}
	rdb := redis.NewClient(opts)
	cfg.Cache = cache.NewRedisCache(rdb, redisPrefix, policy)
	return cfg, rdb.Close, nil
}
