package cache

import "time"

const (
	// DefaultGETTTL is how long a successful GET body stays reusable.
	DefaultGETTTL = 2 * time.Minute

	defaultMaxTTL = 10 * time.Minute
)

// Policy decides how long bodies are kept. A zero DefaultTTL turns caching
// off; a zero MaxTTL leaves overrides unbounded.
type Policy struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// DefaultPolicy keeps GET bodies for two minutes and never longer than ten.
func DefaultPolicy() Policy {
	return PolicyFor(DefaultGETTTL)
}

// PolicyFor keeps bodies for ttl. The cap grows with ttl when ttl exceeds
// the default cap.
func PolicyFor(ttl time.Duration) Policy {
	return Policy{DefaultTTL: ttl, MaxTTL: max(ttl, defaultMaxTTL)}
}

// NoCachePolicy disables caching.
func NoCachePolicy() Policy { return Policy{} }

// ShouldCache reports whether the policy caches anything.
func (p Policy) ShouldCache() bool { return p.DefaultTTL > 0 }

// EffectiveTTL returns override, or DefaultTTL when override is not
// positive, clamped to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := p.DefaultTTL
	if override > 0 {
		ttl = override
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return ttl
}
