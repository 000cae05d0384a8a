package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware in front of
// flight search.  When Enabled is false or no Redis client is configured,
// caching is disabled.  Methods lists the HTTP methods to cache and TTL the
// lifetime of an entry; flight offers go stale quickly so the default is short.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

// IdempotencyConfig controls replay of booking POSTs carrying an
// Idempotency-Key header.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

func LoadIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Enabled: envBool("IDEMPOTENCY_ENABLED", true),
		TTL:     envDur("IDEMPOTENCY_TTL", 24*time.Hour),
		Prefix:  envStr("IDEMPOTENCY_PREFIX", "idem"),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
