package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the public catalog response cache and
// the per-game lookup cache. When Enabled is false or redis is unavailable
// both caches are bypassed.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration // response cache entry lifetime
	GameTTL      time.Duration // game-by-id cache entry lifetime
	Prefix       string
	KeyStrategy  string // route | method_route | route_query | method_route_query
	MaxBodyBytes int    // larger responses are not cached
}

// LoadCacheConfig reads CACHE_* variables. Methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		GameTTL:      envDur("CACHE_GAME_TTL", 10*time.Minute),
		Prefix:       envStr("CACHE_PREFIX", "gt:cache"),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
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
