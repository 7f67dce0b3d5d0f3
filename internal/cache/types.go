package cache

import (
	"time"

	"github.com/raaihank/guardbench/internal/invoker"
)

// CachedVerdict is the stored form of a guardrail PII check
type CachedVerdict struct {
	Detected    bool      `json:"detected"`
	EntityTypes []string  `json:"entity_types,omitempty"`
	Action      string    `json:"action,omitempty"`
	CachedAt    time.Time `json:"cached_at"`
	TTL         int64     `json:"ttl"`
}

func newCachedVerdict(v invoker.Verdict) *CachedVerdict {
	return &CachedVerdict{
		Detected:    v.Detected,
		EntityTypes: v.EntityTypes,
		Action:      v.Action,
	}
}

// Verdict converts the cached entry back into a checker verdict
func (c *CachedVerdict) Verdict() invoker.Verdict {
	return invoker.Verdict{
		Detected:    c.Detected,
		EntityTypes: c.EntityTypes,
		Action:      c.Action,
	}
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	TotalKeys int64   `json:"total_keys"`
}

// Config contains cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}
