// Package cache keeps guardrail PII verdicts in Redis so repeated detection
// runs over the same corpus skip the remote check.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/logger"
	"go.uber.org/zap"
)

// backend is the subset of Redis commands the cache needs
type backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisBackend struct {
	client *redis.Client
}

func (r *redisBackend) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisBackend) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Keys uses SCAN so large keyspaces are walked incrementally
func (r *redisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (r *redisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}

// VerdictCache handles Redis-based caching of guardrail PII verdicts
type VerdictCache struct {
	backend backend
	config  *Config
	logger  *logger.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewVerdictCache connects to Redis and verifies the connection
func NewVerdictCache(ctx context.Context, config *Config, log *logger.Logger) (*VerdictCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	cache := newVerdictCache(&redisBackend{client: redis.NewClient(opts)}, config, log)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.backend.Ping(pingCtx); err != nil {
		cache.backend.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache.logger.Info("Verdict cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

func newVerdictCache(b backend, config *Config, log *logger.Logger) *VerdictCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &VerdictCache{
		backend: b,
		config:  config,
		logger:  log.WithComponent("cache"),
	}
}

// Get returns the cached verdict for text under scope, or false on a miss.
// Lookup failures and corrupted entries count as misses.
func (vc *VerdictCache) Get(ctx context.Context, scope, text string) (*CachedVerdict, bool) {
	key := vc.key(scope, text)

	data, err := vc.backend.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		vc.misses.Add(1)
		vc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	}
	if err != nil {
		vc.misses.Add(1)
		vc.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var verdict CachedVerdict
	if err := json.Unmarshal([]byte(data), &verdict); err != nil {
		vc.misses.Add(1)
		vc.logger.Error("Failed to unmarshal cached verdict", zap.Error(err))
		vc.backend.Del(ctx, key)
		return nil, false
	}

	vc.hits.Add(1)
	vc.logger.Debug("Cache hit", zap.String("key", key), zap.Bool("detected", verdict.Detected))
	return &verdict, true
}

// Store caches a verdict for text under scope
func (vc *VerdictCache) Store(ctx context.Context, scope, text string, verdict *CachedVerdict) error {
	key := vc.key(scope, text)

	verdict.CachedAt = time.Now()
	verdict.TTL = int64(vc.config.DefaultTTL.Seconds())

	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict for caching: %w", err)
	}

	if err := vc.backend.Set(ctx, key, data, vc.config.DefaultTTL); err != nil {
		vc.logger.Error("Failed to cache verdict", zap.Error(err))
		return fmt.Errorf("failed to cache verdict: %w", err)
	}

	vc.logger.Debug("Verdict cached", zap.String("key", key))
	return nil
}

// Stats returns hit/miss counters and the number of cached verdicts
func (vc *VerdictCache) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   vc.hits.Load(),
		Misses: vc.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := vc.backend.Keys(ctx, vc.config.KeyPrefix+":verdict:*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	stats.TotalKeys = int64(len(keys))

	return stats, nil
}

// Clear removes all cached verdicts
func (vc *VerdictCache) Clear(ctx context.Context) error {
	keys, err := vc.backend.Keys(ctx, vc.config.KeyPrefix+":verdict:*")
	if err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := vc.backend.Del(ctx, keys[i:end]...); err != nil {
			vc.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	vc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (vc *VerdictCache) Close() error {
	if vc.backend != nil {
		return vc.backend.Close()
	}
	return nil
}

// key hashes the text so raw PII never reaches Redis
func (vc *VerdictCache) key(scope, text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:verdict:%s:%s", vc.config.KeyPrefix, scope, hex.EncodeToString(hash[:]))
}

// CachedChecker serves guardrail PII checks from the cache, falling back to
// the wrapped checker on a miss
type CachedChecker struct {
	checker invoker.PIIChecker
	cache   *VerdictCache
	scope   string
}

// NewCachedChecker wraps checker. scope separates verdicts of different
// guardrails, typically the guardrail identifier and version.
func NewCachedChecker(checker invoker.PIIChecker, cache *VerdictCache, scope string) *CachedChecker {
	return &CachedChecker{checker: checker, cache: cache, scope: scope}
}

func (c *CachedChecker) CheckPII(ctx context.Context, text string) (invoker.Verdict, error) {
	if cached, ok := c.cache.Get(ctx, c.scope, text); ok {
		now := time.Now()
		v := cached.Verdict()
		v.Start, v.End = now, now
		return v, nil
	}

	verdict, err := c.checker.CheckPII(ctx, text)
	if err != nil {
		return verdict, err
	}

	if err := c.cache.Store(ctx, c.scope, text, newCachedVerdict(verdict)); err != nil {
		c.cache.logger.Warn("Verdict not cached", zap.Error(err))
	}
	return verdict, nil
}

// maskRedisURL masks the password of a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
