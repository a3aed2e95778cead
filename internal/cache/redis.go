// internal/cache/redis.go
// Package cache provides an optional Redis cache for search suggestions.
// Suggestion queries are issued on every keystroke, so even a short TTL
// takes most of the load off the store. Without Redis configured the cache
// degrades to a noop and every lookup goes to the store.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/monastery360/monastery360-go/internal/metrics"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/redis/go-redis/v9"
)

const suggestionTTL = 60 * time.Second

// SuggestionCache caches suggestion results per normalized query prefix.
// Misses and backend failures are indistinguishable to callers.
type SuggestionCache interface {
	Get(ctx context.Context, key string) ([]model.Suggestion, bool)
	Set(ctx context.Context, key string, suggestions []model.Suggestion)
}

// noop is the SuggestionCache used when Redis is not configured.
type noop struct{}

func (noop) Get(ctx context.Context, key string) ([]model.Suggestion, bool) { return nil, false }
func (noop) Set(ctx context.Context, key string, suggestions []model.Suggestion) {}

// NewNoop returns a SuggestionCache that caches nothing.
func NewNoop() SuggestionCache { return noop{} }

type redisCache struct {
	client  *redis.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a suggestion cache for the given Redis address. An empty
// address or a failed ping yields the noop cache.
func New(addr, password string, log *slog.Logger) SuggestionCache {
	if log == nil {
		log = slog.Default()
	}
	if addr == "" {
		return noop{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed, suggestion cache disabled", "addr", addr, "error", err)
		return noop{}
	}

	log.Info("suggestion cache enabled", "addr", addr)
	return &redisCache{client: client, log: log, metrics: metrics.NewMetrics()}
}

func cacheKey(key string) string { return "m360:suggest:" + key }

func (c *redisCache) Get(ctx context.Context, key string) ([]model.Suggestion, bool) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("suggestion cache read failed", "error", err)
		}
		c.metrics.SuggestionCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	var suggestions []model.Suggestion
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		c.metrics.SuggestionCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.metrics.SuggestionCacheTotal.WithLabelValues("hit").Inc()
	return suggestions, true
}

func (c *redisCache) Set(ctx context.Context, key string, suggestions []model.Suggestion) {
	raw, err := json.Marshal(suggestions)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(key), raw, suggestionTTL).Err(); err != nil {
		c.log.Warn("suggestion cache write failed", "error", err)
	}
}
