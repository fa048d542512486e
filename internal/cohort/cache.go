// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package cohort

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cohortmart/internal/cache"
	"github.com/tomtom215/cohortmart/internal/config"
	"github.com/tomtom215/cohortmart/internal/logging"
)

// Cache stores recommendation lists by query key. Implementations return
// copies so that callers may modify results freely.
type Cache interface {
	Get(ctx context.Context, key string) ([]Recommendation, bool)
	Set(ctx context.Context, key string, recs []Recommendation)
	Name() string
}

// NewCache builds the backend selected by cfg. The none backend yields a
// nil Cache.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisCache(client, cfg.RedisPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// MemoryCache is an in-process LRU with a fixed entry lifetime.
type MemoryCache struct {
	lru *cache.LRU[[]Recommendation]
}

// NewMemoryCache creates an LRU holding up to capacity lists for ttl.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: cache.NewLRU[[]Recommendation](capacity, ttl)}
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Get(_ context.Context, key string) ([]Recommendation, bool) {
	recs, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneRecommendations(recs), true
}

func (c *MemoryCache) Set(_ context.Context, key string, recs []Recommendation) {
	c.lru.Add(key, cloneRecommendations(recs))
}

// Purge drops expired entries and returns how many were removed.
func (c *MemoryCache) Purge() int {
	return c.lru.CleanupExpired()
}

// Len returns the number of cached lists.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares recommendation lists between serving processes. Calls
// run through a circuit breaker; any Redis failure degrades to a miss.
type RedisCache struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "cohortmart:"
	}
	settings := gobreaker.Settings{
		Name:        "cohort-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker state changed")
		},
	}
	return &RedisCache{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) Get(ctx context.Context, key string) ([]Recommendation, bool) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		b, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Cache get failed")
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var recs []Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return nil, false
	}
	return recs, true
}

func (c *RedisCache) Set(ctx context.Context, key string, recs []Recommendation) {
	data, err := json.Marshal(recs)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to encode cache entry")
		return
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
	})
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Cache set failed")
	}
}

// Ping checks the connection to Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
