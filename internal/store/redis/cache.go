// Package redis caches DataProvider results in Redis. The cache is a
// read-through decorator: a miss, a Redis error or an open circuit breaker
// all fall back to the wrapped provider, so a dead Redis only costs speed.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"stock-analyzer/internal/model"
)

const (
	defaultTTL        = time.Hour
	defaultKeyPrefix  = "bars"
	breakerFailures   = 3
	breakerResetAfter = 30 * time.Second
)

// CacheConfig configures the Redis cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // default 1h
	Prefix   string        // key prefix, default "bars"
}

// CacheObserver receives cache outcomes. The metrics package provides the
// Prometheus implementation.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
	CacheError()
	BreakerState(s State)
}

// Cache wraps a DataProvider with a Redis read-through cache.
type Cache struct {
	client  *goredis.Client
	next    model.DataProvider
	ttl     time.Duration
	prefix  string
	breaker *CircuitBreaker
	log     *slog.Logger
	obs     CacheObserver
}

// NewCache connects to Redis, pings it, and wraps next.
func NewCache(cfg CacheConfig, next model.DataProvider, logger *slog.Logger) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	c := NewCacheWithClient(client, next, cfg.TTL, logger)
	if cfg.Prefix != "" {
		c.prefix = cfg.Prefix
	}
	c.log.Info("redis cache connected", "addr", cfg.Addr, "ttl", c.ttl)
	return c, nil
}

// NewCacheWithClient wraps next using an existing client without pinging.
func NewCacheWithClient(client *goredis.Client, next model.DataProvider, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		client:  client,
		next:    next,
		ttl:     ttl,
		prefix:  defaultKeyPrefix,
		breaker: NewCircuitBreaker(breakerFailures, breakerResetAfter),
		log:     logger,
	}
	c.breaker.OnStateChange = func(from, to State) {
		c.log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
		if c.obs != nil {
			c.obs.BreakerState(to)
		}
	}
	return c
}

// SetObserver installs o. Call before the cache is shared.
func (c *Cache) SetObserver(o CacheObserver) { c.obs = o }

// Breaker exposes the circuit breaker for health reporting.
func (c *Cache) Breaker() *CircuitBreaker { return c.breaker }

// Client returns the underlying client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Key returns the cache key for a request.
func (c *Cache) Key(symbol string, from, to time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, strings.ToUpper(symbol), from.Format("20060102"), to.Format("20060102"))
}

// FetchBars implements model.DataProvider.
func (c *Cache) FetchBars(ctx context.Context, symbol string, from, to time.Time) (model.Series, error) {
	key := c.Key(symbol, from, to)

	var cached model.Series
	hit := false
	err := c.breaker.Execute(func() error {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &cached); err != nil {
			// a corrupt entry is a miss, not a Redis failure
			c.log.Warn("redis cache entry corrupt", "key", key, "err", err)
			return nil
		}
		hit = len(cached) > 0
		return nil
	})
	switch {
	case err != nil:
		c.observe(func(o CacheObserver) { o.CacheError() })
		if !errors.Is(err, ErrCircuitOpen) {
			c.log.Warn("redis get failed", "key", key, "err", err)
		}
	case hit:
		c.observe(func(o CacheObserver) { o.CacheHit() })
		return cached, nil
	default:
		c.observe(func(o CacheObserver) { o.CacheMiss() })
	}

	series, err := c.next.FetchBars(ctx, symbol, from, to)
	if err != nil || series.Empty() {
		return series, err
	}

	data, err := json.Marshal(series)
	if err != nil {
		return series, nil
	}
	if err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	}); err != nil && !errors.Is(err, ErrCircuitOpen) {
		c.log.Warn("redis set failed", "key", key, "err", err)
	}
	return series, nil
}

// Invalidate drops every cached range for symbol.
func (c *Cache) Invalidate(ctx context.Context, symbol string) error {
	pattern := fmt.Sprintf("%s:%s:*", c.prefix, strings.ToUpper(symbol))
	return c.breaker.Execute(func() error {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		return c.client.Del(ctx, keys...).Err()
	})
}

func (c *Cache) observe(fn func(CacheObserver)) {
	if c.obs != nil {
		fn(c.obs)
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
