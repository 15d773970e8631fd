// Package cache provides a thin Redis-backed cache used for hot-path reads:
// per-user block lists and per-room last-message payloads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/pkg/json"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// Options configures the Redis connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
}

// Cache wraps a Redis client with namespaced keys and JSON values.
type Cache struct {
	client    *redis.Client
	namespace string
	log       *zap.Logger
}

// New connects to Redis and returns a Cache scoped to the given namespace.
func New(ctx context.Context, namespace string, opts Options, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Cache{
		client:    client,
		namespace: namespace,
		log:       log.With(zap.String("module", "cache")),
	}, nil
}

func (c *Cache) key(entity, attribute string) string {
	return c.namespace + ":" + entity + ":" + attribute
}

// Set stores a JSON-encoded value with the given TTL.
func (c *Cache) Set(ctx context.Context, entity, attribute string, value interface{}, ttl time.Duration) error {
	key := c.key(entity, attribute)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Error("failed to set cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Get retrieves a value; ErrMiss when the key does not exist.
func (c *Cache) Get(ctx context.Context, entity, attribute string, value interface{}) error {
	key := c.key(entity, attribute)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		c.log.Error("failed to get cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to get cache: %w", err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// Delete removes a cached value.
func (c *Cache) Delete(ctx context.Context, entity, attribute string) error {
	key := c.key(entity, attribute)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Error("failed to delete cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
