// Package cache shares downloaded media payloads between workers and runs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/community-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/community-crawler/internal/hash/sha256"
)

const namespace = "community-crawler"

// Redis is a PayloadCache backed by a Redis server. A nil *Redis behaves as
// an always-empty cache.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to url and verifies the connection with a ping. An empty
// url disables caching and returns nil.
func NewRedis(ctx context.Context, url string, logger *zap.Logger) (*Redis, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if logger != nil {
		logger.Info("redis media cache enabled", zap.String("addr", opt.Addr))
	}
	return &Redis{client: client}, nil
}

// Key namespaces and hashes a raw cache key.
func Key(raw string) string {
	return namespace + ":" + sha256.Key(raw)
}

// Get returns collyfetcher.ErrCacheMiss when the key is absent.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, collyfetcher.ErrCacheMiss
	}
	val, err := r.client.Get(ctx, Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, collyfetcher.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value with ttl. It is a no-op on a nil cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Set(ctx, Key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
