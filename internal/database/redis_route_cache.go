package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

const routeCacheKeyPrefix = "route:"

// RedisRouteCache stores route cache entries in Redis with a TTL
type RedisRouteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRouteCache connects to the Redis server at url (redis://...)
func NewRedisRouteCache(ctx context.Context, url string, ttl time.Duration) (*RedisRouteCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Printf("[CACHE] Redis route cache connected: addr=%s ttl=%v", opts.Addr, ttl)
	return &RedisRouteCache{client: client, ttl: ttl}, nil
}

// RouteCacheKey builds the cache key shared by every route cache backend
func RouteCacheKey(origin, dest models.Coordinates, mode models.TravelMode) string {
	return fmt.Sprintf("%s:%.5f,%.5f->%.5f,%.5f",
		mode,
		models.RoundCoordinate(origin.Lat),
		models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat),
		models.RoundCoordinate(dest.Lng),
	)
}

func (c *RedisRouteCache) Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.RouteCacheEntry, error) {
	b, err := c.client.Get(ctx, routeCacheKeyPrefix+RouteCacheKey(origin, dest, mode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route cache entry: %w", err)
	}
	var entry models.RouteCacheEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode route cache entry: %w", err)
	}
	return &entry, nil
}

func (c *RedisRouteCache) Set(ctx context.Context, entry *models.RouteCacheEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := routeCacheKeyPrefix + RouteCacheKey(entry.Origin, entry.Destination, entry.Mode)
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set route cache entry: %w", err)
	}
	return nil
}

func (c *RedisRouteCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, routeCacheKeyPrefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan route cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear route cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisRouteCache) Close() error {
	return c.client.Close()
}
