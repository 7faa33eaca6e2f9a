// Package cache holds the Redis-backed image cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "listings:image:"

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisImageCache implements core.ImageCache. Images never change once
// stored, so entries only expire to bound memory.
type RedisImageCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisImageCache(client redis.Cmdable, ttl time.Duration) *RedisImageCache {
	return &RedisImageCache{client: client, ttl: ttl}
}

func imageKey(listingID, imageID uuid.UUID) string {
	return keyPrefix + listingID.String() + ":" + imageID.String()
}

// GetImage reports a miss as (nil, false, nil).
func (c *RedisImageCache) GetImage(ctx context.Context, listingID, imageID uuid.UUID) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, imageKey(listingID, imageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get image %s: %w", imageID, err)
	}
	return data, true, nil
}

func (c *RedisImageCache) SetImage(ctx context.Context, listingID, imageID uuid.UUID, data []byte) error {
	if err := c.client.Set(ctx, imageKey(listingID, imageID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set image %s: %w", imageID, err)
	}
	return nil
}
