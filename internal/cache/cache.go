// Package cache provides a short-TTL cache for resolved entitlements.
//
// Live Stripe lookups are slow and rate-limited; a 60-second cache keeps a
// burst of comparisons from hammering the billing platform while staying
// fresh enough that plan changes land within a minute.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EntitlementCache caches resolver results keyed by identity.
//
// Get returns (nil, nil) on a miss. Implementations must never fail a
// request on cache errors; callers treat any error as a miss.
type EntitlementCache interface {
	Get(ctx context.Context, identity string) (*domain.Entitlement, error)
	Set(ctx context.Context, identity string, ent domain.Entitlement) error
}

// RedisCache implements EntitlementCache on a redis client.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates an entitlement cache with the given TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

func key(identity string) string {
	return "pixelproof:entitlement:" + identity
}

func (c *RedisCache) Get(ctx context.Context, identity string) (*domain.Entitlement, error) {
	raw, err := c.client.Get(ctx, key(identity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var ent domain.Entitlement
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &ent, nil
}

func (c *RedisCache) Set(ctx context.Context, identity string, ent domain.Entitlement) error {
	raw, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key(identity), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
