package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/powlax/memberkit/capabilities"
)

// CapabilityCache caches resolved UserCapabilities in Redis with a TTL.
// It satisfies capabilities.Cache.
type CapabilityCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

func NewCapabilityCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *CapabilityCache {
	if keyPrefix == "" {
		keyPrefix = "membership:caps:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CapabilityCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (c *CapabilityCache) key(userID string) string { return c.keyNS + userID }

func (c *CapabilityCache) Get(ctx context.Context, userID string) (*capabilities.UserCapabilities, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var caps capabilities.UserCapabilities
	if err := json.Unmarshal(val, &caps); err != nil {
		return nil, false, err
	}
	return &caps, true, nil
}

func (c *CapabilityCache) Put(ctx context.Context, caps *capabilities.UserCapabilities) error {
	b, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(caps.UserID), b, c.ttl).Err()
}

func (c *CapabilityCache) Del(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, c.key(userID)).Err()
}
