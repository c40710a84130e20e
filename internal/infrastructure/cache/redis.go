// Package cache holds the Redis client setup and the menu cost cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"larder/internal/domain/costing"
)

// New creates a Redis client and pings it.
func New(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

// MenuCostCache stores recomputed menu costs as JSON. Keys already carry the location
// cost version and the menu version, so entries are never invalidated, only expired.
type MenuCostCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMenuCostCache creates the cache. A zero ttl keeps entries for an hour.
func NewMenuCostCache(client *redis.Client, ttl time.Duration) *MenuCostCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MenuCostCache{client: client, ttl: ttl}
}

var _ costing.CostCache = (*MenuCostCache)(nil)

func (c *MenuCostCache) Get(ctx context.Context, key string) (*costing.MenuCost, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	var cost costing.MenuCost
	if err := json.Unmarshal(raw, &cost); err != nil {
		// unreadable entry; drop it and report a miss
		_ = c.client.Del(ctx, key).Err()
		return nil, false, nil
	}
	return &cost, true, nil
}

func (c *MenuCostCache) Set(ctx context.Context, key string, cost *costing.MenuCost) error {
	raw, err := json.Marshal(cost)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
