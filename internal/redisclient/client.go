package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"devis-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheCatalogItem stores a catalog item snapshot with TTL. The pricing
// path treats whatever it reads as a point-in-time snapshot, so a slightly
// stale cache entry is acceptable.
func (c *Client) CacheCatalogItem(ctx context.Context, item *models.CatalogItem, ttl time.Duration) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog item: %w", err)
	}
	return c.rdb.Set(ctx, catalogKey(item.ID), data, ttl).Err()
}

// GetCachedCatalogItem retrieves a cached catalog item snapshot.
// Returns nil without error on a cache miss.
func (c *Client) GetCachedCatalogItem(ctx context.Context, itemID int64) (*models.CatalogItem, error) {
	data, err := c.rdb.Get(ctx, catalogKey(itemID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var item models.CatalogItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached catalog item: %w", err)
	}
	return &item, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

func catalogKey(itemID int64) string {
	return fmt.Sprintf("catalog:%d", itemID)
}
