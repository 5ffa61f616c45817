package redisclient

import (
	"context"
	"fmt"
	"time"

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

// AcquireReconcileLock takes a short SetNX lock for one correlation id so
// the webhook and capture paths rarely reconcile the same event at once.
// Best-effort only; the orders unique index is the real guard.
func (c *Client) AcquireReconcileLock(ctx context.Context, correlationID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("reconcile:%s", correlationID), "1", ttl).Result()
}

// ReleaseReconcileLock releases a reconcile lock
func (c *Client) ReleaseReconcileLock(ctx context.Context, correlationID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("reconcile:%s", correlationID)).Err()
}

// MarkEventProcessed records a processed correlation id with a TTL so
// provider retry storms can be short-circuited without a database read.
func (c *Client) MarkEventProcessed(ctx context.Context, correlationID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("processed:%s", correlationID), "1", ttl).Err()
}

// IsEventProcessed checks the processed mark for a correlation id
func (c *Client) IsEventProcessed(ctx context.Context, correlationID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("processed:%s", correlationID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
