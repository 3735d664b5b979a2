package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client. It is constructed once at process start
// and passed by reference into every store.
type Client struct {
	rdb *goredis.Client
}

// NewClient creates a Redis client from a URL (e.g. "redis://localhost:6379").
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Client{rdb: goredis.NewClient(opts)}, nil
}

// NewClientFromRDB wraps an existing go-redis client. Used by tests.
func NewClientFromRDB(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw go-redis client for advanced operations.
func (c *Client) Underlying() *goredis.Client {
	return c.rdb
}
