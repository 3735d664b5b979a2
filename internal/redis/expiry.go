package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ExpiryMarkers manages TTL companion keys. A marker that has lapsed is
// simply absent; the trending-tweets cleanup sweep removes ranked-set
// members whose marker is gone.
type ExpiryMarkers struct {
	rdb    *goredis.Client
	prefix string
}

// NewExpiryMarkers creates a marker store under the given key prefix.
func NewExpiryMarkers(client *Client, prefix string) *ExpiryMarkers {
	return &ExpiryMarkers{rdb: client.rdb, prefix: prefix}
}

func (s *ExpiryMarkers) key(id string) string {
	return Key(s.prefix, id)
}

// Set places a marker for the given id that expires after ttl.
func (s *ExpiryMarkers) Set(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(id), 1, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key(id), err)
	}
	return nil
}

// Exists reports whether the marker of the given id is still live.
func (s *ExpiryMarkers) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", s.key(id), err)
	}
	return n > 0, nil
}

// DeleteAll removes every marker under the prefix.
func (s *ExpiryMarkers) DeleteAll(ctx context.Context) error {
	return deleteByPattern(ctx, s.rdb, s.key("*"))
}
