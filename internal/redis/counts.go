package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const dayFormat = "2006-01-02"

// DailyCounts tracks per-project daily ingest counters for stats.
type DailyCounts struct {
	rdb    *goredis.Client
	prefix string
	clock  clockwork.Clock
}

// NewDailyCounts creates a daily counter store under the given key prefix.
func NewDailyCounts(client *Client, prefix string, clock clockwork.Clock) *DailyCounts {
	return &DailyCounts{rdb: client.rdb, prefix: prefix, clock: clock}
}

func (c *DailyCounts) key(project, day string) string {
	return Key(c.prefix, project, day)
}

// Increment bumps today's counter for the project.
func (c *DailyCounts) Increment(ctx context.Context, project string) error {
	day := c.clock.Now().UTC().Format(dayFormat)
	if err := c.rdb.Incr(ctx, c.key(project, day)).Err(); err != nil {
		return fmt.Errorf("incr %s: %w", c.key(project, day), err)
	}
	return nil
}

// Get returns the counter of the project on the given day (zero if unset).
func (c *DailyCounts) Get(ctx context.Context, project, day string) (int64, error) {
	n, err := c.rdb.Get(ctx, c.key(project, day)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", c.key(project, day), err)
	}
	return n, nil
}

// Trim deletes counters older than the retention window.
func (c *DailyCounts) Trim(ctx context.Context, retentionDays int) error {
	cutoff := c.clock.Now().UTC().AddDate(0, 0, -retentionDays)
	iter := c.rdb.Scan(ctx, 0, Key(c.prefix, "*"), 0).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		day, err := time.Parse(dayFormat, parts[len(parts)-1])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("del %s: %w", iter.Val(), err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", Key(c.prefix, "*"), err)
	}
	return nil
}
