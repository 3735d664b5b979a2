package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ListQueue is a simple Redis list queue. The inbound firehose queue is a
// ListQueue; consumer workers block on BPop and stop pulling to shut down.
type ListQueue struct {
	rdb *goredis.Client
	key string
}

// NewListQueue creates a list queue under the given key.
func NewListQueue(client *Client, key string) *ListQueue {
	return &ListQueue{rdb: client.rdb, key: key}
}

// Push appends a payload to the queue.
func (q *ListQueue) Push(ctx context.Context, payload []byte) error {
	if err := q.rdb.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.key, err)
	}
	return nil
}

// BPop blocks up to timeout for the next payload. Returns nil without an
// error when the timeout lapses with the queue still empty.
func (q *ListQueue) BPop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", q.key, err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Len returns the queue length.
func (q *ListQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.key, err)
	}
	return n, nil
}

// BufferGroup keeps one list queue per project under a shared prefix.
// Archive and index batches accumulate here between flushes.
type BufferGroup struct {
	rdb    *goredis.Client
	prefix string
}

// NewBufferGroup creates a buffer group under the given key prefix.
func NewBufferGroup(client *Client, prefix string) *BufferGroup {
	return &BufferGroup{rdb: client.rdb, prefix: prefix}
}

func (g *BufferGroup) key(project string) string {
	return Key(g.prefix, project)
}

// Push appends a payload to the project's buffer.
func (g *BufferGroup) Push(ctx context.Context, project string, payload []byte) error {
	if err := g.rdb.RPush(ctx, g.key(project), payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", g.key(project), err)
	}
	return nil
}

// Projects lists every project that currently has a non-empty buffer.
func (g *BufferGroup) Projects(ctx context.Context) ([]string, error) {
	var projects []string
	iter := g.rdb.Scan(ctx, 0, g.key("*"), 0).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		projects = append(projects, parts[len(parts)-1])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", g.key("*"), err)
	}
	return projects, nil
}

// Drain atomically takes every payload out of the project's buffer.
func (g *BufferGroup) Drain(ctx context.Context, project string) ([][]byte, error) {
	key := g.key(project)
	pipe := g.rdb.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain %s: %w", key, err)
	}
	vals := rangeCmd.Val()
	payloads := make([][]byte, 0, len(vals))
	for _, v := range vals {
		payloads = append(payloads, []byte(v))
	}
	return payloads, nil
}

// Requeue puts payloads back into the project's buffer after a failed
// flush.
func (g *BufferGroup) Requeue(ctx context.Context, project string, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(payloads))
	for _, p := range payloads {
		args = append(args, p)
	}
	if err := g.rdb.RPush(ctx, g.key(project), args...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", g.key(project), err)
	}
	return nil
}

// Len returns the buffer length of the given project.
func (g *BufferGroup) Len(ctx context.Context, project string) (int64, error) {
	n, err := g.rdb.LLen(ctx, g.key(project)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", g.key(project), err)
	}
	return n, nil
}
