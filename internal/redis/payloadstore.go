package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// PayloadStore keeps JSON payload records keyed by item id.
type PayloadStore struct {
	rdb    *goredis.Client
	prefix string
}

// NewPayloadStore creates a payload store under the given key prefix.
func NewPayloadStore(client *Client, prefix string) *PayloadStore {
	return &PayloadStore{rdb: client.rdb, prefix: prefix}
}

func (s *PayloadStore) key(id string) string {
	return Key(s.prefix, id)
}

// Set stores the payload of the given id, replacing any previous value.
func (s *PayloadStore) Set(ctx context.Context, id string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, s.key(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key(id), err)
	}
	return nil
}

// Get loads the payload of the given id into out. Returns false if there
// is no payload.
func (s *PayloadStore) Get(ctx context.Context, id string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", s.key(id), err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal payload %s: %w", id, err)
	}
	return true, nil
}

// Delete removes the payload of the given id.
func (s *PayloadStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key(id), err)
	}
	return nil
}

// DeleteAll removes every payload under the prefix.
func (s *PayloadStore) DeleteAll(ctx context.Context) error {
	return deleteByPattern(ctx, s.rdb, s.key("*"))
}
