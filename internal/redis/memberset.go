package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// MemberSet keeps one Redis set per item id under a shared key prefix.
// The annotation queue uses it to remember which users labelled an item.
type MemberSet struct {
	rdb    *goredis.Client
	prefix string
}

// NewMemberSet creates a member set store under the given key prefix.
func NewMemberSet(client *Client, prefix string) *MemberSet {
	return &MemberSet{rdb: client.rdb, prefix: prefix}
}

func (s *MemberSet) key(id string) string {
	return Key(s.prefix, id)
}

// Add inserts a member into the set of the given id.
func (s *MemberSet) Add(ctx context.Context, id, member string) error {
	if err := s.rdb.SAdd(ctx, s.key(id), member).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", s.key(id), err)
	}
	return nil
}

// Contains reports whether member is in the set of the given id.
func (s *MemberSet) Contains(ctx context.Context, id, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.key(id), member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", s.key(id), err)
	}
	return ok, nil
}

// Count returns the cardinality of the set of the given id.
func (s *MemberSet) Count(ctx context.Context, id string) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", s.key(id), err)
	}
	return n, nil
}

// Delete drops the whole set of the given id.
func (s *MemberSet) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key(id), err)
	}
	return nil
}

// DeleteAll drops every set under the prefix.
func (s *MemberSet) DeleteAll(ctx context.Context) error {
	return deleteByPattern(ctx, s.rdb, s.key("*"))
}

func deleteByPattern(ctx context.Context, rdb *goredis.Client, pattern string) error {
	iter := rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", pattern, err)
	}
	return nil
}
