package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/crowdsense/streamd/internal/domain"
)

// Member is one entry of a RankedSet.
type Member struct {
	Key   string
	Score float64
}

// RankedSet is a capacity-bounded member→score collection backed by a
// Redis sorted set. Score ordering is the only intrinsic order. When an
// insert pushes the cardinality past the bound, the lowest-scored members
// are evicted; ties at the minimum score are broken uniformly at random
// so structurally low-scored but recent members are not starved.
//
// Missing-member conditions are soft: they are logged at warning level
// and never returned as errors.
type RankedSet struct {
	rdb     *goredis.Client
	key     string
	maxSize int64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRankedSet creates a ranked set under the given key. A nil rng falls
// back to a time-seeded source; tests inject a fixed seed to make
// tie-break eviction and sampling deterministic.
func NewRankedSet(client *Client, key string, maxSize int64, rng *rand.Rand) *RankedSet {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RankedSet{rdb: client.rdb, key: key, maxSize: maxSize, rng: rng}
}

// Key returns the full Redis key of the collection.
func (s *RankedSet) Key() string { return s.key }

// Add upserts a member and enforces the capacity bound. It returns every
// key evicted during this call so dependent stores can purge associated
// payloads.
func (s *RankedSet) Add(ctx context.Context, member string, score float64) ([]string, error) {
	if err := s.rdb.ZAdd(ctx, s.key, goredis.Z{Score: score, Member: member}).Err(); err != nil {
		return nil, fmt.Errorf("zadd %s: %w", s.key, err)
	}

	var evicted []string
	for {
		card, err := s.rdb.ZCard(ctx, s.key).Result()
		if err != nil {
			return evicted, fmt.Errorf("zcard %s: %w", s.key, err)
		}
		if card <= s.maxSize {
			return evicted, nil
		}
		victim, ok, err := s.evictLowest(ctx)
		if err != nil {
			return evicted, err
		}
		if !ok {
			return evicted, nil
		}
		evicted = append(evicted, victim)
	}
}

// evictLowest removes one member with the minimum score, picking uniformly
// at random among ties. Returns false if the collection is empty or the
// victim vanished under a concurrent writer.
func (s *RankedSet) evictLowest(ctx context.Context) (string, bool, error) {
	lowest, err := s.rdb.ZRangeWithScores(ctx, s.key, 0, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("zrange %s: %w", s.key, err)
	}
	if len(lowest) == 0 {
		slog.WarnContext(ctx, "Tried to evict lowest member but collection is empty", "key", s.key, "error", domain.ErrCollectionEmpty)
		return "", false, nil
	}

	score := lowest[0].Score
	scoreArg := formatScore(score)
	ties, err := s.rdb.ZCount(ctx, s.key, scoreArg, scoreArg).Result()
	if err != nil {
		return "", false, fmt.Errorf("zcount %s: %w", s.key, err)
	}
	if ties == 0 {
		// Concurrent removal between the two reads.
		slog.WarnContext(ctx, "Lowest score vanished before eviction", "key", s.key, "score", score, "error", domain.ErrMemberNotFound)
		return "", false, nil
	}

	victim := lowest[0]
	if ties > 1 {
		idx := int64(s.intn(int(ties)))
		picked, err := s.rdb.ZRangeWithScores(ctx, s.key, idx, idx).Result()
		if err != nil {
			return "", false, fmt.Errorf("zrange %s: %w", s.key, err)
		}
		if len(picked) > 0 {
			victim = picked[0]
		}
	}

	name, _ := victim.Member.(string)
	removed, err := s.rdb.ZRem(ctx, s.key, name).Result()
	if err != nil {
		return "", false, fmt.Errorf("zrem %s: %w", s.key, err)
	}
	if removed == 0 {
		slog.WarnContext(ctx, "Eviction victim was already gone", "key", s.key, "member", name, "error", domain.ErrMemberNotFound)
		return "", false, nil
	}
	return name, true, nil
}

// Pop returns the highest-scored member. The second return value is false
// when the collection is empty.
func (s *RankedSet) Pop(ctx context.Context, remove bool) (string, bool, error) {
	items, err := s.rdb.ZRevRangeWithScores(ctx, s.key, 0, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("zrevrange %s: %w", s.key, err)
	}
	if len(items) == 0 {
		return "", false, nil
	}
	name, _ := items[0].Member.(string)
	if remove {
		if err := s.Remove(ctx, name); err != nil {
			return "", false, err
		}
	}
	return name, true, nil
}

// MultiPop returns up to n members. If sampleFrom > n, the top sampleFrom
// candidates by score are drawn and a probability-weighted sample of n is
// returned without replacement (weight proportional to score; only
// candidates with a positive score can be drawn). Otherwise the top n are
// returned in descending score order.
func (s *RankedSet) MultiPop(ctx context.Context, n, sampleFrom int, minScore float64) ([]Member, error) {
	count := n
	if sampleFrom > count {
		count = sampleFrom
	}
	members, err := s.pageByScore(ctx, minScore, 0, count)
	if err != nil {
		return nil, err
	}
	if sampleFrom > 0 && len(members) > n {
		return s.weightedSample(members, n), nil
	}
	if len(members) > n {
		members = members[:n]
	}
	return members, nil
}

// Page returns count members starting at the given rank offset, descending
// by score. Used to scan the collection in fixed-size windows.
func (s *RankedSet) Page(ctx context.Context, offset, count int) ([]Member, error) {
	return s.pageByScore(ctx, math.Inf(-1), offset, count)
}

func (s *RankedSet) pageByScore(ctx context.Context, minScore float64, offset, count int) ([]Member, error) {
	zs, err := s.rdb.ZRevRangeByScoreWithScores(ctx, s.key, &goredis.ZRangeBy{
		Min:    formatScore(minScore),
		Max:    "+inf",
		Offset: int64(offset),
		Count:  int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrangebyscore %s: %w", s.key, err)
	}
	members := make([]Member, 0, len(zs))
	for _, z := range zs {
		name, _ := z.Member.(string)
		members = append(members, Member{Key: name, Score: z.Score})
	}
	return members, nil
}

// IncrementScore adds delta to a member's score. If the member is gone
// (e.g. evicted by a concurrent writer) this is a logged no-op.
func (s *RankedSet) IncrementScore(ctx context.Context, member string, delta float64) error {
	err := s.rdb.ZScore(ctx, s.key, member).Err()
	if errors.Is(err, goredis.Nil) {
		slog.WarnContext(ctx, "Score not incremented, member no longer exists", "key", s.key, "member", member, "error", domain.ErrMemberNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("zscore %s: %w", s.key, err)
	}
	if err := s.rdb.ZIncrBy(ctx, s.key, delta, member).Err(); err != nil {
		return fmt.Errorf("zincrby %s: %w", s.key, err)
	}
	return nil
}

// GetScore returns a member's score; false if the member is absent.
func (s *RankedSet) GetScore(ctx context.Context, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, s.key, member).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s: %w", s.key, err)
	}
	return score, true, nil
}

// GetRank returns a member's rank (0 = highest score); false if absent.
func (s *RankedSet) GetRank(ctx context.Context, member string) (int64, bool, error) {
	rank, err := s.rdb.ZRevRank(ctx, s.key, member).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zrevrank %s: %w", s.key, err)
	}
	return rank, true, nil
}

// Exists reports whether a member is present.
func (s *RankedSet) Exists(ctx context.Context, member string) (bool, error) {
	_, ok, err := s.GetScore(ctx, member)
	return ok, err
}

// Remove deletes a member. A missing member is a logged no-op.
func (s *RankedSet) Remove(ctx context.Context, member string) error {
	removed, err := s.rdb.ZRem(ctx, s.key, member).Result()
	if err != nil {
		return fmt.Errorf("zrem %s: %w", s.key, err)
	}
	if removed == 0 {
		slog.WarnContext(ctx, "Member could not be removed, it no longer exists", "key", s.key, "member", member, "error", domain.ErrMemberNotFound)
	}
	return nil
}

// Size returns the current cardinality.
func (s *RankedSet) Size(ctx context.Context) (int64, error) {
	card, err := s.rdb.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", s.key, err)
	}
	return card, nil
}

// Keys returns every member key. Intended for periodic sweeps, not the
// hot path.
func (s *RankedSet) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.ZScan(ctx, s.key, 0, "", 0).Iterator()
	// ZSCAN yields member and score alternately.
	isScore := false
	for iter.Next(ctx) {
		if !isScore {
			keys = append(keys, iter.Val())
		}
		isScore = !isScore
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("zscan %s: %w", s.key, err)
	}
	return keys, nil
}

// Destroy drops the whole collection.
func (s *RankedSet) Destroy(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key, err)
	}
	return nil
}

// weightedSample draws n members without replacement with probability
// proportional to score. Members with a non-positive score are never
// drawn.
func (s *RankedSet) weightedSample(members []Member, n int) []Member {
	pool := make([]Member, len(members))
	copy(pool, members)
	picked := make([]Member, 0, n)

	for len(picked) < n {
		total := 0.0
		for _, m := range pool {
			if m.Score > 0 {
				total += m.Score
			}
		}
		if total <= 0 {
			break
		}
		r := s.float64() * total
		chosen := -1
		for i, m := range pool {
			if m.Score <= 0 {
				continue
			}
			r -= m.Score
			chosen = i
			if r <= 0 {
				break
			}
		}
		if chosen < 0 {
			break
		}
		picked = append(picked, pool[chosen])
		pool = append(pool[:chosen], pool[chosen+1:]...)
	}
	return picked
}

func (s *RankedSet) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *RankedSet) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func formatScore(score float64) string {
	switch {
	case math.IsInf(score, -1):
		return "-inf"
	case math.IsInf(score, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(score, 'f', -1, 64)
	}
}
