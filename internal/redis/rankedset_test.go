package redis

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRDB(rdb)
}

func newTestRankedSet(t *testing.T, maxSize int64) *RankedSet {
	t.Helper()
	client := newTestClient(t)
	rng := rand.New(rand.NewSource(42))
	return NewRankedSet(client, Key("cs", "pq", "test"), maxSize, rng)
}

func TestRankedSetAddAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 100)

	for i, key := range []string{"a", "b", "c", "d"} {
		_, err := s.Add(ctx, key, float64(i))
		require.NoError(t, err)
	}

	top, ok, err := s.Pop(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d", top)

	members, err := s.MultiPop(ctx, 3, 0, math.Inf(-1))
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, []Member{{"d", 3}, {"c", 2}, {"b", 1}}, members)
}

func TestRankedSetIdempotentUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 100)

	_, err := s.Add(ctx, "x", 5)
	require.NoError(t, err)
	_, err = s.Add(ctx, "x", 9)
	require.NoError(t, err)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	score, ok, err := s.GetScore(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9.0, score)
}

func TestRankedSetCapacityInvariant(t *testing.T) {
	ctx := context.Background()
	const maxSize = 5
	s := newTestRankedSet(t, maxSize)

	for i := 0; i < 25; i++ {
		_, err := s.Add(ctx, fmt.Sprintf("key-%d", i), float64(i))
		require.NoError(t, err)

		size, err := s.Size(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, size, int64(maxSize))
	}

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(maxSize), size)
}

func TestRankedSetEvictionKeepsHighScores(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 3)

	var allEvicted []string
	for i := 0; i < 8; i++ {
		evicted, err := s.Add(ctx, fmt.Sprintf("key-%d", i), float64(i))
		require.NoError(t, err)
		allEvicted = append(allEvicted, evicted...)
	}

	// 8 distinct adds into capacity 3 must evict exactly 5 members.
	require.Len(t, allEvicted, 5)

	survivors, err := s.MultiPop(ctx, 3, 0, math.Inf(-1))
	require.NoError(t, err)
	require.Len(t, survivors, 3)

	// With strictly increasing scores the three highest survive.
	assert.Equal(t, "key-7", survivors[0].Key)
	assert.Equal(t, "key-6", survivors[1].Key)
	assert.Equal(t, "key-5", survivors[2].Key)
}

func TestRankedSetEvictionTieBreakIsAmongTies(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 3)

	for _, key := range []string{"t1", "t2", "t3"} {
		_, err := s.Add(ctx, key, 1)
		require.NoError(t, err)
	}
	evicted, err := s.Add(ctx, "high", 10)
	require.NoError(t, err)

	require.Len(t, evicted, 1)
	assert.Contains(t, []string{"t1", "t2", "t3"}, evicted[0])

	ok, err := s.Exists(ctx, "high")
	require.NoError(t, err)
	assert.True(t, ok, "the newly added high-score member must survive")
}

func TestRankedSetPopEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 10)

	_, ok, err := s.Pop(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := s.MultiPop(ctx, 5, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRankedSetPopRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 10)

	_, err := s.Add(ctx, "only", 1)
	require.NoError(t, err)

	key, ok, err := s.Pop(ctx, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "only", key)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestRankedSetIncrementMissingIsSoft(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 10)

	// Absent member: logged no-op, no error, nothing created.
	require.NoError(t, s.IncrementScore(ctx, "ghost", 1))
	ok, err := s.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Add(ctx, "real", 1)
	require.NoError(t, err)
	require.NoError(t, s.IncrementScore(ctx, "real", 2))

	score, ok, err := s.GetScore(ctx, "real")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, score)
}

func TestRankedSetMultiPopMinScore(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 10)

	_, err := s.Add(ctx, "low", 0)
	require.NoError(t, err)
	_, err = s.Add(ctx, "mid", 2)
	require.NoError(t, err)
	_, err = s.Add(ctx, "high", 5)
	require.NoError(t, err)

	members, err := s.MultiPop(ctx, 10, 0, 1)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "high", members[0].Key)
	assert.Equal(t, "mid", members[1].Key)
}

func TestRankedSetWeightedSample(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 20)

	for i := 0; i < 10; i++ {
		_, err := s.Add(ctx, fmt.Sprintf("key-%d", i), float64(i))
		require.NoError(t, err)
	}

	members, err := s.MultiPop(ctx, 3, 10, math.Inf(-1))
	require.NoError(t, err)
	require.Len(t, members, 3)

	seen := map[string]bool{}
	for _, m := range members {
		assert.Greater(t, m.Score, 0.0, "zero-score members must never be drawn")
		assert.False(t, seen[m.Key], "sampling is without replacement")
		seen[m.Key] = true
	}
}

func TestRankedSetWeightedSampleAllZero(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 20)

	for i := 0; i < 5; i++ {
		_, err := s.Add(ctx, fmt.Sprintf("key-%d", i), 0)
		require.NoError(t, err)
	}

	members, err := s.MultiPop(ctx, 3, 5, math.Inf(-1))
	require.NoError(t, err)
	assert.Empty(t, members, "only positive scores are drawable")
}

func TestRankedSetRankAndDestroy(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 10)

	_, err := s.Add(ctx, "a", 1)
	require.NoError(t, err)
	_, err = s.Add(ctx, "b", 2)
	require.NoError(t, err)

	rank, ok, err := s.GetRank(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), rank)

	_, ok, err = s.GetRank(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Destroy(ctx))
	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestRankedSetPage(t *testing.T) {
	ctx := context.Background()
	s := newTestRankedSet(t, 10)

	for i := 0; i < 5; i++ {
		_, err := s.Add(ctx, fmt.Sprintf("key-%d", i), float64(i))
		require.NoError(t, err)
	}

	page, err := s.Page(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "key-2", page[0].Key)
	assert.Equal(t, "key-1", page[1].Key)
}
