package trending

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/redis"
)

const (
	// DefaultRetweetWeight is the weighted-count increment of a retweet.
	DefaultRetweetWeight = 0.2
	// DefaultSnapshotSize caps how many tokens each epoch snapshot keeps.
	DefaultSnapshotSize = 300
	// trendsCacheTTL bounds how long a computed trends result is reused.
	trendsCacheTTL = 60 * time.Minute
)

// TopicsConfig carries the per-project knobs of a TopicsTracker.
type TopicsConfig struct {
	// IndexName is the time-series index snapshots go to and history
	// comes from.
	IndexName string
	// Locales is the project's language allow-list.
	Locales []string
	// RetweetWeight is the weighted-count increment of retweets. Must be
	// below 1 so fresh posts outweigh amplification.
	RetweetWeight float64
	// SnapshotSize caps tokens per epoch snapshot.
	SnapshotSize int
}

// TopicsTracker counts extracted tokens across three parallel ranked
// sets: a weighted mixture, tweets only and retweets only. Once per epoch
// Update persists a snapshot to the time-series sink and resets all three
// sets; GetTrends reads the accumulated hourly history back and derives
// velocities from it.
type TopicsTracker struct {
	weighted  *redis.RankedSet
	tweets    *redis.RankedSet
	retweets  *redis.RankedSet
	extractor *TokenExtractor
	sink      TimeSeriesSink
	clock     clockwork.Clock
	cfg       TopicsConfig

	mu    sync.Mutex
	cache map[trendsCacheKey]cachedTrends
}

type trendsCacheKey struct {
	hour   time.Time
	window int
	alpha  float64
	field  string
}

type cachedTrends struct {
	trends  map[string]TrendMetrics
	expires time.Time
}

// NewTopicsTracker assembles a tracker over its three backing sets.
func NewTopicsTracker(weighted, tweets, retweets *redis.RankedSet, extractor *TokenExtractor, sink TimeSeriesSink, clock clockwork.Clock, cfg TopicsConfig) *TopicsTracker {
	if cfg.RetweetWeight <= 0 || cfg.RetweetWeight >= 1 {
		cfg.RetweetWeight = DefaultRetweetWeight
	}
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = DefaultSnapshotSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TopicsTracker{
		weighted:  weighted,
		tweets:    tweets,
		retweets:  retweets,
		extractor: extractor,
		sink:      sink,
		clock:     clock,
		cfg:       cfg,
		cache:     map[trendsCacheKey]cachedTrends{},
	}
}

// Process counts one item's tokens. Items outside the project's locales
// or flagged sensitive are skipped.
func (t *TopicsTracker) Process(ctx context.Context, item *domain.Item) error {
	if !item.InLocales(t.cfg.Locales) || item.Sensitive() {
		return nil
	}
	tokens := t.extractor.Extract(item.BodyText())
	if len(tokens) == 0 {
		return nil
	}

	weight := 1.0
	counts := t.tweets
	if item.IsRetweet() {
		weight = t.cfg.RetweetWeight
		counts = t.retweets
	}
	for _, token := range tokens {
		if err := bumpToken(ctx, t.weighted, token, weight); err != nil {
			return err
		}
		if err := bumpToken(ctx, counts, token, 1); err != nil {
			return err
		}
	}
	return nil
}

func bumpToken(ctx context.Context, set *redis.RankedSet, token string, incr float64) error {
	exists, err := set.Exists(ctx, token)
	if err != nil {
		return err
	}
	if exists {
		return set.IncrementScore(ctx, token, incr)
	}
	_, err = set.Add(ctx, token, incr)
	return err
}

// Update closes the current epoch: the top tokens of all three views are
// written to the time-series sink as one snapshot per token, then every
// set is destroyed for the next epoch.
func (t *TopicsTracker) Update(ctx context.Context) error {
	members, err := t.weighted.MultiPop(ctx, t.cfg.SnapshotSize, 0, math.Inf(-1))
	if err != nil {
		return err
	}
	if len(members) > 0 {
		snapshots := make([]TokenSnapshot, 0, len(members))
		now := t.clock.Now().UTC()
		bucket := now.Truncate(time.Hour)
		for rank, m := range members {
			snap := TokenSnapshot{
				CreatedAt:  now,
				BucketTime: bucket,
				Hour:       now.Hour(),
				Term:       m.Key,
				Rank:       rank,
				Counts:     m.Score,
			}
			snap.CountsTweets, snap.RankTweets, err = t.standing(ctx, t.tweets, m.Key)
			if err != nil {
				return err
			}
			snap.CountsRetweets, snap.RankRetweets, err = t.standing(ctx, t.retweets, m.Key)
			if err != nil {
				return err
			}
			snap.CountsTotal = snap.CountsTweets + snap.CountsRetweets
			snapshots = append(snapshots, snap)
		}
		slog.InfoContext(ctx, "Persisting trending topics snapshot", "index", t.cfg.IndexName, "tokens", len(snapshots))
		if err := t.sink.IndexTokenCounts(ctx, t.cfg.IndexName, snapshots); err != nil {
			return err
		}
	}
	return t.Destroy(ctx)
}

// standing returns a token's count and rank in a side set. Tokens absent
// from the side set count zero and rank -1.
func (t *TopicsTracker) standing(ctx context.Context, set *redis.RankedSet, token string) (float64, int64, error) {
	score, ok, err := set.GetScore(ctx, token)
	if err != nil {
		return 0, -1, err
	}
	if !ok {
		return 0, -1, nil
	}
	rank, ok, err := set.GetRank(ctx, token)
	if err != nil || !ok {
		return score, -1, err
	}
	return score, rank, nil
}

// GetTrends derives all velocity metrics per token from the hourly
// history of the given field over the last window hours. With useCache
// the full result is reused while the wall-clock hour and parameters
// stay the same.
func (t *TopicsTracker) GetTrends(ctx context.Context, window int, alpha float64, field string, useCache bool) (map[string]TrendMetrics, error) {
	now := t.clock.Now().UTC()
	key := trendsCacheKey{hour: now.Truncate(time.Hour), window: window, alpha: alpha, field: field}
	if useCache {
		t.mu.Lock()
		entry, ok := t.cache[key]
		t.mu.Unlock()
		if ok && now.Before(entry.expires) {
			return entry.trends, nil
		}
	}

	since := now.Add(-time.Duration(window) * time.Hour)
	history, err := t.sink.HourlyCounts(ctx, t.cfg.IndexName, field, since, now)
	if err != nil {
		return nil, err
	}

	trends := make(map[string]TrendMetrics, len(history))
	for token, buckets := range history {
		series := make([]float64, len(buckets))
		for i, b := range buckets {
			series[i] = b.Count
		}
		trends[token] = computeMetrics(series, alpha)
	}

	if useCache {
		t.mu.Lock()
		t.cache[key] = cachedTrends{trends: trends, expires: now.Add(trendsCacheTTL)}
		t.mu.Unlock()
	}
	return trends, nil
}

// GetTrendingTopics returns the n tokens ranking highest under the chosen
// metric.
func (t *TopicsTracker) GetTrendingTopics(ctx context.Context, n int, method string, window int, alpha float64, field string, useCache bool) ([]string, error) {
	trends, err := t.GetTrends(ctx, window, alpha, field, useCache)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(trends))
	for token := range trends {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		mi := trends[tokens[i]].MetricBy(method)
		mj := trends[tokens[j]].MetricBy(method)
		if mi == mj {
			return tokens[i] < tokens[j]
		}
		return mi > mj
	})
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return tokens, nil
}

// Destroy drops all three ranked sets.
func (t *TopicsTracker) Destroy(ctx context.Context) error {
	for _, set := range []*redis.RankedSet{t.weighted, t.tweets, t.retweets} {
		if err := set.Destroy(ctx); err != nil {
			return err
		}
	}
	return nil
}
