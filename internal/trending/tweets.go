package trending

import (
	"context"
	"log/slog"
	"time"

	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/redis"
)

// DefaultTweetExpiry bounds how long a retweeted original stays ranked
// without the cleanup sweep removing it.
const DefaultTweetExpiry = 48 * time.Hour

// TweetsConfig carries the per-project knobs of a TweetsTracker.
type TweetsConfig struct {
	// IndexName is the search index queried in query mode. Empty disables
	// query mode.
	IndexName string
	// Locales is the project's language allow-list.
	Locales []string
	// Expiry is the TTL of a member's companion marker.
	Expiry time.Duration
	// Capacity is the oversampling size used in query mode. It should
	// match the ranked set's capacity bound.
	Capacity int
}

// TweetsTracker ranks retweeted originals by retweet count. Each member
// carries a TTL marker; once the marker lapses the member is removed by
// the next Cleanup sweep, keeping membership time-bounded.
type TweetsTracker struct {
	ranked  *redis.RankedSet
	markers *redis.ExpiryMarkers
	search  SearchSink
	cfg     TweetsConfig
}

// NewTweetsTracker assembles a tracker. search may be nil, which disables
// query mode.
func NewTweetsTracker(ranked *redis.RankedSet, markers *redis.ExpiryMarkers, search SearchSink, cfg TweetsConfig) *TweetsTracker {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTweetExpiry
	}
	return &TweetsTracker{ranked: ranked, markers: markers, search: search, cfg: cfg}
}

// Process counts one item. Anything that is not a retweet is ignored; the
// wrapped original's score rises by one and, on first sight, gets its
// expiry marker.
func (t *TweetsTracker) Process(ctx context.Context, item *domain.Item) error {
	if !t.shouldProcess(item) {
		return nil
	}
	original := item.RetweetedStatus

	exists, err := t.ranked.Exists(ctx, original.ID)
	if err != nil {
		return err
	}
	if exists {
		return t.ranked.IncrementScore(ctx, original.ID, 1)
	}
	if _, err := t.ranked.Add(ctx, original.ID, 1); err != nil {
		return err
	}
	return t.markers.Set(ctx, original.ID, t.cfg.Expiry)
}

func (t *TweetsTracker) shouldProcess(item *domain.Item) bool {
	if !item.IsRetweet() {
		return false
	}
	if !item.InLocales(t.cfg.Locales) {
		return false
	}
	if item.Sensitive() {
		return false
	}
	return true
}

// GetTrending returns up to n trending ids. Without a query this is a
// plain MultiPop. With a query, the whole working set is oversampled and
// the search sink filters it down to ids whose text matches.
func (t *TweetsTracker) GetTrending(ctx context.Context, n int, query string, sampleFrom int, minScore float64) ([]string, error) {
	if query == "" || t.search == nil || t.cfg.IndexName == "" {
		members, err := t.ranked.MultiPop(ctx, n, sampleFrom, minScore)
		if err != nil {
			return nil, err
		}
		return memberKeys(members), nil
	}

	members, err := t.ranked.MultiPop(ctx, t.cfg.Capacity, 0, minScore)
	if err != nil {
		return nil, err
	}
	return t.search.FilterIDsByQuery(ctx, t.cfg.IndexName, query, memberKeys(members), n)
}

// Cleanup removes every member whose expiry marker has lapsed. It must be
// invoked periodically by an external scheduler; a member may sit expired
// but present for up to one sweep interval.
func (t *TweetsTracker) Cleanup(ctx context.Context) (int, error) {
	keys, err := t.ranked.Keys(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		live, err := t.markers.Exists(ctx, key)
		if err != nil {
			return deleted, err
		}
		if live {
			continue
		}
		if err := t.ranked.Remove(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	slog.InfoContext(ctx, "Trending tweets cleanup finished", "deleted", deleted, "scanned", len(keys))
	return deleted, nil
}

// Size returns the current number of tracked originals.
func (t *TweetsTracker) Size(ctx context.Context) (int64, error) {
	return t.ranked.Size(ctx)
}

// Destroy drops the ranked set and every marker.
func (t *TweetsTracker) Destroy(ctx context.Context) error {
	if err := t.ranked.Destroy(ctx); err != nil {
		return err
	}
	return t.markers.DeleteAll(ctx)
}

func memberKeys(members []redis.Member) []string {
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, m.Key)
	}
	return keys
}
