package trending

import (
	"context"
	"time"
)

// SearchSink filters a candidate id pool down to ids whose indexed text
// matches a query. Used by TweetsTracker's query mode.
type SearchSink interface {
	FilterIDsByQuery(ctx context.Context, index, query string, ids []string, size int) ([]string, error)
}

// TokenSnapshot is one token's standing at the end of an epoch, under all
// three count views.
type TokenSnapshot struct {
	CreatedAt     time.Time `json:"created_at"`
	BucketTime    time.Time `json:"bucket_time"`
	Hour          int       `json:"hour"`
	Term          string    `json:"term"`
	Rank          int       `json:"rank"`
	RankTweets    int64     `json:"rank_tweets"`
	RankRetweets  int64     `json:"rank_retweets"`
	Counts        float64   `json:"counts"`
	CountsTweets  float64   `json:"counts_tweets"`
	CountsRetweets float64  `json:"counts_retweets"`
	CountsTotal   float64   `json:"counts_total"`
}

// HourBucket is one hourly count of a token's history.
type HourBucket struct {
	Time  time.Time
	Count float64
}

// TimeSeriesSink persists epoch snapshots and serves the hourly history
// the velocity computation reads back.
type TimeSeriesSink interface {
	IndexTokenCounts(ctx context.Context, index string, snapshots []TokenSnapshot) error
	HourlyCounts(ctx context.Context, index, field string, since, until time.Time) (map[string][]HourBucket, error)
}
