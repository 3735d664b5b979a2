package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/crowdsense/streamd/internal/config"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/storage"
)

// countsRetentionDays bounds how far back daily ingest counters are kept.
const countsRetentionDays = 90

// replayInterval paces resubmission of bulk batches the cluster rejected.
const replayInterval = 15 * time.Minute

// Scheduler drives the periodic sweeps: trending-tweet cleanup, the
// trending-topics epoch snapshot, archive and index flushes and counter
// trimming. All timing lives here; the swept components do none of their
// own.
type Scheduler struct {
	cfg      *config.Config
	registry *Registry
	archiver *storage.Archiver
	indexer  *Indexer
	counts   *redis.DailyCounts
	clock    clockwork.Clock
}

// NewScheduler assembles the periodic job runner.
func NewScheduler(cfg *config.Config, registry *Registry, archiver *storage.Archiver, indexer *Indexer, counts *redis.DailyCounts, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{cfg: cfg, registry: registry, archiver: archiver, indexer: indexer, counts: counts, clock: clock}
}

// Run blocks until the context is cancelled, firing each job on its own
// interval. Job failures are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"trending-tweets-cleanup", s.cfg.CleanupInterval, s.cleanupTrendingTweets},
		{"trending-topics-epoch", s.cfg.TopicsEpochInterval, s.rolloverTopics},
		{"archive-flush", s.cfg.ArchiveFlushInterval, s.archiver.FlushAll},
		{"index-flush", s.cfg.IndexFlushInterval, s.indexer.FlushAll},
		{"index-replay", replayInterval, s.indexer.Replay},
		{"counts-trim", 24 * time.Hour, s.trimCounts},
	}

	for _, job := range jobs {
		go s.loop(ctx, job.name, job.interval, job.run)
	}
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := run(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic job failed", "job", name, "error", err)
			}
		}
	}
}

func (s *Scheduler) cleanupTrendingTweets(ctx context.Context) error {
	for slug, comps := range s.registry.All() {
		if _, err := comps.Tweets.Cleanup(ctx); err != nil {
			slog.ErrorContext(ctx, "Trending tweets cleanup failed", "project", slug, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) rolloverTopics(ctx context.Context) error {
	for slug, comps := range s.registry.All() {
		if err := comps.Topics.Update(ctx); err != nil {
			slog.ErrorContext(ctx, "Trending topics epoch rollover failed", "project", slug, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) trimCounts(ctx context.Context) error {
	return s.counts.Trim(ctx, countsRetentionDays)
}
