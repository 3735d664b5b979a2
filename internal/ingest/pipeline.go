package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/elastic"
	"github.com/crowdsense/streamd/internal/logging"
	"github.com/crowdsense/streamd/internal/match"
	"github.com/crowdsense/streamd/internal/metrics"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/storage"
)

// Pipeline routes one raw inbound item through matching, archiving,
// trending, annotation and indexing. It never returns an error for a bad
// item; only infrastructure failures propagate.
type Pipeline struct {
	source   domain.ProjectSource
	registry *Registry
	archiver *storage.Archiver
	indexBuf *redis.BufferGroup
	counts   *redis.DailyCounts
	spill    *SpillStore

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPipeline assembles the orchestration. A nil rng falls back to a
// time-seeded source; tests inject a fixed seed so the confidence-based
// annotation skip is deterministic.
func NewPipeline(source domain.ProjectSource, registry *Registry, archiver *storage.Archiver, indexBuf *redis.BufferGroup, counts *redis.DailyCounts, spill *SpillStore, rng *rand.Rand) *Pipeline {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pipeline{
		source:   source,
		registry: registry,
		archiver: archiver,
		indexBuf: indexBuf,
		counts:   counts,
		spill:    spill,
		rng:      rng,
	}
}

// Process handles one raw item end to end. Malformed and unmatched items
// are logged, counted and dropped.
func (p *Pipeline) Process(ctx context.Context, raw []byte) error {
	metrics.ItemsConsumed.Inc()
	timer := time.Now()
	defer func() { metrics.ProcessDuration.Observe(time.Since(timer).Seconds()) }()

	item, err := domain.ParseItem(raw)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedItem) {
			metrics.ItemsMalformed.Inc()
			slog.WarnContext(ctx, "Dropping malformed item")
			return nil
		}
		return err
	}
	log := logging.WithItem(item.ID)

	descriptors, err := p.source.Projects(ctx)
	if err != nil {
		return err
	}

	results := match.Projects(item, descriptors)
	if len(results) == 0 {
		metrics.ItemsUnmatched.Inc()
		log.WarnContext(ctx, "No project matched item, spilling")
		return p.spill.Save(item.ID, raw)
	}

	bySlug := make(map[string]domain.ProjectDescriptor, len(descriptors))
	for _, d := range descriptors {
		bySlug[d.Slug] = d
	}

	for _, res := range results {
		d, ok := bySlug[res.Slug]
		if !ok {
			continue
		}
		if err := p.processForProject(ctx, d, item, raw, res.Fragments); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) processForProject(ctx context.Context, d domain.ProjectDescriptor, item *domain.Item, raw []byte, fragments []string) error {
	metrics.ItemsMatched.WithLabelValues(d.Slug).Inc()

	if d.StorageEnabled {
		if err := p.archiver.Buffer(ctx, d.Slug, raw); err != nil {
			return err
		}
	}
	if err := p.counts.Increment(ctx, d.Slug); err != nil {
		return err
	}

	rec := domain.NewRecord(item, d.Slug, fragments)
	comps := p.registry.For(d)

	if d.TrendingTweetsEnabled {
		if err := comps.Tweets.Process(ctx, item); err != nil {
			return err
		}
	}
	if d.TrendingTopicsEnabled {
		if err := comps.Topics.Process(ctx, item); err != nil {
			return err
		}
	}
	if d.AnnotationEnabled && p.annotationEligible(item, d) {
		if err := comps.Annotation.AddItem(ctx, rec, 0); err != nil {
			return err
		}
	}

	return p.bufferForIndex(ctx, d, rec)
}

// annotationEligible decides whether an item should be offered to human
// labellers. Retweets, quotes, sensitivity-flagged items and items outside
// the project locale are excluded. Items with an attached classifier
// confidence are skipped with probability equal to that confidence, so
// the queue favours items the model is unsure about.
func (p *Pipeline) annotationEligible(item *domain.Item, d domain.ProjectDescriptor) bool {
	if item.IsRetweet() || item.IsQuote() || item.Sensitive() {
		return false
	}
	if !item.InLocales(d.Langs) {
		return false
	}
	if item.ModelConfidence > 0 && p.float64() < item.ModelConfidence {
		return false
	}
	return true
}

func (p *Pipeline) float64() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

func (p *Pipeline) bufferForIndex(ctx context.Context, d domain.ProjectDescriptor, rec domain.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	action, err := json.Marshal(elastic.BulkAction{Index: d.IndexName, ID: rec.ID, Body: body})
	if err != nil {
		return err
	}
	return p.indexBuf.Push(ctx, d.Slug, action)
}
