package ingest

import (
	"math/rand"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/crowdsense/streamd/internal/annotation"
	"github.com/crowdsense/streamd/internal/config"
	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/trending"
)

// Components bundles the per-project processing stages. Each project gets
// its own key space derived from its slug.
type Components struct {
	Annotation *annotation.Queue
	Tweets     *trending.TweetsTracker
	Topics     *trending.TopicsTracker
}

// Registry lazily builds and caches per-project components. All projects
// share the one Redis client; only key prefixes differ.
type Registry struct {
	client     *redis.Client
	cfg        *config.Config
	search     trending.SearchSink
	timeseries trending.TimeSeriesSink
	tagger     domain.Tagger
	clock      clockwork.Clock
	rng        *rand.Rand

	mu         sync.Mutex
	components map[string]*Components
}

// NewRegistry creates a component registry. rng may be nil outside tests.
func NewRegistry(client *redis.Client, cfg *config.Config, search trending.SearchSink, timeseries trending.TimeSeriesSink, tagger domain.Tagger, clock clockwork.Clock, rng *rand.Rand) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		client:     client,
		cfg:        cfg,
		search:     search,
		timeseries: timeseries,
		tagger:     tagger,
		clock:      clock,
		rng:        rng,
		components: map[string]*Components{},
	}
}

// For returns the components of a project, building them on first use.
func (r *Registry) For(d domain.ProjectDescriptor) *Components {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.components[d.Slug]; ok {
		return c
	}
	c := r.build(d)
	r.components[d.Slug] = c
	return c
}

// All returns every component set built so far. The scheduler sweeps over
// these.
func (r *Registry) All() map[string]*Components {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Components, len(r.components))
	for slug, c := range r.components {
		out[slug] = c
	}
	return out
}

func (r *Registry) build(d domain.ProjectDescriptor) *Components {
	ns := r.cfg.RedisNamespace

	pq := redis.NewRankedSet(r.client, redis.Key(ns, "pq", d.Slug), int64(r.cfg.AnnotationMaxSize), r.rng)
	labellers := redis.NewMemberSet(r.client, redis.Key(ns, "pq-labellers", d.Slug))
	payloads := redis.NewPayloadStore(r.client, redis.Key(ns, "pq-payloads", d.Slug))

	tweetsSet := redis.NewRankedSet(r.client, redis.Key(ns, "trending-tweets", d.Slug), int64(r.cfg.TrendingMaxSize), r.rng)
	markers := redis.NewExpiryMarkers(r.client, redis.Key(ns, "trending-tweets-expiry", d.Slug))

	weighted := redis.NewRankedSet(r.client, redis.Key(ns, "trending-topics", d.Slug), int64(r.cfg.TopicsMaxSize), r.rng)
	topicTweets := redis.NewRankedSet(r.client, redis.Key(ns, "trending-topics-tweets", d.Slug), int64(r.cfg.TopicsMaxSize), r.rng)
	topicRetweets := redis.NewRankedSet(r.client, redis.Key(ns, "trending-topics-retweets", d.Slug), int64(r.cfg.TopicsMaxSize), r.rng)

	return &Components{
		Annotation: annotation.New(pq, labellers, payloads, r.cfg.LabelThreshold),
		Tweets: trending.NewTweetsTracker(tweetsSet, markers, r.search, trending.TweetsConfig{
			IndexName: d.IndexName,
			Locales:   d.Langs,
			Expiry:    r.cfg.TweetExpiry,
			Capacity:  r.cfg.TrendingMaxSize,
		}),
		Topics: trending.NewTopicsTracker(weighted, topicTweets, topicRetweets,
			trending.NewTokenExtractor(r.tagger, d.Keywords), r.timeseries, r.clock,
			trending.TopicsConfig{
				IndexName:     "trending_topics_" + d.Slug,
				Locales:       d.Langs,
				RetweetWeight: r.cfg.RetweetWeight,
			}),
	}
}
