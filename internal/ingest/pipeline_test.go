package ingest

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdsense/streamd/internal/config"
	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/elastic"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/storage"
	"github.com/crowdsense/streamd/internal/trending"
)

type sourceStub struct {
	descriptors []domain.ProjectDescriptor
}

func (s *sourceStub) Projects(context.Context) ([]domain.ProjectDescriptor, error) {
	return s.descriptors, nil
}

type nounTagger struct{}

func (nounTagger) Tag(text string) []domain.Token {
	var tokens []domain.Token
	for _, w := range strings.Fields(text) {
		tokens = append(tokens, domain.Token{Text: w, Tag: "NOUN"})
	}
	return tokens
}

type pipelineFixture struct {
	pipeline *Pipeline
	registry *Registry
	client   *redis.Client
	indexBuf *redis.BufferGroup
	archive  *redis.BufferGroup
	counts   *redis.DailyCounts
	spillDir string
}

func testConfig() *config.Config {
	return &config.Config{
		RedisNamespace:    "cs",
		AnnotationMaxSize: 1000,
		LabelThreshold:    3,
		TrendingMaxSize:   1000,
		TopicsMaxSize:     1000,
		RetweetWeight:     0.2,
		TweetExpiry:       48 * time.Hour,
	}
}

func newPipelineFixture(t *testing.T, descriptors []domain.ProjectDescriptor) *pipelineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := redis.NewClientFromRDB(rdb)

	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	rng := rand.New(rand.NewSource(5))

	registry := NewRegistry(client, cfg, nil, noopSink{}, nounTagger{}, clock, rng)

	archiveBuf := redis.NewBufferGroup(client, redis.Key("cs", "s3-queue"))
	archiver := storage.NewArchiver(nil, archiveBuf, "bucket", clock)
	indexBuf := redis.NewBufferGroup(client, redis.Key("cs", "es-queue"))
	counts := redis.NewDailyCounts(client, redis.Key("cs", "counts"), clock)

	spillDir := t.TempDir()
	spill, err := NewSpillStore(spillDir)
	require.NoError(t, err)

	source := &sourceStub{descriptors: descriptors}
	pipeline := NewPipeline(source, registry, archiver, indexBuf, counts, spill, rng)
	return &pipelineFixture{
		pipeline: pipeline,
		registry: registry,
		client:   client,
		indexBuf: indexBuf,
		archive:  archiveBuf,
		counts:   counts,
		spillDir: spillDir,
	}
}

type noopSink struct{}

func (noopSink) IndexTokenCounts(context.Context, string, []trending.TokenSnapshot) error {
	return nil
}

func (noopSink) HourlyCounts(context.Context, string, string, time.Time, time.Time) (map[string][]trending.HourBucket, error) {
	return nil, nil
}

func fullProject(slug string) domain.ProjectDescriptor {
	return domain.ProjectDescriptor{
		Slug:                  slug,
		IndexName:             "project_" + slug,
		Keywords:              []string{"measles"},
		Langs:                 []string{"en"},
		StorageEnabled:        true,
		AnnotationEnabled:     true,
		TrendingTweetsEnabled: true,
		TrendingTopicsEnabled: true,
	}
}

func rawItem(t *testing.T, item domain.Item) []byte {
	t.Helper()
	raw, err := json.Marshal(item)
	require.NoError(t, err)
	return raw
}

func TestProcessMalformedItemDropped(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, []domain.ProjectDescriptor{fullProject("measles"), fullProject("flu")})

	require.NoError(t, f.pipeline.Process(ctx, []byte("not json")))
	require.NoError(t, f.pipeline.Process(ctx, []byte(`{"text":"no id"}`)))

	entries, err := os.ReadDir(f.spillDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "malformed items are dropped, not spilled")
}

func TestProcessUnmatchedItemSpilled(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, []domain.ProjectDescriptor{
		fullProject("measles"),
		{Slug: "flu", IndexName: "project_flu", Keywords: []string{"influenza"}},
	})

	raw := rawItem(t, domain.Item{ID: "t1", Text: "nothing relevant here", Lang: "en"})
	require.NoError(t, f.pipeline.Process(ctx, raw))

	spilled, err := os.ReadFile(filepath.Join(f.spillDir, "t1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(spilled))
}

func TestProcessMatchedItemFansOut(t *testing.T) {
	ctx := context.Background()
	d := fullProject("measles")
	f := newPipelineFixture(t, []domain.ProjectDescriptor{d, {Slug: "other", Keywords: []string{"unrelated"}}})

	raw := rawItem(t, domain.Item{ID: "t1", Text: "measles outbreak reported", Lang: "en"})
	require.NoError(t, f.pipeline.Process(ctx, raw))

	// Raw item buffered for archiving.
	n, err := f.archive.Len(ctx, "measles")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Daily counter bumped.
	count, err := f.counts.Get(ctx, "measles", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Annotation queue got the projected record.
	comps := f.registry.For(d)
	size, err := comps.Annotation.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	rec, ok, err := comps.Annotation.NextFor(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", rec.ID)
	assert.Equal(t, "measles", rec.Project)
	assert.Equal(t, []string{"measles"}, rec.MatchedKeywords)

	// Index buffer carries a parseable bulk action.
	payloads, err := f.indexBuf.Drain(ctx, "measles")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	var action elastic.BulkAction
	require.NoError(t, json.Unmarshal(payloads[0], &action))
	assert.Equal(t, "project_measles", action.Index)
	assert.Equal(t, "t1", action.ID)
}

func TestProcessRetweetSkipsAnnotationButCountsTrending(t *testing.T) {
	ctx := context.Background()
	d := fullProject("measles")
	f := newPipelineFixture(t, []domain.ProjectDescriptor{d, {Slug: "other", Keywords: []string{"unrelated"}}})

	raw := rawItem(t, domain.Item{
		ID:   "t2",
		Text: "RT measles",
		Lang: "en",
		RetweetedStatus: &domain.Item{
			ID:   "o1",
			Text: "measles original",
			Lang: "en",
		},
	})
	require.NoError(t, f.pipeline.Process(ctx, raw))

	comps := f.registry.For(d)
	size, err := comps.Annotation.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "retweets never enter the annotation queue")

	trendingSize, err := comps.Tweets.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trendingSize, "the wrapped original is tracked")
}

func TestProcessConfidenceSkip(t *testing.T) {
	ctx := context.Background()
	d := fullProject("measles")
	f := newPipelineFixture(t, []domain.ProjectDescriptor{d, {Slug: "other", Keywords: []string{"unrelated"}}})

	// A confidence of 1.0 always wins against rng.Float64() in [0,1).
	raw := rawItem(t, domain.Item{ID: "t3", Text: "measles case", Lang: "en", ModelConfidence: 1.0})
	require.NoError(t, f.pipeline.Process(ctx, raw))

	comps := f.registry.For(d)
	size, err := comps.Annotation.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "high-confidence items are skipped")

	// Without a confidence the item goes in.
	raw = rawItem(t, domain.Item{ID: "t4", Text: "measles case", Lang: "en"})
	require.NoError(t, f.pipeline.Process(ctx, raw))

	size, err = comps.Annotation.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}
