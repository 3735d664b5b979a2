package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdsense/streamd/internal/elastic"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/storage"
)

func TestSchedulerFiresIndexFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := redis.NewClientFromRDB(rdb)

	clock := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.CleanupInterval = time.Hour
	cfg.TopicsEpochInterval = time.Hour
	cfg.ArchiveFlushInterval = time.Hour
	cfg.IndexFlushInterval = time.Minute

	stub := &bulkStub{}
	indexBuf := redis.NewBufferGroup(client, redis.Key("cs", "es-queue"))
	replay, err := elastic.NewReplayStore(t.TempDir())
	require.NoError(t, err)
	indexer := NewIndexer(indexBuf, stub, replay)

	raw, err := json.Marshal(elastic.BulkAction{Index: "project_measles", ID: "t1", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, indexBuf.Push(ctx, "measles", raw))

	registry := NewRegistry(client, cfg, nil, noopSink{}, nounTagger{}, clock, nil)
	archiveBuf := redis.NewBufferGroup(client, redis.Key("cs", "s3-queue"))
	archiver := storage.NewArchiver(nil, archiveBuf, "", clock)
	counts := redis.NewDailyCounts(client, redis.Key("cs", "counts"), clock)

	scheduler := NewScheduler(cfg, registry, archiver, indexer, counts, clock)
	go scheduler.Run(ctx)

	// Six job loops wait on the fake clock before time moves.
	clock.BlockUntil(6)
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool {
		return stub.batchCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "index flush fires on its interval")
}
