package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdsense/streamd/internal/redis"
)

type putterStub struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (p *putterStub) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	p.keys = append(p.keys, *params.Key)
	p.bodies = append(p.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func newArchiver(t *testing.T, putter ObjectPutter) (*Archiver, *redis.BufferGroup) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := redis.NewClientFromRDB(rdb)

	buffers := redis.NewBufferGroup(client, redis.Key("cs", "s3-queue"))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC))
	return NewArchiver(putter, buffers, "crowdsense-archive", clock), buffers
}

func TestFlushAllUploadsBatches(t *testing.T) {
	ctx := context.Background()
	putter := &putterStub{}
	archiver, buffers := newArchiver(t, putter)

	require.NoError(t, archiver.Buffer(ctx, "measles", []byte(`{"id_str":"1"}`)))
	require.NoError(t, archiver.Buffer(ctx, "measles", []byte(`{"id_str":"2"}`)))

	require.NoError(t, archiver.FlushAll(ctx))

	require.Len(t, putter.keys, 1)
	assert.Regexp(t, `^tweets/measles/2026-08-31/tweets-[0-9a-f-]+-20260831093000\.jsonl$`, putter.keys[0])
	assert.Equal(t, "{\"id_str\":\"1\"}\n{\"id_str\":\"2\"}", string(putter.bodies[0]))

	n, err := buffers.Len(ctx, "measles")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestFlushAllRequeuesOnFailure(t *testing.T) {
	ctx := context.Background()
	putter := &putterStub{err: errors.New("boom")}
	archiver, buffers := newArchiver(t, putter)

	require.NoError(t, archiver.Buffer(ctx, "measles", []byte(`{"id_str":"1"}`)))

	// The error is absorbed, not returned.
	require.NoError(t, archiver.FlushAll(ctx))

	n, err := buffers.Len(ctx, "measles")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "failed batch goes back into the buffer")
}

func TestFlushAllNoWork(t *testing.T) {
	ctx := context.Background()
	putter := &putterStub{}
	archiver, _ := newArchiver(t, putter)

	require.NoError(t, archiver.FlushAll(ctx))
	assert.Empty(t, putter.keys)
}
