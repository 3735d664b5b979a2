package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/crowdsense/streamd/internal/elastic"
	"github.com/crowdsense/streamd/internal/metrics"
	"github.com/crowdsense/streamd/internal/redis"
)

// BulkIndexer is the slice of the search cluster API the indexer needs.
type BulkIndexer interface {
	BulkIndex(ctx context.Context, actions []elastic.BulkAction) error
}

// Indexer flushes buffered index actions to the search cluster. One bulk
// attempt per batch; a rejected batch goes to the replay store instead of
// back into the buffer, so the ingest loop never sees sink failures.
type Indexer struct {
	buffers *redis.BufferGroup
	client  BulkIndexer
	replay  *elastic.ReplayStore
}

// NewIndexer assembles an index sink flusher.
func NewIndexer(buffers *redis.BufferGroup, client BulkIndexer, replay *elastic.ReplayStore) *Indexer {
	return &Indexer{buffers: buffers, client: client, replay: replay}
}

// FlushAll drains every project buffer and bulk-submits its actions.
func (ix *Indexer) FlushAll(ctx context.Context) error {
	projects, err := ix.buffers.Projects(ctx)
	if err != nil {
		return err
	}
	for _, project := range projects {
		if err := ix.flushProject(ctx, project); err != nil {
			return err
		}
	}
	return nil
}

// Replay resubmits batches a previous flush left in the replay store.
func (ix *Indexer) Replay(ctx context.Context) error {
	return ix.replay.Resubmit(ctx, ix.client)
}

func (ix *Indexer) flushProject(ctx context.Context, project string) error {
	payloads, err := ix.buffers.Drain(ctx, project)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}

	actions := make([]elastic.BulkAction, 0, len(payloads))
	for _, p := range payloads {
		var a elastic.BulkAction
		if err := json.Unmarshal(p, &a); err != nil {
			slog.WarnContext(ctx, "Dropping unparseable index action", "project", project)
			continue
		}
		actions = append(actions, a)
	}
	if len(actions) == 0 {
		return nil
	}

	if err := ix.client.BulkIndex(ctx, actions); err != nil {
		metrics.SinkFailures.WithLabelValues("elasticsearch").Inc()
		path, saveErr := ix.replay.Save(actions)
		if saveErr != nil {
			return saveErr
		}
		slog.ErrorContext(ctx, "Bulk index failed, batch saved for replay", "project", project, "file", path, "error", err)
		return nil
	}

	metrics.BatchesFlushed.WithLabelValues("elasticsearch").Inc()
	slog.InfoContext(ctx, "Indexed batch", "project", project, "actions", len(actions))
	return nil
}
