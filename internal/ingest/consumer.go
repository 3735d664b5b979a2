package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/crowdsense/streamd/internal/redis"
)

// popTimeout bounds each blocking pull so shutdown is noticed promptly.
const popTimeout = 5 * time.Second

// Consumer is one worker pulling raw items off the shared inbound queue.
// A bad item never stops the loop; only context cancellation does.
type Consumer struct {
	queue    *redis.ListQueue
	pipeline *Pipeline
	id       int
}

// NewConsumer creates a worker over the inbound queue.
func NewConsumer(queue *redis.ListQueue, pipeline *Pipeline, id int) *Consumer {
	return &Consumer{queue: queue, pipeline: pipeline, id: id}
}

// Run pulls and processes items until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	log := slog.With("worker", c.id)
	log.InfoContext(ctx, "Consumer started")
	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "Consumer stopped")
			return
		default:
		}

		raw, err := c.queue.BPop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.InfoContext(ctx, "Consumer stopped")
				return
			}
			log.ErrorContext(ctx, "Failed to pull from inbound queue", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if raw == nil {
			continue
		}

		if err := c.pipeline.Process(ctx, raw); err != nil {
			log.ErrorContext(ctx, "Failed to process item", "error", err)
		}
	}
}
