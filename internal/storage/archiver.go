// Package storage archives raw items to object storage. Items accumulate
// in per-project Redis buffers and are flushed periodically as
// newline-delimited batch files.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/crowdsense/streamd/internal/metrics"
	"github.com/crowdsense/streamd/internal/redis"
)

// ObjectPutter is the slice of the S3 API the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver drains per-project buffers into dated batch objects.
type Archiver struct {
	putter  ObjectPutter
	buffers *redis.BufferGroup
	bucket  string
	clock   clockwork.Clock
}

// NewArchiver assembles an archiver. A nil clock falls back to wall time.
func NewArchiver(putter ObjectPutter, buffers *redis.BufferGroup, bucket string, clock clockwork.Clock) *Archiver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Archiver{putter: putter, buffers: buffers, bucket: bucket, clock: clock}
}

// Buffer appends one raw item to a project's archive buffer.
func (a *Archiver) Buffer(ctx context.Context, project string, raw []byte) error {
	return a.buffers.Push(ctx, project, raw)
}

// FlushAll uploads every non-empty project buffer as one batch object. A
// failed upload requeues its batch; the error is logged and counted, not
// returned, so one project's failure never blocks the others.
func (a *Archiver) FlushAll(ctx context.Context) error {
	if a.putter == nil {
		// No object store configured; batches stay buffered.
		return nil
	}
	projects, err := a.buffers.Projects(ctx)
	if err != nil {
		return err
	}
	for _, project := range projects {
		if err := a.flushProject(ctx, project); err != nil {
			metrics.SinkFailures.WithLabelValues("s3").Inc()
			slog.ErrorContext(ctx, "Archive upload failed, batch requeued", "project", project, "error", err)
		}
	}
	return nil
}

func (a *Archiver) flushProject(ctx context.Context, project string) error {
	payloads, err := a.buffers.Drain(ctx, project)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}

	key := a.objectKey(project)
	body := bytes.Join(payloads, []byte("\n"))
	_, err = a.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		if reqErr := a.buffers.Requeue(ctx, project, payloads); reqErr != nil {
			return fmt.Errorf("upload failed (%w) and requeue failed: %w", err, reqErr)
		}
		return err
	}

	metrics.BatchesFlushed.WithLabelValues("s3").Inc()
	slog.InfoContext(ctx, "Archived batch", "project", project, "key", key, "items", len(payloads))
	return nil
}

func (a *Archiver) objectKey(project string) string {
	now := a.clock.Now().UTC()
	return fmt.Sprintf("tweets/%s/%s/tweets-%s-%s.jsonl",
		project, now.Format("2006-01-02"), uuid.NewString(), now.Format("20060102150405"))
}
