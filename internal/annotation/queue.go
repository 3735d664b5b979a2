// Package annotation serves work items to human labellers.
//
// Items sit in a capacity-bounded ranked set ordered by cumulative label
// count. A per-item membership set remembers which users already labelled
// an item so nobody sees the same item twice, and a payload store keeps
// the projected item alongside. Once an item collects enough distinct
// labels it is retired.
package annotation

import (
	"context"
	"log/slog"
	"math"

	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/redis"
)

const (
	// DefaultMaxSize bounds the working set of a project's queue.
	DefaultMaxSize = 1000
	// DefaultThreshold is the label count at which an item retires.
	DefaultThreshold = 3
	// scanWindow is the page size of the no-repeat scan in NextFor.
	scanWindow = 3
)

// Queue is one project's annotation queue.
type Queue struct {
	ranked    *redis.RankedSet
	labellers *redis.MemberSet
	payloads  *redis.PayloadStore
	threshold int
}

// New assembles a queue from its three backing stores.
func New(ranked *redis.RankedSet, labellers *redis.MemberSet, payloads *redis.PayloadStore, threshold int) *Queue {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Queue{ranked: ranked, labellers: labellers, payloads: payloads, threshold: threshold}
}

// AddItem inserts a record with the given starting priority. Payloads of
// members evicted by the capacity bound are purged in the same call so
// they cannot orphan.
func (q *Queue) AddItem(ctx context.Context, rec domain.Record, priority float64) error {
	evicted, err := q.ranked.Add(ctx, rec.ID, priority)
	if err != nil {
		return err
	}
	for _, id := range evicted {
		if err := q.payloads.Delete(ctx, id); err != nil {
			return err
		}
	}
	return q.payloads.Set(ctx, rec.ID, rec)
}

// NextFor returns the next record for a user to label. With an empty
// userID the highest-priority item is returned outright. Otherwise the
// ranked set is scanned from the top in fixed-size windows and the first
// item the user has not labelled yet wins. The second return value is
// false when nothing admissible is left; the caller supplies a fallback.
func (q *Queue) NextFor(ctx context.Context, userID string) (domain.Record, bool, error) {
	var id string
	if userID == "" {
		top, ok, err := q.ranked.Pop(ctx, false)
		if err != nil || !ok {
			return domain.Record{}, false, err
		}
		id = top
	} else {
		found, ok, err := q.scanFor(ctx, userID)
		if err != nil || !ok {
			return domain.Record{}, false, err
		}
		id = found
	}

	var rec domain.Record
	ok, err := q.payloads.Get(ctx, id, &rec)
	if err != nil {
		return domain.Record{}, false, err
	}
	if !ok {
		// Payload lost between the two reads; serve the bare id.
		return domain.Record{ID: id}, true, nil
	}
	return rec, true, nil
}

func (q *Queue) scanFor(ctx context.Context, userID string) (string, bool, error) {
	size, err := q.ranked.Size(ctx)
	if err != nil {
		return "", false, err
	}
	for start := 0; start <= int(size); start += scanWindow {
		members, err := q.ranked.Page(ctx, start, scanWindow)
		if err != nil {
			return "", false, err
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			labelled, err := q.labellers.Contains(ctx, m.Key, userID)
			if err != nil {
				return "", false, err
			}
			if !labelled {
				return m.Key, true, nil
			}
		}
	}
	return "", false, nil
}

// RecordLabel tracks that a user labelled an item. The item's priority
// rises by one; at the threshold the item retires (ranked-set entry,
// membership set and payload all removed). A label for an already-gone
// item is expected under concurrent labelling and ignored with a warning.
func (q *Queue) RecordLabel(ctx context.Context, id, userID string) error {
	exists, err := q.ranked.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		slog.WarnContext(ctx, "Label for item that no longer exists, ignoring", "item_id", id, "user_id", userID, "error", domain.ErrMemberNotFound)
		return nil
	}

	if err := q.ranked.IncrementScore(ctx, id, 1); err != nil {
		return err
	}
	score, ok, err := q.ranked.GetScore(ctx, id)
	if err != nil {
		return err
	}
	if ok && score >= float64(q.threshold) {
		return q.RemoveItem(ctx, id)
	}
	return q.labellers.Add(ctx, id, userID)
}

// RemoveItem unconditionally removes an item from all three stores. Also
// used when upstream marks content private.
func (q *Queue) RemoveItem(ctx context.Context, id string) error {
	if err := q.ranked.Remove(ctx, id); err != nil {
		return err
	}
	if err := q.labellers.Delete(ctx, id); err != nil {
		return err
	}
	return q.payloads.Delete(ctx, id)
}

// Labelled reports how many distinct users labelled an item so far.
func (q *Queue) Labelled(ctx context.Context, id string) (int64, error) {
	return q.labellers.Count(ctx, id)
}

// Size returns the number of items currently queued.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.ranked.Size(ctx)
}

// Top returns the n highest-priority members with their label counts.
func (q *Queue) Top(ctx context.Context, n int) ([]redis.Member, error) {
	return q.ranked.MultiPop(ctx, n, 0, math.Inf(-1))
}

// Flush destroys all three backing structures.
func (q *Queue) Flush(ctx context.Context) error {
	if err := q.ranked.Destroy(ctx); err != nil {
		return err
	}
	if err := q.labellers.DeleteAll(ctx); err != nil {
		return err
	}
	return q.payloads.DeleteAll(ctx)
}
