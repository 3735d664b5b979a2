// Package elastic backs the index and time-series sinks with
// Elasticsearch. It produces bulk batches and aggregation queries; retry
// policy beyond one bulk attempt belongs to the caller, which persists
// failed batches for replay.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"github.com/crowdsense/streamd/internal/trending"
)

// BulkAction is one create/update document action of a bulk batch.
type BulkAction struct {
	Index string          `json:"index"`
	ID    string          `json:"id"`
	Body  json.RawMessage `json:"body"`
}

// Client wraps the Elasticsearch connection.
type Client struct {
	es *elasticsearch.Client
}

// NewClient connects to the given addresses.
func NewClient(addresses []string, username, password string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Client{es: es}, nil
}

// Ping verifies the cluster connection.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

// BulkIndex submits one bulk batch in a single attempt. Callers decide
// what to do with a failed batch.
func (c *Client) BulkIndex(ctx context.Context, actions []BulkAction) error {
	if len(actions) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, a := range actions {
		meta := map[string]map[string]string{"index": {"_index": a.Index}}
		if a.ID != "" {
			meta["index"]["_id"] = a.ID
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return err
		}
		buf.Write(a.Body)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %s", res.Status())
	}

	var report struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		return fmt.Errorf("bulk index: decode response: %w", err)
	}
	if report.Errors {
		failed := 0
		for _, item := range report.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		return fmt.Errorf("bulk index: %d of %d actions failed", failed, len(actions))
	}
	return nil
}

// IndexTokenCounts persists one epoch's token snapshots.
func (c *Client) IndexTokenCounts(ctx context.Context, index string, snapshots []trending.TokenSnapshot) error {
	actions := make([]BulkAction, 0, len(snapshots))
	for _, snap := range snapshots {
		body, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		actions = append(actions, BulkAction{Index: index, ID: uuid.NewString(), Body: body})
	}
	return c.BulkIndex(ctx, actions)
}

// HourlyCounts aggregates the hourly history of every term in the index
// over the given range: a terms bucket per token, an hourly
// date-histogram inside it, summing field.
func (c *Client) HourlyCounts(ctx context.Context, index, field string, since, until time.Time) (map[string][]trending.HourBucket, error) {
	query := map[string]any{
		"size": 0,
		"query": map[string]any{
			"range": map[string]any{
				"bucket_time": map[string]any{
					"gte": since.Format(time.RFC3339),
					"lte": until.Format(time.RFC3339),
				},
			},
		},
		"aggs": map[string]any{
			"terms": map[string]any{
				"terms": map[string]any{"field": "term.keyword", "size": 10000},
				"aggs": map[string]any{
					"hours": map[string]any{
						"date_histogram": map[string]any{
							"field":             "bucket_time",
							"calendar_interval": "hour",
						},
						"aggs": map[string]any{
							"count": map[string]any{
								"sum": map[string]any{"field": field},
							},
						},
					},
				},
			},
		},
	}

	body, err := c.search(ctx, index, query)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Aggregations struct {
			Terms struct {
				Buckets []struct {
					Key   string `json:"key"`
					Hours struct {
						Buckets []struct {
							Key   int64 `json:"key"`
							Count struct {
								Value float64 `json:"value"`
							} `json:"count"`
						} `json:"buckets"`
					} `json:"hours"`
				} `json:"buckets"`
			} `json:"terms"`
		} `json:"aggregations"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("hourly counts: decode response: %w", err)
	}

	history := make(map[string][]trending.HourBucket, len(parsed.Aggregations.Terms.Buckets))
	for _, term := range parsed.Aggregations.Terms.Buckets {
		buckets := make([]trending.HourBucket, 0, len(term.Hours.Buckets))
		for _, h := range term.Hours.Buckets {
			buckets = append(buckets, trending.HourBucket{
				Time:  time.UnixMilli(h.Key).UTC(),
				Count: h.Count.Value,
			})
		}
		history[term.Key] = buckets
	}
	return history, nil
}

// FilterIDsByQuery narrows a candidate id pool down to ids whose indexed
// text matches the query phrase.
func (c *Client) FilterIDsByQuery(ctx context.Context, index, query string, ids []string, size int) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	search := map[string]any{
		"size":    size,
		"_source": false,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   map[string]any{"match_phrase": map[string]any{"text": query}},
				"filter": map[string]any{"ids": map[string]any{"values": ids}},
			},
		},
	}

	body, err := c.search(ctx, index, search)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("filter ids: decode response: %w", err)
	}

	matched := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		matched = append(matched, hit.ID)
	}
	return matched, nil
}

func (c *Client) search(ctx context.Context, index string, query map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", index, res.Status())
	}

	var out bytes.Buffer
	if _, err := out.ReadFrom(res.Body); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
