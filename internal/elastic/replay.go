package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ReplayStore persists bulk batches that the cluster rejected. Each batch
// becomes one json-lines file, one action per line, for out-of-band
// resubmission. Sink failures never reach the ingest loop.
type ReplayStore struct {
	dir string
}

// NewReplayStore ensures the replay directory exists.
func NewReplayStore(dir string) (*ReplayStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create replay directory: %w", err)
	}
	return &ReplayStore{dir: dir}, nil
}

// Save writes a failed batch to a new replay file and returns its path.
func (s *ReplayStore) Save(actions []BulkAction) (string, error) {
	name := fmt.Sprintf("bulk-%s-%s.jsonl", time.Now().UTC().Format("20060102150405"), uuid.NewString())
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create replay file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, a := range actions {
		if err := enc.Encode(a); err != nil {
			return "", fmt.Errorf("failed to write replay file %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to write replay file %s: %w", path, err)
	}
	return path, nil
}

// Pending lists the replay files waiting for resubmission.
func (s *ReplayStore) Pending() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "bulk-*.jsonl"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Load reads one replay file back into bulk actions.
func (s *ReplayStore) Load(path string) ([]BulkAction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var actions []BulkAction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var a BulkAction
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			return nil, fmt.Errorf("failed to parse replay file %s: %w", path, err)
		}
		actions = append(actions, a)
	}
	return actions, scanner.Err()
}

// Submitter is the slice of the cluster API Resubmit needs.
type Submitter interface {
	BulkIndex(ctx context.Context, actions []BulkAction) error
}

// Resubmit retries every pending batch against the cluster, deleting
// files whose batch goes through. Batches that fail again stay on disk.
func (s *ReplayStore) Resubmit(ctx context.Context, client Submitter) error {
	paths, err := s.Pending()
	if err != nil {
		return err
	}
	for _, path := range paths {
		actions, err := s.Load(path)
		if err != nil {
			return err
		}
		if err := client.BulkIndex(ctx, actions); err != nil {
			slog.WarnContext(ctx, "Replay batch failed again, keeping file", "file", path, "error", err)
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Replayed bulk batch", "file", path, "actions", len(actions))
	}
	return nil
}
