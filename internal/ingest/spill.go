package ingest

import (
	"fmt"
	"os"
	"path/filepath"
)

// SpillStore keeps items no project matched, one JSON file per item, for
// later analysis of matching gaps.
type SpillStore struct {
	dir string
}

// NewSpillStore ensures the spill directory exists.
func NewSpillStore(dir string) (*SpillStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}
	return &SpillStore{dir: dir}, nil
}

// Save writes one unmatched item under its id.
func (s *SpillStore) Save(id string, raw []byte) error {
	path := filepath.Join(s.dir, id+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write spill file %s: %w", path, err)
	}
	return nil
}
