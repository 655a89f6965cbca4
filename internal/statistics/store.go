package statistics

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
)

// Store persists and reads the gzip-JSON statistics artifact at
// stats/<job-id>.json.gz.
type Store struct {
	Objects objectstore.ObjectStore
}

func NewStore(objects objectstore.ObjectStore) *Store {
	return &Store{Objects: objects}
}

func key(jobID string) string {
	return fmt.Sprintf("stats/%s.json.gz", jobID)
}

func (s *Store) Write(ctx context.Context, jobID string, items []model.StatisticsItem) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(items); err != nil {
		return fmt.Errorf("statistics: encode %s: %w", jobID, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("statistics: flush %s: %w", jobID, err)
	}
	if err := s.Objects.Put(ctx, key(jobID), buf.Bytes()); err != nil {
		return fmt.Errorf("statistics: write %s: %w", jobID, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, jobID string) ([]model.StatisticsItem, error) {
	raw, err := s.Objects.Get(ctx, key(jobID))
	if err != nil {
		return nil, fmt.Errorf("statistics: read %s: %w", jobID, err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("statistics: ungzip %s: %w", jobID, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("statistics: decompress %s: %w", jobID, err)
	}
	var items []model.StatisticsItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("statistics: parse %s: %w", jobID, err)
	}
	return items, nil
}
