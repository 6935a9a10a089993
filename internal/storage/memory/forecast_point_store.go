package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// ForecastPointStore is an in-memory implementation of storage.ForecastPointStore.
type ForecastPointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ForecastPoint // keyed by (run_id, step)
}

// NewForecastPointStore creates a new in-memory forecast point store.
func NewForecastPointStore() *ForecastPointStore {
	return &ForecastPointStore{
		data: make(map[string]*domain.ForecastPoint),
	}
}

// pointKey generates a unique key for a forecast point.
func pointKey(runID string, step int) string {
	return fmt.Sprintf("%s|%d", runID, step)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, step).
func (s *ForecastPointStore) InsertBulk(_ context.Context, points []*domain.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))

	for _, p := range points {
		if p == nil || p.RunID == "" || p.Step < 1 {
			return storage.ErrInvalidInput
		}
		key := pointKey(p.RunID, p.Step)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		key := pointKey(p.RunID, p.Step)
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// GetByRunID retrieves all points of a run, ordered by step ASC.
func (s *ForecastPointStore) GetByRunID(_ context.Context, runID string) ([]*domain.ForecastPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ForecastPoint
	for _, p := range s.data {
		if p.RunID == runID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Step < result[j].Step
	})

	return result, nil
}

var _ storage.ForecastPointStore = (*ForecastPointStore)(nil)
