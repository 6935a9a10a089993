package memory

import (
	"context"
	"sort"
	"sync"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// ForecastRunStore is an in-memory implementation of storage.ForecastRunStore.
type ForecastRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ForecastRun // keyed by run_id
}

// NewForecastRunStore creates a new in-memory forecast run store.
func NewForecastRunStore() *ForecastRunStore {
	return &ForecastRunStore{
		data: make(map[string]*domain.ForecastRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *ForecastRunStore) Insert(_ context.Context, r *domain.ForecastRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *r
	s.data[r.RunID] = &runCopy
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ForecastRunStore) GetByID(_ context.Context, runID string) (*domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	runCopy := *r
	return &runCopy, nil
}

// GetBySymbol retrieves all runs for a symbol, ordered by created_at ASC.
func (s *ForecastRunStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ForecastRun
	for _, r := range s.data {
		if r.Symbol == symbol {
			runCopy := *r
			result = append(result, &runCopy)
		}
	}

	sortRunsByCreatedAt(result)
	return result, nil
}

// GetLatest retrieves the most recent run for a symbol/interval.
func (s *ForecastRunStore) GetLatest(_ context.Context, symbol string, interval domain.Interval) (*domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ForecastRun
	for _, r := range s.data {
		if r.Symbol != symbol || r.Interval != interval {
			continue
		}
		if latest == nil || r.CreatedAt > latest.CreatedAt {
			latest = r
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	runCopy := *latest
	return &runCopy, nil
}

// GetAll retrieves all runs, ordered by created_at ASC.
func (s *ForecastRunStore) GetAll(_ context.Context) ([]*domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ForecastRun, 0, len(s.data))
	for _, r := range s.data {
		runCopy := *r
		result = append(result, &runCopy)
	}

	sortRunsByCreatedAt(result)
	return result, nil
}

// sortRunsByCreatedAt orders runs by creation time, run ID as tiebreaker.
func sortRunsByCreatedAt(runs []*domain.ForecastRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt < runs[j].CreatedAt
		}
		return runs[i].RunID < runs[j].RunID
	})
}

var _ storage.ForecastRunStore = (*ForecastRunStore)(nil)
