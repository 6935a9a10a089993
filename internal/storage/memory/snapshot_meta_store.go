package memory

import (
	"context"
	"sort"
	"sync"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// SnapshotMetaStore is an in-memory implementation of storage.SnapshotMetaStore.
type SnapshotMetaStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SnapshotMeta // keyed by snapshot_id
}

// NewSnapshotMetaStore creates a new in-memory snapshot metadata store.
func NewSnapshotMetaStore() *SnapshotMetaStore {
	return &SnapshotMetaStore{
		data: make(map[string]*domain.SnapshotMeta),
	}
}

// Insert adds snapshot metadata. Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotMetaStore) Insert(_ context.Context, m *domain.SnapshotMeta) error {
	if m == nil || m.SnapshotID == "" || m.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.SnapshotID]; exists {
		return storage.ErrDuplicateKey
	}

	metaCopy := *m
	s.data[m.SnapshotID] = &metaCopy
	return nil
}

// GetByID retrieves metadata by snapshot ID. Returns ErrNotFound if not exists.
func (s *SnapshotMetaStore) GetByID(_ context.Context, snapshotID string) (*domain.SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[snapshotID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	metaCopy := *m
	return &metaCopy, nil
}

// GetByRunID retrieves all snapshots taken during a run, ordered by epoch ASC.
func (s *SnapshotMetaStore) GetByRunID(_ context.Context, runID string) ([]*domain.SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SnapshotMeta
	for _, m := range s.data {
		if m.RunID == runID {
			metaCopy := *m
			result = append(result, &metaCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Epoch < result[j].Epoch
	})

	return result, nil
}

var _ storage.SnapshotMetaStore = (*SnapshotMetaStore)(nil)
