package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by (symbol, interval, open_time_ms)
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

// candleKey generates a unique key for a candle.
func candleKey(symbol string, interval domain.Interval, openTimeMs int64) string {
	return fmt.Sprintf("%s|%s|%d", symbol, interval, openTimeMs)
}

// InsertBulk adds multiple candles. Fails entire batch on duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(candles))

	for _, c := range candles {
		if c == nil || c.Symbol == "" || !c.Interval.IsValid() {
			return storage.ErrInvalidInput
		}
		key := candleKey(c.Symbol, c.Interval, c.OpenTimeMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, c := range candles {
		key := candleKey(c.Symbol, c.Interval, c.OpenTimeMs)
		candleCopy := *c
		s.data[key] = &candleCopy
	}

	return nil
}

// GetBySymbolInterval retrieves all candles for a pair, ordered by open time ASC.
func (s *CandleStore) GetBySymbolInterval(_ context.Context, symbol string, interval domain.Interval) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.Symbol == symbol && c.Interval == interval {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTimeMs < result[j].OpenTimeMs
	})

	return result, nil
}

// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by open time ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, symbol string, interval domain.Interval, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.Symbol == symbol && c.Interval == interval && c.OpenTimeMs >= start && c.OpenTimeMs <= end {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTimeMs < result[j].OpenTimeMs
	})

	return result, nil
}

// GetLatestOpenTime returns the newest stored open time for a pair.
func (s *CandleStore) GetLatestOpenTime(_ context.Context, symbol string, interval domain.Interval) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for _, c := range s.data {
		if c.Symbol == symbol && c.Interval == interval {
			if !found || c.OpenTimeMs > latest {
				latest = c.OpenTimeMs
				found = true
			}
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
