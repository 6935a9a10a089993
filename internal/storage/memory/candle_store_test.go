package memory

import (
	"context"
	"errors"
	"testing"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

func dailyCandle(symbol string, openTimeMs int64, close float64) *domain.Candle {
	return &domain.Candle{
		Symbol:     symbol,
		Interval:   domain.IntervalDaily,
		OpenTimeMs: openTimeMs,
		Open:       close - 1,
		High:       close + 2,
		Low:        close - 2,
		Close:      close,
		Volume:     1000,
	}
}

func TestCandleStore_InsertBulkAndGet(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []*domain.Candle{
		dailyCandle("ETHUSDT", 2000, 101),
		dailyCandle("ETHUSDT", 1000, 100),
		dailyCandle("BTCUSDT", 1000, 50000),
	}

	if err := store.InsertBulk(ctx, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalDaily)
	if err != nil {
		t.Fatalf("GetBySymbolInterval failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(result))
	}
	// Ordered by open time ASC regardless of insert order
	if result[0].OpenTimeMs != 1000 || result[1].OpenTimeMs != 2000 {
		t.Errorf("Expected ascending open times, got %d, %d", result[0].OpenTimeMs, result[1].OpenTimeMs)
	}
}

func TestCandleStore_DuplicateKey(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Candle{dailyCandle("ETHUSDT", 1000, 100)}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Candle{dailyCandle("ETHUSDT", 1000, 200)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCandleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.Candle{
		dailyCandle("ETHUSDT", 1000, 100),
		dailyCandle("ETHUSDT", 1000, 101),
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	// Verify nothing was inserted
	result, _ := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalDaily)
	if len(result) != 0 {
		t.Errorf("Expected empty store after failed batch, got %d candles", len(result))
	}
}

func TestCandleStore_GetByTimeRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []*domain.Candle{
		dailyCandle("ETHUSDT", 1000, 100),
		dailyCandle("ETHUSDT", 2000, 101),
		dailyCandle("ETHUSDT", 3000, 102),
	}
	if err := store.InsertBulk(ctx, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "ETHUSDT", domain.IntervalDaily, 1000, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 candles in [1000, 2000], got %d", len(result))
	}
}

func TestCandleStore_GetLatestOpenTime(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if _, err := store.GetLatestOpenTime(ctx, "ETHUSDT", domain.IntervalDaily); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty store, got %v", err)
	}

	candles := []*domain.Candle{
		dailyCandle("ETHUSDT", 3000, 102),
		dailyCandle("ETHUSDT", 1000, 100),
	}
	if err := store.InsertBulk(ctx, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	latest, err := store.GetLatestOpenTime(ctx, "ETHUSDT", domain.IntervalDaily)
	if err != nil {
		t.Fatalf("GetLatestOpenTime failed: %v", err)
	}
	if latest != 3000 {
		t.Errorf("Expected latest 3000, got %d", latest)
	}
}

func TestCandleStore_InvalidInput(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.Candle{{Symbol: "", Interval: domain.IntervalDaily}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty symbol, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.Candle{{Symbol: "ETHUSDT", Interval: "bogus"}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad interval, got %v", err)
	}
}

func TestCandleStore_ReturnsCopies(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Candle{dailyCandle("ETHUSDT", 1000, 100)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	first, _ := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalDaily)
	first[0].Close = -1

	second, _ := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalDaily)
	if second[0].Close != 100 {
		t.Error("Mutating a returned candle must not affect the store")
	}
}
