package clickhouse

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

func testCandle(symbol string, interval domain.Interval, openTimeMs int64, close float64) *domain.Candle {
	return &domain.Candle{
		Symbol:     symbol,
		Interval:   interval,
		OpenTimeMs: openTimeMs,
		Open:       close - 1,
		High:       close + 2,
		Low:        close - 2,
		Close:      close,
		Volume:     100.0,
	}
}

func TestCandleStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	// Test single insert
	err = store.InsertBulk(ctx, []*domain.Candle{
		testCandle("ETHUSDT", domain.IntervalHourly, 1000, 2500.0),
	})
	require.NoError(t, err)

	// Verify insert
	got, err := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalHourly)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ETHUSDT", got[0].Symbol)
	assert.Equal(t, domain.IntervalHourly, got[0].Interval)
	assert.Equal(t, int64(1000), got[0].OpenTimeMs)
	assert.Equal(t, 2499.0, got[0].Open)
	assert.Equal(t, 2502.0, got[0].High)
	assert.Equal(t, 2498.0, got[0].Low)
	assert.Equal(t, 2500.0, got[0].Close)
	assert.Equal(t, 100.0, got[0].Volume)
}

func TestCandleStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	candles := []*domain.Candle{
		testCandle("ETHUSDT", domain.IntervalHourly, 1000, 2500.0),
	}

	err := store.InsertBulk(ctx, candles)
	require.NoError(t, err)

	// Try to insert duplicate
	err = store.InsertBulk(ctx, candles)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCandleStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	// Same key twice in one batch
	candles := []*domain.Candle{
		testCandle("ETHUSDT", domain.IntervalHourly, 1000, 2500.0),
		testCandle("ETHUSDT", domain.IntervalHourly, 1000, 2501.0),
	}

	err := store.InsertBulk(ctx, candles)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Batch must not be partially applied
	got, err := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalHourly)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandleStore_InsertBulk_SameOpenTimeDifferentInterval(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	// Same symbol and open time, different intervals: not a duplicate.
	candles := []*domain.Candle{
		testCandle("ETHUSDT", domain.IntervalHourly, 1000, 2500.0),
		testCandle("ETHUSDT", domain.Interval4Hour, 1000, 2500.0),
	}

	err := store.InsertBulk(ctx, candles)
	require.NoError(t, err)

	got, err := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.Interval4Hour)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCandleStore_GetBySymbolInterval_Ordering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	// Insert out of order
	candles := []*domain.Candle{
		testCandle("ETHUSDT", domain.IntervalHourly, 3000, 2510.0),
		testCandle("ETHUSDT", domain.IntervalHourly, 1000, 2500.0),
		testCandle("ETHUSDT", domain.IntervalHourly, 2000, 2505.0),
	}
	require.NoError(t, store.InsertBulk(ctx, candles))

	got, err := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalHourly)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1000), got[0].OpenTimeMs)
	assert.Equal(t, int64(2000), got[1].OpenTimeMs)
	assert.Equal(t, int64(3000), got[2].OpenTimeMs)
}

func TestCandleStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	var candles []*domain.Candle
	for i := 0; i < 5; i++ {
		candles = append(candles, testCandle("ETHUSDT", domain.IntervalHourly, int64(1000*(i+1)), 2500.0+float64(i)))
	}
	require.NoError(t, store.InsertBulk(ctx, candles))

	// Inclusive bounds
	got, err := store.GetByTimeRange(ctx, "ETHUSDT", domain.IntervalHourly, 2000, 4000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2000), got[0].OpenTimeMs)
	assert.Equal(t, int64(4000), got[2].OpenTimeMs)

	// Empty range
	got, err = store.GetByTimeRange(ctx, "ETHUSDT", domain.IntervalHourly, 9000, 10000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandleStore_GetLatestOpenTime(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	// No candles yet
	_, err := store.GetLatestOpenTime(ctx, "ETHUSDT", domain.IntervalHourly)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var candles []*domain.Candle
	for i := 0; i < 3; i++ {
		candles = append(candles, testCandle("ETHUSDT", domain.IntervalHourly, int64(1000*(i+1)), 2500.0))
	}
	require.NoError(t, store.InsertBulk(ctx, candles))

	latest, err := store.GetLatestOpenTime(ctx, "ETHUSDT", domain.IntervalHourly)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), latest)

	// Other interval is unaffected
	_, err = store.GetLatestOpenTime(ctx, "ETHUSDT", domain.IntervalDaily)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandleStore_LargeBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	var candles []*domain.Candle
	for i := 0; i < 500; i++ {
		candles = append(candles, testCandle("ETHUSDT", domain.IntervalHourly, int64(1000+i*3600), 2500.0+float64(i)*0.1))
	}
	require.NoError(t, store.InsertBulk(ctx, candles))

	got, err := store.GetBySymbolInterval(ctx, "ETHUSDT", domain.IntervalHourly)
	require.NoError(t, err)
	require.Len(t, got, 500)
	for i := 1; i < len(got); i++ {
		require.Greater(t, got[i].OpenTimeMs, got[i-1].OpenTimeMs, fmt.Sprintf("row %d out of order", i))
	}
}
