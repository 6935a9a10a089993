package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

func testPoints(runID string, n int) []*domain.ForecastPoint {
	points := make([]*domain.ForecastPoint, 0, n)
	for i := 1; i <= n; i++ {
		points = append(points, &domain.ForecastPoint{
			RunID:       runID,
			Step:        i,
			TimestampMs: int64(1000 + i*3600_000),
			Price:       2500.0 + float64(i),
		})
	}
	return points
}

func TestForecastPointStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewForecastPointStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	err = store.InsertBulk(ctx, testPoints("run-1", 3))
	require.NoError(t, err)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, 1, got[0].Step)
	assert.Equal(t, int64(1000+3600_000), got[0].TimestampMs)
	assert.Equal(t, 2501.0, got[0].Price)
}

func TestForecastPointStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewForecastPointStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testPoints("run-1", 3)))

	// Re-inserting any overlapping (run_id, step) fails the batch
	err := store.InsertBulk(ctx, testPoints("run-1", 1))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same steps under a different run are fine
	err = store.InsertBulk(ctx, testPoints("run-2", 3))
	assert.NoError(t, err)
}

func TestForecastPointStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewForecastPointStore(conn)
	ctx := context.Background()

	points := testPoints("run-1", 2)
	points[1].Step = points[0].Step

	err := store.InsertBulk(ctx, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestForecastPointStore_GetByRunID_Ordering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewForecastPointStore(conn)
	ctx := context.Background()

	// Insert out of step order
	points := testPoints("run-1", 3)
	points[0], points[2] = points[2], points[0]
	require.NoError(t, store.InsertBulk(ctx, points))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, p := range got {
		assert.Equal(t, i+1, p.Step)
	}

	// Unknown run returns empty, not an error
	got, err = store.GetByRunID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}
