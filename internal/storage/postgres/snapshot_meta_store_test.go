package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

func testMeta(snapshotID, runID string, epoch int) *domain.SnapshotMeta {
	return &domain.SnapshotMeta{
		SnapshotID: snapshotID,
		RunID:      runID,
		Epoch:      epoch,
		ValLoss:    1.0 / float64(epoch+1),
		Path:       "snapshots/" + snapshotID + ".json",
		Checksum:   "deadbeef",
		CreatedAt:  int64(epoch) * 1000,
	}
}

func insertRunForMeta(t *testing.T, store *ForecastRunStore, runID string) {
	t.Helper()
	run := testRun(runID, 100)
	run.SnapshotID = ""
	require.NoError(t, store.Insert(context.Background(), run))
}

func TestSnapshotMetaStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	runStore := NewForecastRunStore(pool)
	insertRunForMeta(t, runStore, "run-001")

	store := NewSnapshotMetaStore(pool)
	ctx := context.Background()

	meta := testMeta("snap-001", "run-001", 3)
	require.NoError(t, store.Insert(ctx, meta))

	got, err := store.GetByID(ctx, "snap-001")
	require.NoError(t, err)
	assert.Equal(t, meta.SnapshotID, got.SnapshotID)
	assert.Equal(t, meta.RunID, got.RunID)
	assert.Equal(t, meta.Epoch, got.Epoch)
	assert.Equal(t, meta.ValLoss, got.ValLoss)
	assert.Equal(t, meta.Path, got.Path)
	assert.Equal(t, meta.Checksum, got.Checksum)
}

func TestSnapshotMetaStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	runStore := NewForecastRunStore(pool)
	insertRunForMeta(t, runStore, "run-001")

	store := NewSnapshotMetaStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testMeta("snap-001", "run-001", 1)))
	err := store.Insert(ctx, testMeta("snap-001", "run-001", 2))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSnapshotMetaStore_GetByRunIDOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	runStore := NewForecastRunStore(pool)
	insertRunForMeta(t, runStore, "run-001")

	store := NewSnapshotMetaStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testMeta("snap-c", "run-001", 9)))
	require.NoError(t, store.Insert(ctx, testMeta("snap-a", "run-001", 1)))
	require.NoError(t, store.Insert(ctx, testMeta("snap-b", "run-001", 4)))

	metas, err := store.GetByRunID(ctx, "run-001")
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, 1, metas[0].Epoch)
	assert.Equal(t, 4, metas[1].Epoch)
	assert.Equal(t, 9, metas[2].Epoch)
}

func TestSnapshotMetaStore_GetByID_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotMetaStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
