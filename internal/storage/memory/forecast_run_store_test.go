package memory

import (
	"context"
	"errors"
	"testing"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

func testRun(runID string, createdAt int64) *domain.ForecastRun {
	return &domain.ForecastRun{
		RunID:       runID,
		Symbol:      "ETHUSDT",
		Interval:    domain.IntervalDaily,
		DataStartMs: 0,
		DataEndMs:   1000,
		AnchorPrice: 2000,
		Horizon:     30,
		BestValLoss: 0.01,
		EpochsRun:   12,
		CreatedAt:   createdAt,
	}
}

func TestForecastRunStore_InsertAndGet(t *testing.T) {
	store := NewForecastRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRun("r1", 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.RunID != "r1" || got.Symbol != "ETHUSDT" {
		t.Errorf("Unexpected run: %+v", got)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestForecastRunStore_DuplicateKey(t *testing.T) {
	store := NewForecastRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRun("r1", 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testRun("r1", 200)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestForecastRunStore_GetBySymbolOrdered(t *testing.T) {
	store := NewForecastRunStore()
	ctx := context.Background()

	for _, r := range []*domain.ForecastRun{testRun("r2", 200), testRun("r1", 100), testRun("r3", 300)} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	runs, err := store.GetBySymbol(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].CreatedAt < runs[i-1].CreatedAt {
			t.Errorf("Runs not ordered by created_at: %d before %d", runs[i-1].CreatedAt, runs[i].CreatedAt)
		}
	}
}

func TestForecastRunStore_GetLatest(t *testing.T) {
	store := NewForecastRunStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "ETHUSDT", domain.IntervalDaily); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty store, got %v", err)
	}

	if err := store.Insert(ctx, testRun("r1", 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testRun("r2", 300)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	latest, err := store.GetLatest(ctx, "ETHUSDT", domain.IntervalDaily)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.RunID != "r2" {
		t.Errorf("Expected r2 as latest, got %s", latest.RunID)
	}
}

func TestForecastRunStore_InvalidInput(t *testing.T) {
	store := NewForecastRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil run, got %v", err)
	}
	if err := store.Insert(ctx, &domain.ForecastRun{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty run_id, got %v", err)
	}
}
