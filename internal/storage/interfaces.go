package storage

import (
	"context"

	"patch-forecast-lab/internal/domain"
)

// CandleStore provides access to candle_timeseries storage.
type CandleStore interface {
	// InsertBulk adds multiple candles. Fails entire batch on duplicate
	// (symbol, interval, open_time_ms).
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetBySymbolInterval retrieves all candles for a pair, ordered by open time ASC.
	GetBySymbolInterval(ctx context.Context, symbol string, interval domain.Interval) ([]*domain.Candle, error)

	// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by open time ASC.
	GetByTimeRange(ctx context.Context, symbol string, interval domain.Interval, start, end int64) ([]*domain.Candle, error)

	// GetLatestOpenTime returns the newest stored open time for a pair.
	// Returns ErrNotFound if no candles exist.
	GetLatestOpenTime(ctx context.Context, symbol string, interval domain.Interval) (int64, error)
}

// ForecastRunStore provides access to forecast_runs storage.
type ForecastRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.ForecastRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.ForecastRun, error)

	// GetBySymbol retrieves all runs for a symbol, ordered by created_at ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.ForecastRun, error)

	// GetLatest retrieves the most recent run for a symbol/interval.
	// Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, symbol string, interval domain.Interval) (*domain.ForecastRun, error)

	// GetAll retrieves all runs, ordered by created_at ASC.
	GetAll(ctx context.Context) ([]*domain.ForecastRun, error)
}

// SnapshotMetaStore provides access to model_snapshots storage.
type SnapshotMetaStore interface {
	// Insert adds snapshot metadata. Returns ErrDuplicateKey if snapshot_id exists.
	Insert(ctx context.Context, m *domain.SnapshotMeta) error

	// GetByID retrieves metadata by snapshot ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, snapshotID string) (*domain.SnapshotMeta, error)

	// GetByRunID retrieves all snapshots taken during a run, ordered by epoch ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.SnapshotMeta, error)
}

// ForecastPointStore provides access to forecast_points storage.
type ForecastPointStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, step).
	InsertBulk(ctx context.Context, points []*domain.ForecastPoint) error

	// GetByRunID retrieves all points of a run, ordered by step ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ForecastPoint, error)
}
