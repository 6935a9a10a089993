package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// ForecastRunStore implements storage.ForecastRunStore using PostgreSQL.
type ForecastRunStore struct {
	pool *Pool
}

// NewForecastRunStore creates a new ForecastRunStore.
func NewForecastRunStore(pool *Pool) *ForecastRunStore {
	return &ForecastRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ForecastRunStore = (*ForecastRunStore)(nil)

const runColumns = `
	run_id, symbol, interval, data_start_ms, data_end_ms,
	anchor_price, anchor_timestamp_ms, horizon, config_json,
	best_val_loss, epochs_run, snapshot_id,
	directional_accuracy, mae, rmse, created_at
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *ForecastRunStore) Insert(ctx context.Context, r *domain.ForecastRun) error {
	query := `
		INSERT INTO forecast_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID,
		r.Symbol,
		string(r.Interval),
		r.DataStartMs,
		r.DataEndMs,
		r.AnchorPrice,
		r.AnchorTimestampMs,
		r.Horizon,
		r.ConfigJSON,
		r.BestValLoss,
		r.EpochsRun,
		r.SnapshotID,
		r.DirectionalAccuracy,
		r.MAE,
		r.RMSE,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert forecast run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ForecastRunStore) GetByID(ctx context.Context, runID string) (*domain.ForecastRun, error) {
	query := `SELECT ` + runColumns + ` FROM forecast_runs WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// GetBySymbol retrieves all runs for a symbol, ordered by created_at ASC.
func (s *ForecastRunStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.ForecastRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM forecast_runs
		WHERE symbol = $1
		ORDER BY created_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get runs by symbol: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetLatest retrieves the most recent run for a symbol/interval.
func (s *ForecastRunStore) GetLatest(ctx context.Context, symbol string, interval domain.Interval) (*domain.ForecastRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM forecast_runs
		WHERE symbol = $1 AND interval = $2
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, symbol, string(interval))
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	return r, nil
}

// GetAll retrieves all runs, ordered by created_at ASC.
func (s *ForecastRunStore) GetAll(ctx context.Context) ([]*domain.ForecastRun, error) {
	query := `SELECT ` + runColumns + ` FROM forecast_runs ORDER BY created_at ASC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// scanRun scans a single row into a ForecastRun.
func scanRun(row pgx.Row) (*domain.ForecastRun, error) {
	var r domain.ForecastRun
	var intervalStr string

	err := row.Scan(
		&r.RunID,
		&r.Symbol,
		&intervalStr,
		&r.DataStartMs,
		&r.DataEndMs,
		&r.AnchorPrice,
		&r.AnchorTimestampMs,
		&r.Horizon,
		&r.ConfigJSON,
		&r.BestValLoss,
		&r.EpochsRun,
		&r.SnapshotID,
		&r.DirectionalAccuracy,
		&r.MAE,
		&r.RMSE,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Interval = domain.Interval(intervalStr)
	return &r, nil
}

// scanRuns scans multiple rows into a slice of ForecastRun.
func scanRuns(rows pgx.Rows) ([]*domain.ForecastRun, error) {
	var runs []*domain.ForecastRun

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}
