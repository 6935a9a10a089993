package clickhouse

import (
	"context"
	"fmt"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// ForecastPointStore implements storage.ForecastPointStore using ClickHouse.
type ForecastPointStore struct {
	conn *Conn
}

// NewForecastPointStore creates a new ForecastPointStore.
func NewForecastPointStore(conn *Conn) *ForecastPointStore {
	return &ForecastPointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ForecastPointStore = (*ForecastPointStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, step).
func (s *ForecastPointStore) InsertBulk(ctx context.Context, points []*domain.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID string
		step  int
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{p.RunID, p.Step}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.RunID, p.Step)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO forecast_points (
			run_id, step, timestamp_ms, price
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.RunID, uint32(p.Step), uint64(p.TimestampMs), p.Price,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves all points of a run, ordered by step ASC.
func (s *ForecastPointStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ForecastPoint, error) {
	query := `
		SELECT run_id, step, timestamp_ms, price
		FROM forecast_points
		WHERE run_id = ?
		ORDER BY step ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanForecastPoints(rows)
}

// exists checks if a point with the given key exists.
func (s *ForecastPointStore) exists(ctx context.Context, runID string, step int) (bool, error) {
	query := `
		SELECT count(*) FROM forecast_points
		WHERE run_id = ? AND step = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, uint32(step)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanForecastPoints scans multiple rows.
func scanForecastPoints(rows chRows) ([]*domain.ForecastPoint, error) {
	var points []*domain.ForecastPoint

	for rows.Next() {
		var p domain.ForecastPoint
		var step uint32
		var timestampMs uint64

		err := rows.Scan(&p.RunID, &step, &timestampMs, &p.Price)
		if err != nil {
			return nil, fmt.Errorf("scan forecast point row: %w", err)
		}

		p.Step = int(step)
		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast point rows: %w", err)
	}

	return points, nil
}
