package clickhouse

import (
	"context"
	"fmt"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds multiple candles. Fails entire batch on duplicate
// (symbol, interval, open_time_ms).
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		symbol     string
		interval   domain.Interval
		openTimeMs int64
	}
	seen := make(map[key]struct{})
	for _, c := range candles {
		k := key{c.Symbol, c.Interval, c.OpenTimeMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, c := range candles {
		exists, err := s.exists(ctx, c.Symbol, c.Interval, c.OpenTimeMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candle_timeseries (
			symbol, interval, open_time_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.Symbol, c.Interval.String(), uint64(c.OpenTimeMs),
			c.Open, c.High, c.Low, c.Close, c.Volume,
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

// GetBySymbolInterval retrieves all candles for a pair, ordered by open time ASC.
func (s *CandleStore) GetBySymbolInterval(ctx context.Context, symbol string, interval domain.Interval) ([]*domain.Candle, error) {
	query := `
		SELECT symbol, interval, open_time_ms, open, high, low, close, volume
		FROM candle_timeseries
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval.String())
	if err != nil {
		return nil, fmt.Errorf("query by symbol and interval: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by open time ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, symbol string, interval domain.Interval, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT symbol, interval, open_time_ms, open, high, low, close, volume
		FROM candle_timeseries
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms <= ?
		ORDER BY open_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval.String(), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetLatestOpenTime returns the newest stored open time for a pair.
func (s *CandleStore) GetLatestOpenTime(ctx context.Context, symbol string, interval domain.Interval) (int64, error) {
	query := `
		SELECT count(*), max(open_time_ms)
		FROM candle_timeseries
		WHERE symbol = ? AND interval = ?
	`

	var count, latest uint64
	err := s.conn.QueryRow(ctx, query, symbol, interval.String()).Scan(&count, &latest)
	if err != nil {
		return 0, fmt.Errorf("query latest open time: %w", err)
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(latest), nil
}

// exists checks if a candle with the given key exists.
func (s *CandleStore) exists(ctx context.Context, symbol string, interval domain.Interval, openTimeMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM candle_timeseries
		WHERE symbol = ? AND interval = ? AND open_time_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, symbol, interval.String(), uint64(openTimeMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		var interval string
		var openTimeMs uint64

		err := rows.Scan(
			&c.Symbol, &interval, &openTimeMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.Interval = domain.Interval(interval)
		c.OpenTimeMs = int64(openTimeMs)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
