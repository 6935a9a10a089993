// Package marketdata supplies OHLCV candles from exchange APIs and keeps
// candle storage backfilled.
package marketdata

import (
	"context"
	"errors"

	"patch-forecast-lab/internal/domain"
)

// ErrNoData indicates the provider has no candles for the requested range.
var ErrNoData = errors.New("no candle data for requested range")

// Provider supplies historical candles for a trading pair.
// Implementations return candles in ascending open-time order with both
// range bounds inclusive.
type Provider interface {
	FetchCandles(ctx context.Context, symbol string, interval domain.Interval, startMs, endMs int64) ([]*domain.Candle, error)
}
