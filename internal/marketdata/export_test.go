package marketdata

import (
	"context"

	"patch-forecast-lab/internal/domain"
)

// InsertTolerant exposes insertTolerant to external tests.
func (ing *Ingestor) InsertTolerant(ctx context.Context, batch []*domain.Candle) (int, error) {
	return ing.insertTolerant(ctx, batch)
}
