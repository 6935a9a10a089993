package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// DefaultInsertBatchSize bounds one InsertBulk call during backfill.
const DefaultInsertBatchSize = 500

// Ingestor moves candles from a Provider into a CandleStore. Duplicate keys
// are tolerated so overlapping backfills and restarts are safe.
type Ingestor struct {
	provider  Provider
	store     storage.CandleStore
	batchSize int
	log       logrus.FieldLogger
}

// NewIngestor creates an Ingestor. A nil logger uses the standard logger.
func NewIngestor(provider Provider, store storage.CandleStore, log logrus.FieldLogger) *Ingestor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ingestor{
		provider:  provider,
		store:     store,
		batchSize: DefaultInsertBatchSize,
		log:       log,
	}
}

// Backfill fetches [startMs, endMs] and stores any candles not yet present.
// The fetch resumes past the newest stored candle. Returns the number of
// candles inserted.
func (ing *Ingestor) Backfill(ctx context.Context, symbol string, interval domain.Interval, startMs, endMs int64) (int, error) {
	latest, err := ing.store.GetLatestOpenTime(ctx, symbol, interval)
	switch {
	case err == nil:
		if next := latest + interval.StepMs(); next > startMs {
			startMs = next
		}
	case errors.Is(err, storage.ErrNotFound):
		// Nothing stored yet; full fetch.
	default:
		return 0, fmt.Errorf("query latest open time: %w", err)
	}

	if startMs > endMs {
		return 0, nil
	}

	candles, err := ing.provider.FetchCandles(ctx, symbol, interval, startMs, endMs)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch candles: %w", err)
	}

	inserted := 0
	for start := 0; start < len(candles); start += ing.batchSize {
		end := start + ing.batchSize
		if end > len(candles) {
			end = len(candles)
		}

		n, err := ing.insertTolerant(ctx, candles[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}

	ing.log.WithFields(logrus.Fields{
		"symbol":   symbol,
		"interval": interval.String(),
		"fetched":  len(candles),
		"inserted": inserted,
	}).Info("backfill complete")

	return inserted, nil
}

// Follow consumes a candle channel, storing each candle until the channel
// closes or the context is cancelled. Returns the number inserted.
func (ing *Ingestor) Follow(ctx context.Context, candles <-chan *domain.Candle) (int, error) {
	inserted := 0
	for {
		select {
		case <-ctx.Done():
			return inserted, ctx.Err()
		case c, ok := <-candles:
			if !ok {
				return inserted, nil
			}
			err := ing.store.InsertBulk(ctx, []*domain.Candle{c})
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			if err != nil {
				return inserted, fmt.Errorf("insert candle: %w", err)
			}
			inserted++
		}
	}
}

// insertTolerant inserts a batch, falling back to per-candle inserts when
// the batch collides with already-stored rows.
func (ing *Ingestor) insertTolerant(ctx context.Context, batch []*domain.Candle) (int, error) {
	err := ing.store.InsertBulk(ctx, batch)
	if err == nil {
		return len(batch), nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return 0, fmt.Errorf("insert batch: %w", err)
	}

	inserted := 0
	for _, c := range batch {
		err := ing.store.InsertBulk(ctx, []*domain.Candle{c})
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("insert candle: %w", err)
		}
		inserted++
	}
	return inserted, nil
}
