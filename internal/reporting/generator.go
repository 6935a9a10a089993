package reporting

import (
	"context"
	"errors"
	"time"

	"patch-forecast-lab/internal/idhash"
	"patch-forecast-lab/internal/storage"
)

// Generator produces reports from stored runs and forecasts.
type Generator struct {
	runStore   storage.ForecastRunStore
	pointStore storage.ForecastPointStore
	thresholds Thresholds
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator with default thresholds.
func NewGenerator(runStore storage.ForecastRunStore, pointStore storage.ForecastPointStore) *Generator {
	return &Generator{
		runStore:   runStore,
		pointStore: pointStore,
		thresholds: DefaultThresholds(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithThresholds sets custom acceptance thresholds.
func (g *Generator) WithThresholds(t Thresholds) *Generator {
	g.thresholds = t
	return g
}

// Generate produces a complete report for one symbol. A symbol with no runs
// yields a report with zero rows rather than an error.
func (g *Generator) Generate(ctx context.Context, symbol string) (*Report, error) {
	runs, err := g.runStore.GetBySymbol(ctx, symbol)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	report := &Report{
		GeneratedAt: g.now(),
		Symbol:      symbol,
		RunCount:    len(runs),
	}

	for _, r := range runs {
		report.Runs = append(report.Runs, RunRow{
			RunID:               r.RunID,
			ShortID:             idhash.ShortID(r.RunID),
			Interval:            r.Interval.String(),
			DataStartMs:         r.DataStartMs,
			DataEndMs:           r.DataEndMs,
			AnchorPrice:         r.AnchorPrice,
			Horizon:             r.Horizon,
			EpochsRun:           r.EpochsRun,
			BestValLoss:         r.BestValLoss,
			DirectionalAccuracy: r.DirectionalAccuracy,
			MAE:                 r.MAE,
			RMSE:                r.RMSE,
			CreatedAt:           r.CreatedAt,
		})
	}

	if len(runs) == 0 {
		return report, nil
	}

	latest := runs[len(runs)-1]
	report.Latest = &report.Runs[len(report.Runs)-1]
	report.Acceptance = EvaluateAcceptance(latest, g.thresholds)

	points, err := g.pointStore.GetByRunID(ctx, latest.RunID)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		changePct := 0.0
		if latest.AnchorPrice != 0 {
			changePct = (p.Price - latest.AnchorPrice) / latest.AnchorPrice * 100
		}
		report.Forecast = append(report.Forecast, ForecastRow{
			Step:        p.Step,
			TimestampMs: p.TimestampMs,
			Price:       p.Price,
			ChangePct:   changePct,
		})
	}

	return report, nil
}
