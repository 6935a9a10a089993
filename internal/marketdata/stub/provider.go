// Package stub provides a deterministic synthetic candle provider for
// offline runs and tests.
package stub

import (
	"context"
	"math"
	"math/rand"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/marketdata"
)

// Provider generates synthetic candles from a trend plus a seasonal wave
// plus seeded noise. The same timestamp always yields the same candle, so
// overlapping fetches agree.
type Provider struct {
	// BasePrice is the close at timestamp zero.
	BasePrice float64
	// Trend is the close increase per bar.
	Trend float64
	// SeasonalAmp is the amplitude of the seasonal wave.
	SeasonalAmp float64
	// SeasonalPeriod is the wave period in bars. Zero disables the wave.
	SeasonalPeriod int
	// NoiseStd is the standard deviation of the additive noise.
	NoiseStd float64
	// Seed drives the noise. Same seed, same series.
	Seed int64
	// Volume is the constant bar volume.
	Volume float64
}

// NewProvider returns a provider with a mild upward trend.
func NewProvider(seed int64) *Provider {
	return &Provider{
		BasePrice:      2500,
		Trend:          0.5,
		SeasonalAmp:    10,
		SeasonalPeriod: 24,
		NoiseStd:       1,
		Seed:           seed,
		Volume:         100,
	}
}

// Compile-time interface check.
var _ marketdata.Provider = (*Provider)(nil)

// FetchCandles generates candles in [startMs, endMs], ascending.
func (p *Provider) FetchCandles(_ context.Context, symbol string, interval domain.Interval, startMs, endMs int64) ([]*domain.Candle, error) {
	step := interval.StepMs()
	if step == 0 || startMs > endMs {
		return nil, marketdata.ErrNoData
	}

	// Align to the bar grid so overlapping ranges produce identical bars.
	first := (startMs + step - 1) / step * step

	var candles []*domain.Candle
	for ts := first; ts <= endMs; ts += step {
		candles = append(candles, p.candleAt(symbol, interval, ts))
	}
	if len(candles) == 0 {
		return nil, marketdata.ErrNoData
	}
	return candles, nil
}

// candleAt computes the bar for one grid timestamp.
func (p *Provider) candleAt(symbol string, interval domain.Interval, ts int64) *domain.Candle {
	step := interval.StepMs()
	i := float64(ts / step)

	close := p.BasePrice + p.Trend*i
	if p.SeasonalPeriod > 0 {
		close += p.SeasonalAmp * math.Sin(2*math.Pi*i/float64(p.SeasonalPeriod))
	}
	if p.NoiseStd > 0 {
		// Seeded per timestamp, so the value never depends on fetch order.
		rng := rand.New(rand.NewSource(p.Seed ^ ts))
		close += p.NoiseStd * rng.NormFloat64()
	}

	spread := math.Abs(p.Trend) + p.NoiseStd
	return &domain.Candle{
		Symbol:     symbol,
		Interval:   interval,
		OpenTimeMs: ts,
		Open:       close - p.Trend,
		High:       close + spread,
		Low:        close - spread,
		Close:      close,
		Volume:     p.Volume,
	}
}
