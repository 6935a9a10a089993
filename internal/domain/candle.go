package domain

// Candle represents one OHLCV bar at the forecasting granularity.
// Corresponds to candle_timeseries table in ClickHouse.
type Candle struct {
	Symbol     string   // trading pair, e.g. ETHUSDT
	Interval   Interval // bar interval
	OpenTimeMs int64    // bar open time, Unix milliseconds
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// Interval identifies a candle interval using the exchange's kline codes.
type Interval string

const (
	IntervalHourly Interval = "60"
	Interval4Hour  Interval = "240"
	IntervalDaily  Interval = "D"
	IntervalWeekly Interval = "W"
)

// String returns the string representation of Interval.
func (i Interval) String() string {
	return string(i)
}

// IsValid checks if the interval is a supported value.
func (i Interval) IsValid() bool {
	switch i {
	case IntervalHourly, Interval4Hour, IntervalDaily, IntervalWeekly:
		return true
	}
	return false
}

// StepMs returns the interval length in milliseconds. Forecast timestamps
// advance by this step per horizon position.
func (i Interval) StepMs() int64 {
	switch i {
	case IntervalHourly:
		return 3_600_000
	case Interval4Hour:
		return 14_400_000
	case IntervalDaily:
		return 86_400_000
	case IntervalWeekly:
		return 604_800_000
	}
	return 0
}
