package domain

// ForecastRun records one completed training + forecasting run.
// Corresponds to forecast_runs table in PostgreSQL.
type ForecastRun struct {
	RunID               string   // PRIMARY KEY, deterministic hash
	Symbol              string   // trading pair
	Interval            Interval // candle interval
	DataStartMs         int64    // first candle open time used (ms)
	DataEndMs           int64    // last candle open time used (ms)
	AnchorPrice         float64  // last known close, anchor for level reconstruction
	AnchorTimestampMs   int64    // timestamp of the anchor row (ms)
	Horizon             int      // rolling forecast steps
	ConfigJSON          string   // model + training configuration as JSON
	BestValLoss         float64  // best validation loss reached
	EpochsRun           int      // epochs completed before stopping
	SnapshotID          string   // best snapshot reference
	DirectionalAccuracy float64  // held-out sign agreement
	MAE                 float64  // held-out mean absolute error (price units)
	RMSE                float64  // held-out root mean squared error (price units)
	CreatedAt           int64    // record creation timestamp (ms)
}

// ForecastPoint is one predicted price level of a rolling forecast.
// Corresponds to forecast_points table in ClickHouse.
type ForecastPoint struct {
	RunID       string  // owning forecast run
	Step        int     // 1-based horizon position
	TimestampMs int64   // anchor timestamp + step * interval (ms)
	Price       float64 // predicted absolute price
}
