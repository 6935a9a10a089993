package reporting

import "time"

// Report summarizes the stored forecast runs for one symbol.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Symbol      string
	RunCount    int

	// All runs for the symbol, oldest first.
	Runs []RunRow

	// Latest run and its rolling forecast. Nil/empty when no runs exist.
	Latest   *RunRow
	Forecast []ForecastRow

	// Acceptance verdict for the latest run. Nil when no runs exist.
	Acceptance *AcceptanceResult
}

// RunRow is one forecast run in the runs table.
type RunRow struct {
	RunID               string
	ShortID             string
	Interval            string
	DataStartMs         int64
	DataEndMs           int64
	AnchorPrice         float64
	Horizon             int
	EpochsRun           int
	BestValLoss         float64
	DirectionalAccuracy float64
	MAE                 float64
	RMSE                float64
	CreatedAt           int64 // Unix ms
}

// ForecastRow is one predicted level in the forecast table.
type ForecastRow struct {
	Step        int
	TimestampMs int64
	Price       float64
	ChangePct   float64 // vs the run's anchor price
}
