package reporting

import (
	"fmt"
	"strings"
)

// RenderRunsCSV renders the run history as CSV string.
func RenderRunsCSV(runs []RunRow) string {
	var sb strings.Builder

	sb.WriteString("run_id,interval,data_start_ms,data_end_ms,anchor_price,horizon,")
	sb.WriteString("epochs_run,best_val_loss,directional_accuracy,mae,rmse,created_at\n")

	for _, m := range runs {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%.6f,%d,%d,%.6f,%.6f,%.6f,%.6f,%d\n",
			m.RunID,
			m.Interval,
			m.DataStartMs,
			m.DataEndMs,
			m.AnchorPrice,
			m.Horizon,
			m.EpochsRun,
			m.BestValLoss,
			m.DirectionalAccuracy,
			m.MAE,
			m.RMSE,
			m.CreatedAt,
		))
	}

	return sb.String()
}

// RenderForecastCSV renders the forecast rows as CSV string.
func RenderForecastCSV(rows []ForecastRow) string {
	var sb strings.Builder

	sb.WriteString("step,timestamp_ms,price,change_pct\n")

	for _, f := range rows {
		sb.WriteString(fmt.Sprintf("%d,%d,%.6f,%.6f\n",
			f.Step, f.TimestampMs, f.Price, f.ChangePct))
	}

	return sb.String()
}
