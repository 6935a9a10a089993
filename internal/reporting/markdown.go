package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Forecast Report: %s\n\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Runs: %d\n\n", r.RunCount))

	// Latest run summary
	sb.WriteString("## Latest Run\n\n")
	if r.Latest != nil {
		l := r.Latest
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Run | %s |\n", l.ShortID))
		sb.WriteString(fmt.Sprintf("| Interval | %s |\n", l.Interval))
		sb.WriteString(fmt.Sprintf("| Data Range (ms) | %d .. %d |\n", l.DataStartMs, l.DataEndMs))
		sb.WriteString(fmt.Sprintf("| Anchor Price | %.6f |\n", l.AnchorPrice))
		sb.WriteString(fmt.Sprintf("| Horizon | %d |\n", l.Horizon))
		sb.WriteString(fmt.Sprintf("| Epochs Run | %d |\n", l.EpochsRun))
		sb.WriteString(fmt.Sprintf("| Best Val Loss | %.6f |\n", l.BestValLoss))
		sb.WriteString(fmt.Sprintf("| Directional Accuracy | %.4f |\n", l.DirectionalAccuracy))
		sb.WriteString(fmt.Sprintf("| MAE | %.6f |\n", l.MAE))
		sb.WriteString(fmt.Sprintf("| RMSE | %.6f |\n", l.RMSE))
		sb.WriteString("\n")
	} else {
		sb.WriteString("No runs available.\n\n")
	}

	// Acceptance gate
	sb.WriteString("## Acceptance\n\n")
	if r.Acceptance != nil {
		sb.WriteString("| Criterion | Threshold | Actual | Status |\n")
		sb.WriteString("|-----------|-----------|--------|--------|\n")
		for _, c := range r.Acceptance.Criteria {
			status := "FAIL"
			if c.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				c.Name, c.Threshold, c.Actual, status))
		}
		sb.WriteString(fmt.Sprintf("\n**Verdict: %s**\n\n", r.Acceptance.Verdict))
	} else {
		sb.WriteString("No acceptance evaluation available.\n\n")
	}

	// Run history
	sb.WriteString("## Run History\n\n")
	if len(r.Runs) > 0 {
		sb.WriteString("| Run | Interval | Epochs | ValLoss | DirAcc | MAE | RMSE | Created |\n")
		sb.WriteString("|-----|----------|--------|---------|--------|-----|------|--------|\n")
		for _, m := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.6f | %.4f | %.4f | %.4f | %s |\n",
				m.ShortID, m.Interval, m.EpochsRun, m.BestValLoss,
				m.DirectionalAccuracy, m.MAE, m.RMSE,
				time.UnixMilli(m.CreatedAt).UTC().Format(time.RFC3339)))
		}
	} else {
		sb.WriteString("No run history available.\n")
	}
	sb.WriteString("\n")

	// Forecast table
	sb.WriteString("## Rolling Forecast\n\n")
	if len(r.Forecast) > 0 {
		sb.WriteString("| Step | Timestamp | Price | Change% |\n")
		sb.WriteString("|------|-----------|-------|--------|\n")
		for _, f := range r.Forecast {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.6f | %+.2f |\n",
				f.Step,
				time.UnixMilli(f.TimestampMs).UTC().Format(time.RFC3339),
				f.Price, f.ChangePct))
		}
	} else {
		sb.WriteString("No forecast available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
