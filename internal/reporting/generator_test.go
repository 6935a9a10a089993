package reporting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage/memory"
)

var fixedClock = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func seedRun(t *testing.T, runStore *memory.ForecastRunStore, runID string, createdAt int64, dirAcc, rmse float64) *domain.ForecastRun {
	t.Helper()
	run := &domain.ForecastRun{
		RunID:               runID,
		Symbol:              "ETHUSDT",
		Interval:            domain.IntervalDaily,
		DataStartMs:         1000,
		DataEndMs:           9000,
		AnchorPrice:         2500,
		AnchorTimestampMs:   9000,
		Horizon:             3,
		ConfigJSON:          "{}",
		BestValLoss:         0.015,
		EpochsRun:           20,
		DirectionalAccuracy: dirAcc,
		MAE:                 12.5,
		RMSE:                rmse,
		CreatedAt:           createdAt,
	}
	require.NoError(t, runStore.Insert(context.Background(), run))
	return run
}

func TestGenerator_Generate(t *testing.T) {
	runStore := memory.NewForecastRunStore()
	pointStore := memory.NewForecastPointStore()

	seedRun(t, runStore, "run-old", 1000, 0.55, 30)
	latest := seedRun(t, runStore, "run-new", 2000, 0.62, 25)

	points := []*domain.ForecastPoint{
		{RunID: latest.RunID, Step: 1, TimestampMs: 9000 + 86_400_000, Price: 2525},
		{RunID: latest.RunID, Step: 2, TimestampMs: 9000 + 2*86_400_000, Price: 2550},
	}
	require.NoError(t, pointStore.InsertBulk(context.Background(), points))

	g := NewGenerator(runStore, pointStore).WithClock(fixedClock)
	report, err := g.Generate(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	assert.Equal(t, fixedClock(), report.GeneratedAt)
	assert.Equal(t, 2, report.RunCount)
	require.Len(t, report.Runs, 2)
	assert.Equal(t, "run-old", report.Runs[0].RunID, "runs ordered oldest first")

	require.NotNil(t, report.Latest)
	assert.Equal(t, "run-new", report.Latest.RunID)
	assert.NotEmpty(t, report.Latest.ShortID)

	require.Len(t, report.Forecast, 2)
	assert.Equal(t, 1, report.Forecast[0].Step)
	assert.InDelta(t, 1.0, report.Forecast[0].ChangePct, 1e-9) // 2525 vs 2500
	assert.InDelta(t, 2.0, report.Forecast[1].ChangePct, 1e-9)

	require.NotNil(t, report.Acceptance)
	assert.Equal(t, VerdictAccept, report.Acceptance.Verdict)
}

func TestGenerator_Generate_NoRuns(t *testing.T) {
	g := NewGenerator(memory.NewForecastRunStore(), memory.NewForecastPointStore()).WithClock(fixedClock)

	report, err := g.Generate(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, report.RunCount)
	assert.Nil(t, report.Latest)
	assert.Nil(t, report.Acceptance)
	assert.Empty(t, report.Forecast)
}

func TestEvaluateAcceptance(t *testing.T) {
	base := &domain.ForecastRun{
		AnchorPrice:         2500,
		DirectionalAccuracy: 0.6,
		RMSE:                50, // 2% of anchor
		EpochsRun:           10,
		BestValLoss:         0.01,
	}

	t.Run("all pass", func(t *testing.T) {
		res := EvaluateAcceptance(base, DefaultThresholds())
		assert.Equal(t, VerdictAccept, res.Verdict)
		for _, c := range res.Criteria {
			assert.True(t, c.Pass, c.Name)
		}
	})

	t.Run("low directional accuracy rejects", func(t *testing.T) {
		run := *base
		run.DirectionalAccuracy = 0.4
		res := EvaluateAcceptance(&run, DefaultThresholds())
		assert.Equal(t, VerdictReject, res.Verdict)
		assert.False(t, res.Criteria[0].Pass)
	})

	t.Run("high rmse rejects", func(t *testing.T) {
		run := *base
		run.RMSE = 500 // 20% of anchor
		res := EvaluateAcceptance(&run, DefaultThresholds())
		assert.Equal(t, VerdictReject, res.Verdict)
		assert.False(t, res.Criteria[1].Pass)
	})

	t.Run("zero anchor rejects rmse criterion", func(t *testing.T) {
		run := *base
		run.AnchorPrice = 0
		res := EvaluateAcceptance(&run, DefaultThresholds())
		assert.Equal(t, VerdictReject, res.Verdict)
	})

	t.Run("too few epochs rejects", func(t *testing.T) {
		run := *base
		run.EpochsRun = 1
		res := EvaluateAcceptance(&run, DefaultThresholds())
		assert.Equal(t, VerdictReject, res.Verdict)
		assert.False(t, res.Criteria[2].Pass)
	})
}

func TestRenderMarkdown(t *testing.T) {
	runStore := memory.NewForecastRunStore()
	pointStore := memory.NewForecastPointStore()
	latest := seedRun(t, runStore, "run-new", 2000, 0.62, 25)
	require.NoError(t, pointStore.InsertBulk(context.Background(), []*domain.ForecastPoint{
		{RunID: latest.RunID, Step: 1, TimestampMs: 9000 + 86_400_000, Price: 2525},
	}))

	g := NewGenerator(runStore, pointStore).WithClock(fixedClock)
	report, err := g.Generate(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	md := RenderMarkdown(report)
	assert.Contains(t, md, "# Forecast Report: ETHUSDT")
	assert.Contains(t, md, "## Latest Run")
	assert.Contains(t, md, "## Acceptance")
	assert.Contains(t, md, "**Verdict: ACCEPT**")
	assert.Contains(t, md, "## Rolling Forecast")
	assert.Contains(t, md, "2525")
}

func TestRenderMarkdown_Empty(t *testing.T) {
	g := NewGenerator(memory.NewForecastRunStore(), memory.NewForecastPointStore()).WithClock(fixedClock)
	report, err := g.Generate(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	md := RenderMarkdown(report)
	assert.Contains(t, md, "No runs available.")
	assert.Contains(t, md, "No forecast available.")
}

func TestRenderCSV(t *testing.T) {
	runs := []RunRow{{
		RunID:               "run-1",
		Interval:            "D",
		DataStartMs:         1000,
		DataEndMs:           9000,
		AnchorPrice:         2500,
		Horizon:             3,
		EpochsRun:           20,
		BestValLoss:         0.015,
		DirectionalAccuracy: 0.62,
		MAE:                 12.5,
		RMSE:                25,
		CreatedAt:           2000,
	}}

	csv := RenderRunsCSV(runs)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "run_id,interval,"))
	assert.True(t, strings.HasPrefix(lines[1], "run-1,D,1000,9000,"))

	fcsv := RenderForecastCSV([]ForecastRow{{Step: 1, TimestampMs: 95_400_000, Price: 2525, ChangePct: 1}})
	flines := strings.Split(strings.TrimSpace(fcsv), "\n")
	require.Len(t, flines, 2)
	assert.Equal(t, "step,timestamp_ms,price,change_pct", flines[0])
}

func TestWriteFiles(t *testing.T) {
	g := NewGenerator(memory.NewForecastRunStore(), memory.NewForecastPointStore()).WithClock(fixedClock)
	report, err := g.Generate(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	dir := t.TempDir() + "/nested/reports"
	require.NoError(t, WriteFiles(dir, report))

	for _, name := range []string{"REPORT.md", "runs.csv", "forecast.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
