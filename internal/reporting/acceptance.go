package reporting

import (
	"fmt"
	"math"

	"patch-forecast-lab/internal/domain"
)

// Verdict is the acceptance gate outcome for a run.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictReject Verdict = "REJECT"
)

// Thresholds are the acceptance criteria for a forecast run.
type Thresholds struct {
	// MinDirectionalAccuracy is the minimum held-out sign agreement.
	MinDirectionalAccuracy float64
	// MaxRMSEPct caps RMSE as a percentage of the anchor price.
	MaxRMSEPct float64
	// MinEpochs is the minimum epochs a run must have completed.
	MinEpochs int
}

// DefaultThresholds returns the baseline acceptance criteria.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDirectionalAccuracy: 0.5,
		MaxRMSEPct:             10.0,
		MinEpochs:              2,
	}
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// AcceptanceResult contains the verdict with its checklist.
// ACCEPT requires every criterion to pass.
type AcceptanceResult struct {
	Verdict  Verdict
	Criteria []CriterionResult
}

// EvaluateAcceptance applies the thresholds to a completed run.
func EvaluateAcceptance(run *domain.ForecastRun, t Thresholds) *AcceptanceResult {
	criteria := make([]CriterionResult, 3)

	criteria[0] = CriterionResult{
		Name:      "Directional accuracy",
		Threshold: fmt.Sprintf(">= %.2f", t.MinDirectionalAccuracy),
		Actual:    fmt.Sprintf("%.4f", run.DirectionalAccuracy),
		Pass:      run.DirectionalAccuracy >= t.MinDirectionalAccuracy,
	}

	// RMSE relative to the anchor keeps the criterion scale-free.
	rmsePct := math.Inf(1)
	if run.AnchorPrice != 0 {
		rmsePct = run.RMSE / math.Abs(run.AnchorPrice) * 100
	}
	criteria[1] = CriterionResult{
		Name:      "RMSE vs anchor",
		Threshold: fmt.Sprintf("<= %.2f%%", t.MaxRMSEPct),
		Actual:    fmt.Sprintf("%.2f%%", rmsePct),
		Pass:      rmsePct <= t.MaxRMSEPct,
	}

	trained := run.EpochsRun >= t.MinEpochs &&
		!math.IsNaN(run.BestValLoss) && !math.IsInf(run.BestValLoss, 0)
	criteria[2] = CriterionResult{
		Name:      "Training completed",
		Threshold: fmt.Sprintf(">= %d epochs, finite val loss", t.MinEpochs),
		Actual:    fmt.Sprintf("%d epochs, val loss %.6f", run.EpochsRun, run.BestValLoss),
		Pass:      trained,
	}

	verdict := VerdictAccept
	for _, c := range criteria {
		if !c.Pass {
			verdict = VerdictReject
			break
		}
	}

	return &AcceptanceResult{
		Verdict:  verdict,
		Criteria: criteria,
	}
}
