package metrics

import (
	"errors"
	"math"
	"sort"
)

var ErrLengthMismatch = errors.New("predicted and actual series have different lengths")

// ForecastAccuracy summarizes held-out forecast quality.
type ForecastAccuracy struct {
	Samples             int
	DirectionalAccuracy float64 // fraction of steps where predicted and actual changes agree in sign
	MAE                 float64 // mean absolute error, price units
	RMSE                float64 // root mean squared error, price units
	MAPE                float64 // mean absolute percentage error (0 when actuals contain zeros)
	AbsErrMedian        float64
	AbsErrP90           float64
}

// Evaluate compares predicted against actual price levels.
// Both slices must be in time order; directional accuracy is computed on
// consecutive level changes, the error statistics on the levels themselves.
func Evaluate(predicted, actual []float64) (*ForecastAccuracy, error) {
	if len(predicted) != len(actual) {
		return nil, ErrLengthMismatch
	}
	n := len(predicted)
	if n == 0 {
		return &ForecastAccuracy{}, nil
	}

	absErrs := make([]float64, n)
	sumAbs := 0.0
	sumSq := 0.0
	sumPct := 0.0
	pctValid := true
	for i := 0; i < n; i++ {
		e := predicted[i] - actual[i]
		abs := math.Abs(e)
		absErrs[i] = abs
		sumAbs += abs
		sumSq += e * e
		if actual[i] == 0 {
			pctValid = false
		} else {
			sumPct += abs / math.Abs(actual[i])
		}
	}

	sort.Float64s(absErrs)

	acc := &ForecastAccuracy{
		Samples:      n,
		MAE:          sumAbs / float64(n),
		RMSE:         math.Sqrt(sumSq / float64(n)),
		AbsErrMedian: Percentile(absErrs, 0.50),
		AbsErrP90:    Percentile(absErrs, 0.90),
	}
	if pctValid {
		acc.MAPE = sumPct / float64(n)
	}

	predChanges := make([]float64, 0, n-1)
	actChanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		predChanges = append(predChanges, predicted[i]-predicted[i-1])
		actChanges = append(actChanges, actual[i]-actual[i-1])
	}
	acc.DirectionalAccuracy = DirectionalAccuracy(predChanges, actChanges)

	return acc, nil
}

// DirectionalAccuracy returns the fraction of positions where the predicted
// and actual change agree in sign. Both zero counts as agreement; slices of
// unequal length compare up to the shorter one.
func DirectionalAccuracy(predChanges, actChanges []float64) float64 {
	n := len(predChanges)
	if len(actChanges) < n {
		n = len(actChanges)
	}
	if n == 0 {
		return 0
	}
	match := 0
	for i := 0; i < n; i++ {
		p, a := predChanges[i], actChanges[i]
		if (p > 0 && a > 0) || (p < 0 && a < 0) || (p == 0 && a == 0) {
			match++
		}
	}
	return float64(match) / float64(n)
}
