// Package forecast converts model outputs back to absolute price levels and
// implements the two inference modes: batched held-out prediction and the
// iterative rolling forecast.
//
// Both share one inversion rule. The model predicts normalized close
// differences, so levels are rebuilt by cumulative sum times the close
// field's scale factor plus a known anchor price; the scaler's center cancels
// under differencing and is never needed.
package forecast

import (
	"errors"
	"fmt"

	"patch-forecast-lab/internal/dataset"
	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/metrics"
	"patch-forecast-lab/internal/nn"
)

var ErrEmptyRange = errors.New("prediction range is empty")

// Model is the inference surface the forecaster needs. Forward is called
// with a nil graph, so no gradients are recorded.
type Model interface {
	Forward(g *nn.Graph, window [][]float64) (*nn.Vector, error)
}

// ReconstructLevels inverts a normalized difference sequence:
// levels[k] = anchor + cumsum(diffs)[k] * scale.
func ReconstructLevels(diffs []float64, scale, anchor float64) []float64 {
	levels := make([]float64, len(diffs))
	sum := 0.0
	for i, d := range diffs {
		sum += d
		levels[i] = anchor + sum*scale
	}
	return levels
}

// Forecaster runs a trained model in inference mode.
type Forecaster struct {
	model      Model
	closeScale float64
}

// New creates a forecaster. closeScale is the scaler's fitted scale factor
// for the close field.
func New(model Model, closeScale float64) *Forecaster {
	return &Forecaster{model: model, closeScale: closeScale}
}

// HoldoutResult holds the batched prediction over a held-out range,
// reconstructed to price levels, plus accuracy statistics.
type HoldoutResult struct {
	Predicted []float64
	Actual    []float64
	Accuracy  *metrics.ForecastAccuracy
}

// PredictHoldout runs the model over every window of the range in time
// order, concatenates the outputs, and inverts both predictions and targets
// to levels around the single fixed anchor price.
//
// A single anchor is an approximation: it is accurate near the anchor's
// point in time and degrades for windows far from it. The held-out
// comparison stays fair because predictions and targets share the anchor.
func (f *Forecaster) PredictHoldout(r dataset.Range, anchor float64) (*HoldoutResult, error) {
	if r.Len() == 0 {
		return nil, ErrEmptyRange
	}

	var predDiffs, actDiffs []float64
	for i := 0; i < r.Len(); i++ {
		ex, err := r.At(i)
		if err != nil {
			return nil, err
		}
		out, err := f.model.Forward(nil, ex.Input)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		predDiffs = append(predDiffs, out.Data...)
		actDiffs = append(actDiffs, ex.Target...)
	}

	res := &HoldoutResult{
		Predicted: ReconstructLevels(predDiffs, f.closeScale, anchor),
		Actual:    ReconstructLevels(actDiffs, f.closeScale, anchor),
	}
	acc, err := metrics.Evaluate(res.Predicted, res.Actual)
	if err != nil {
		return nil, err
	}
	res.Accuracy = acc
	return res, nil
}

// Rolling iterates the model horizon steps ahead. Each step predicts one
// value from the current window, then a new window is built by dropping the
// oldest row and appending a row holding the predicted change.
//
// The predicted close change fills every field of the appended row; only
// close is truly forecast, the other channels are a carried approximation.
// Windows are rebuilt per step, never mutated, so the model input can alias
// nothing that changes under it.
func (f *Forecaster) Rolling(seed [][]float64, horizon int) ([]float64, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	window := seed
	diffs := make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		out, err := f.model.Forward(nil, window)
		if err != nil {
			return nil, fmt.Errorf("rolling step %d: %w", step+1, err)
		}
		pred := out.Data[0]
		diffs = append(diffs, pred)

		next := make([][]float64, len(window))
		copy(next, window[1:])
		row := make([]float64, len(window[0]))
		for j := range row {
			row[j] = pred
		}
		next[len(next)-1] = row
		window = next
	}
	return diffs, nil
}

// RollingForecast runs Rolling and reconstructs the absolute forecast
// sequence, one point per step with timestamps advancing from the anchor.
func (f *Forecaster) RollingForecast(runID string, seed [][]float64, anchorPrice float64, anchorTsMs, stepMs int64, horizon int) ([]*domain.ForecastPoint, error) {
	diffs, err := f.Rolling(seed, horizon)
	if err != nil {
		return nil, err
	}
	levels := ReconstructLevels(diffs, f.closeScale, anchorPrice)

	points := make([]*domain.ForecastPoint, len(levels))
	for i, price := range levels {
		points[i] = &domain.ForecastPoint{
			RunID:       runID,
			Step:        i + 1,
			TimestampMs: anchorTsMs + int64(i+1)*stepMs,
			Price:       price,
		}
	}
	return points, nil
}
