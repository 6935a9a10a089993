// Package dataset turns a price table into fixed-length training examples
// over its normalized, first-differenced values.
package dataset

import (
	"errors"
	"fmt"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/normalization"
)

var (
	ErrInsufficientRows = errors.New("series shorter than input window + output window")
	ErrIndexOutOfRange  = errors.New("example index out of range")
)

// Example is one (input window, target) pair. Input rows are views into the
// differenced series and must be treated as read-only.
type Example struct {
	Input  [][]float64 // nInput rows × all fields
	Target []float64   // nOutput close-field differences
}

// WindowedDataset slides a fixed window over the differenced series.
// The scaler is fit on the entire supplied table before splitting; the
// fit-on-train variant is an open design question recorded in DESIGN.md.
type WindowedDataset struct {
	raw      *domain.Table
	diffed   *domain.Table
	scaler   *normalization.RobustScaler
	closeIdx int
	nInput   int
	nOutput  int
}

// New validates the table, fits the scaler on it, and differences the
// normalized values eagerly.
func New(table *domain.Table, nInput, nOutput int) (*WindowedDataset, error) {
	if nInput <= 0 || nOutput <= 0 {
		return nil, fmt.Errorf("window sizes must be positive, got input=%d output=%d", nInput, nOutput)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if table.NumRows() < nInput+nOutput {
		return nil, fmt.Errorf("%w: %d rows < %d + %d", ErrInsufficientRows, table.NumRows(), nInput, nOutput)
	}

	scaler, err := normalization.FitScaler(table)
	if err != nil {
		return nil, err
	}
	normalized, err := scaler.Transform(table)
	if err != nil {
		return nil, err
	}

	closeIdx, _ := table.FieldIndex(domain.FieldClose)

	return &WindowedDataset{
		raw:      table,
		diffed:   normalization.Difference(normalized),
		scaler:   scaler,
		closeIdx: closeIdx,
		nInput:   nInput,
		nOutput:  nOutput,
	}, nil
}

// Len returns the number of valid windows:
// max(0, rows - nInput - nOutput + 1).
func (d *WindowedDataset) Len() int {
	n := d.diffed.NumRows() - d.nInput - d.nOutput + 1
	if n < 0 {
		return 0
	}
	return n
}

// At returns example i: rows [i, i+nInput) of all fields as input, and the
// close field of rows [i+nInput, i+nInput+nOutput) as target.
func (d *WindowedDataset) At(i int) (Example, error) {
	if i < 0 || i >= d.Len() {
		return Example{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, d.Len())
	}

	input := d.diffed.Values[i : i+d.nInput]

	target := make([]float64, d.nOutput)
	for j := 0; j < d.nOutput; j++ {
		target[j] = d.diffed.Values[i+d.nInput+j][d.closeIdx]
	}

	return Example{Input: input, Target: target}, nil
}

// Scaler returns the scaler fit during construction.
func (d *WindowedDataset) Scaler() *normalization.RobustScaler {
	return d.scaler
}

// CloseScale returns the fitted scale factor of the close field.
func (d *WindowedDataset) CloseScale() float64 {
	scale, _ := d.scaler.ScaleOf(domain.FieldClose)
	return scale
}

// NumFields returns the width of each input row.
func (d *WindowedDataset) NumFields() int {
	return d.diffed.NumFields()
}

// InputLen returns nInput.
func (d *WindowedDataset) InputLen() int {
	return d.nInput
}

// OutputLen returns nOutput.
func (d *WindowedDataset) OutputLen() int {
	return d.nOutput
}

// AnchorPrice returns the last known close price of the raw table.
func (d *WindowedDataset) AnchorPrice() float64 {
	return d.raw.Values[d.raw.NumRows()-1][d.closeIdx]
}

// AnchorTimestamp returns the timestamp of the last raw row.
func (d *WindowedDataset) AnchorTimestamp() int64 {
	return d.raw.LastTimestamp()
}

// LastWindow returns the final nInput differenced rows, the seed window for
// a rolling forecast. Rows are copies, safe to hold.
func (d *WindowedDataset) LastWindow() [][]float64 {
	start := d.diffed.NumRows() - d.nInput
	window := make([][]float64, d.nInput)
	for i := 0; i < d.nInput; i++ {
		window[i] = append([]float64(nil), d.diffed.Values[start+i]...)
	}
	return window
}

// Range is a contiguous, time-ordered subset of the dataset's examples.
type Range struct {
	ds    *WindowedDataset
	start int
	end   int // exclusive
}

// Len returns the number of examples in the range.
func (r Range) Len() int {
	return r.end - r.start
}

// At returns the i-th example of the range.
func (r Range) At(i int) (Example, error) {
	if i < 0 || i >= r.Len() {
		return Example{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, r.Len())
	}
	return r.ds.At(r.start + i)
}

// Split partitions the examples into contiguous train/validation/test ranges
// in time order. Windows never cross a split boundary, so no target leaks
// into an earlier partition's inputs.
func (d *WindowedDataset) Split(trainFrac, valFrac float64) (train, val, test Range) {
	n := d.Len()
	nTrain := int(trainFrac * float64(n))
	nVal := int(valFrac * float64(n))
	if nTrain > n {
		nTrain = n
	}
	if nTrain+nVal > n {
		nVal = n - nTrain
	}

	train = Range{ds: d, start: 0, end: nTrain}
	val = Range{ds: d, start: nTrain, end: nTrain + nVal}
	test = Range{ds: d, start: nTrain + nVal, end: n}
	return train, val, test
}
