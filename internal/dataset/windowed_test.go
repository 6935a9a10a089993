package dataset

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/normalization"
)

// seriesTable builds a close-only table with values v(i) = start + i*step.
func seriesTable(n int, start, step float64) *domain.Table {
	timestamps := make([]int64, n)
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = int64(i+1) * 86_400_000
		values[i] = []float64{start + float64(i)*step}
	}
	return &domain.Table{
		Fields:     []string{domain.FieldClose},
		Timestamps: timestamps,
		Values:     values,
	}
}

func TestNew_InsufficientRows(t *testing.T) {
	table := seriesTable(9, 100, 1)
	if _, err := New(table, 5, 5); !errors.Is(err, ErrInsufficientRows) {
		t.Errorf("expected ErrInsufficientRows, got %v", err)
	}
}

func TestLen_WindowCount(t *testing.T) {
	tests := []struct {
		rows, nInput, nOutput, expected int
	}{
		{100, 10, 5, 86}, // 100 - 10 - 5 + 1
		{15, 10, 5, 1},   // exactly one window
		{2000, 994, 24, 983},
	}

	for _, tt := range tests {
		ds, err := New(seriesTable(tt.rows, 100, 1), tt.nInput, tt.nOutput)
		if err != nil {
			t.Fatalf("New(rows=%d): %v", tt.rows, err)
		}
		if got := ds.Len(); got != tt.expected {
			t.Errorf("rows=%d nInput=%d nOutput=%d: expected Len %d, got %d",
				tt.rows, tt.nInput, tt.nOutput, tt.expected, got)
		}
	}
}

func TestAt_WindowContents(t *testing.T) {
	table := seriesTable(30, 100, 2)
	nInput, nOutput := 8, 3

	ds, err := New(table, nInput, nOutput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Recompute the differenced series independently.
	scaler, err := normalization.FitScaler(table)
	if err != nil {
		t.Fatalf("FitScaler: %v", err)
	}
	normalized, err := scaler.Transform(table)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	diffed := normalization.Difference(normalized)

	for i := 0; i < ds.Len(); i++ {
		ex, err := ds.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		if len(ex.Input) != nInput {
			t.Fatalf("At(%d): input has %d rows, want %d", i, len(ex.Input), nInput)
		}
		for r := 0; r < nInput; r++ {
			if math.Abs(ex.Input[r][0]-diffed.Values[i+r][0]) > 1e-12 {
				t.Errorf("At(%d) input row %d: got %f, want %f", i, r, ex.Input[r][0], diffed.Values[i+r][0])
			}
		}
		if len(ex.Target) != nOutput {
			t.Fatalf("At(%d): target has %d values, want %d", i, len(ex.Target), nOutput)
		}
		for j := 0; j < nOutput; j++ {
			want := diffed.Values[i+nInput+j][0]
			if math.Abs(ex.Target[j]-want) > 1e-12 {
				t.Errorf("At(%d) target %d: got %f, want %f", i, j, ex.Target[j], want)
			}
		}
	}
}

func TestAt_OutOfRange(t *testing.T) {
	ds, err := New(seriesTable(30, 100, 1), 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := ds.At(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At(-1): expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := ds.At(ds.Len()); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At(Len): expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestSplit_ContiguousAndComplete(t *testing.T) {
	ds, err := New(seriesTable(120, 100, 1), 10, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	train, val, test := ds.Split(0.7, 0.15)

	if got := train.Len() + val.Len() + test.Len(); got != ds.Len() {
		t.Errorf("split lengths sum to %d, want %d", got, ds.Len())
	}

	// The first validation example must be the one right after the last
	// train example (contiguous, time ordered).
	lastTrain, err := train.At(train.Len() - 1)
	if err != nil {
		t.Fatalf("train.At: %v", err)
	}
	firstVal, err := val.At(0)
	if err != nil {
		t.Fatalf("val.At: %v", err)
	}
	wantLast, _ := ds.At(train.Len() - 1)
	wantFirst, _ := ds.At(train.Len())
	if &lastTrain.Input[0][0] != &wantLast.Input[0][0] {
		t.Error("train range does not map onto dataset order")
	}
	if &firstVal.Input[0][0] != &wantFirst.Input[0][0] {
		t.Error("val range does not start where train ends")
	}
}

func TestSplit_FracOverflowClamped(t *testing.T) {
	ds, err := New(seriesTable(40, 100, 1), 10, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	train, val, test := ds.Split(0.9, 0.5)
	if train.Len()+val.Len()+test.Len() != ds.Len() {
		t.Error("clamped split must still cover the dataset")
	}
	if test.Len() < 0 || val.Len() < 0 {
		t.Error("negative range length after clamping")
	}
}

func TestLoader_BatchesCoverRangeOnce(t *testing.T) {
	ds, err := New(seriesTable(60, 100, 1), 10, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	train, _, _ := ds.Split(1.0, 0.0)

	loader := NewLoader(train, 7)

	seen := 0
	for b := 0; b < loader.NumBatches(); b++ {
		batch, err := loader.Batch(b)
		if err != nil {
			t.Fatalf("Batch(%d): %v", b, err)
		}
		seen += len(batch)
	}
	if seen != train.Len() {
		t.Errorf("batches yielded %d examples, want %d", seen, train.Len())
	}
}

func TestLoader_ShuffleIsDeterministicPerSeed(t *testing.T) {
	ds, err := New(seriesTable(60, 100, 1), 10, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	train, _, _ := ds.Split(1.0, 0.0)

	a := NewLoader(train, 4)
	b := NewLoader(train, 4)
	a.Shuffle(rand.New(rand.NewSource(7)))
	b.Shuffle(rand.New(rand.NewSource(7)))

	for i := 0; i < a.NumBatches(); i++ {
		ba, _ := a.Batch(i)
		bb, _ := b.Batch(i)
		for j := range ba {
			if ba[j].Target[0] != bb[j].Target[0] {
				t.Fatalf("batch %d example %d differs between identically seeded loaders", i, j)
			}
		}
	}
}

func TestAnchorAndLastWindow(t *testing.T) {
	table := seriesTable(30, 100, 2)
	ds, err := New(table, 8, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wantAnchor := table.Values[29][0]
	if got := ds.AnchorPrice(); got != wantAnchor {
		t.Errorf("AnchorPrice = %f, want %f", got, wantAnchor)
	}
	if got := ds.AnchorTimestamp(); got != table.Timestamps[29] {
		t.Errorf("AnchorTimestamp = %d, want %d", got, table.Timestamps[29])
	}

	window := ds.LastWindow()
	if len(window) != 8 {
		t.Fatalf("LastWindow has %d rows, want 8", len(window))
	}
	// Mutating the returned window must not touch the dataset.
	window[0][0] = 12345
	ex, _ := ds.At(ds.Len() - 1)
	if ex.Input[0][0] == 12345 {
		t.Error("LastWindow aliases dataset storage")
	}
}
