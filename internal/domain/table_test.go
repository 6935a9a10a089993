package domain

import (
	"errors"
	"testing"
)

func makeCandles(n int) []*Candle {
	candles := make([]*Candle, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)
		candles[i] = &Candle{
			Symbol:     "ETHUSDT",
			Interval:   IntervalDaily,
			OpenTimeMs: int64(i) * IntervalDaily.StepMs(),
			Open:       base,
			High:       base + 2,
			Low:        base - 2,
			Close:      base + 1,
			Volume:     1000,
		}
	}
	return candles
}

func TestTableFromCandles(t *testing.T) {
	table, err := TableFromCandles(makeCandles(5))
	if err != nil {
		t.Fatalf("TableFromCandles: %v", err)
	}

	if table.NumRows() != 5 {
		t.Errorf("NumRows = %d, want 5", table.NumRows())
	}
	if table.NumFields() != 5 {
		t.Errorf("NumFields = %d, want 5", table.NumFields())
	}

	idx, ok := table.FieldIndex(FieldClose)
	if !ok || idx != 0 {
		t.Errorf("close field index = %d, %v; want 0, true", idx, ok)
	}

	closes, err := table.Column(FieldClose)
	if err != nil {
		t.Fatalf("Column(close): %v", err)
	}
	if closes[0] != 101 || closes[4] != 105 {
		t.Errorf("close column = %v, want [101 ... 105]", closes)
	}
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr error
	}{
		{
			name:    "empty",
			table:   Table{Fields: FieldNames()},
			wantErr: ErrEmptyTable,
		},
		{
			name: "ragged row",
			table: Table{
				Fields:     []string{FieldClose, FieldVolume},
				Timestamps: []int64{1, 2},
				Values:     [][]float64{{1, 2}, {3}},
			},
			wantErr: ErrRaggedRows,
		},
		{
			name: "duplicate timestamp",
			table: Table{
				Fields:     []string{FieldClose},
				Timestamps: []int64{1, 1},
				Values:     [][]float64{{1}, {2}},
			},
			wantErr: ErrUnorderedTimestamps,
		},
		{
			name: "decreasing timestamp",
			table: Table{
				Fields:     []string{FieldClose},
				Timestamps: []int64{2, 1},
				Values:     [][]float64{{1}, {2}},
			},
			wantErr: ErrUnorderedTimestamps,
		},
		{
			name: "no close field",
			table: Table{
				Fields:     []string{FieldOpen},
				Timestamps: []int64{1},
				Values:     [][]float64{{1}},
			},
			wantErr: ErrMissingClose,
		},
		{
			name: "valid",
			table: Table{
				Fields:     []string{FieldClose},
				Timestamps: []int64{1, 2, 3},
				Values:     [][]float64{{1}, {2}, {3}},
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIntervalStepMs(t *testing.T) {
	if got := IntervalDaily.StepMs(); got != 86_400_000 {
		t.Errorf("daily step = %d, want 86400000", got)
	}
	if got := IntervalHourly.StepMs(); got != 3_600_000 {
		t.Errorf("hourly step = %d, want 3600000", got)
	}
	if !IntervalDaily.IsValid() {
		t.Error("daily interval should be valid")
	}
	if Interval("3").IsValid() {
		t.Error("unsupported interval should be invalid")
	}
}
