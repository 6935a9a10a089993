package domain

import (
	"errors"
	"fmt"
)

// Canonical field order for model input. Close is first so the target
// column is always index 0.
const (
	FieldClose  = "close"
	FieldOpen   = "open"
	FieldHigh   = "high"
	FieldLow    = "low"
	FieldVolume = "volume"
)

// FieldNames returns the canonical field order for tables built from candles.
func FieldNames() []string {
	return []string{FieldClose, FieldOpen, FieldHigh, FieldLow, FieldVolume}
}

var (
	ErrEmptyTable          = errors.New("table has no rows")
	ErrRaggedRows          = errors.New("table rows have inconsistent field counts")
	ErrUnorderedTimestamps = errors.New("table timestamps are not strictly increasing")
	ErrMissingClose        = errors.New("table has no close field")
)

// Table is an ordered, read-only time series of numeric rows with a fixed
// field set. Produced once from candles, then only read.
type Table struct {
	Fields     []string
	Timestamps []int64     // Unix milliseconds, strictly increasing
	Values     [][]float64 // row-major; len(Values) == len(Timestamps), each row len(Fields)
}

// NewTable validates and wraps the given columns into a Table.
func NewTable(fields []string, timestamps []int64, values [][]float64) (*Table, error) {
	t := &Table{Fields: fields, Timestamps: timestamps, Values: values}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// TableFromCandles builds a table in canonical field order from candles
// sorted by open time.
func TableFromCandles(candles []*Candle) (*Table, error) {
	timestamps := make([]int64, len(candles))
	values := make([][]float64, len(candles))
	for i, c := range candles {
		timestamps[i] = c.OpenTimeMs
		values[i] = []float64{c.Close, c.Open, c.High, c.Low, c.Volume}
	}
	return NewTable(FieldNames(), timestamps, values)
}

// Validate checks the table invariants: non-empty, fixed field set across
// rows, strictly increasing timestamps, close field present.
func (t *Table) Validate() error {
	if len(t.Timestamps) == 0 {
		return ErrEmptyTable
	}
	if len(t.Values) != len(t.Timestamps) {
		return fmt.Errorf("%w: %d rows, %d timestamps", ErrRaggedRows, len(t.Values), len(t.Timestamps))
	}
	for i, row := range t.Values {
		if len(row) != len(t.Fields) {
			return fmt.Errorf("%w: row %d has %d fields, want %d", ErrRaggedRows, i, len(row), len(t.Fields))
		}
	}
	for i := 1; i < len(t.Timestamps); i++ {
		if t.Timestamps[i] <= t.Timestamps[i-1] {
			return fmt.Errorf("%w: row %d (%d <= %d)", ErrUnorderedTimestamps, i, t.Timestamps[i], t.Timestamps[i-1])
		}
	}
	if _, ok := t.FieldIndex(FieldClose); !ok {
		return ErrMissingClose
	}
	return nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.Timestamps)
}

// NumFields returns the number of fields per row.
func (t *Table) NumFields() int {
	return len(t.Fields)
}

// FieldIndex returns the column index of the named field.
func (t *Table) FieldIndex(name string) (int, bool) {
	for i, f := range t.Fields {
		if f == name {
			return i, true
		}
	}
	return 0, false
}

// Column returns a copy of the named field's values in row order.
func (t *Table) Column(name string) ([]float64, error) {
	idx, ok := t.FieldIndex(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	col := make([]float64, len(t.Values))
	for i, row := range t.Values {
		col[i] = row[idx]
	}
	return col, nil
}

// LastTimestamp returns the timestamp of the final row.
func (t *Table) LastTimestamp() int64 {
	return t.Timestamps[len(t.Timestamps)-1]
}
