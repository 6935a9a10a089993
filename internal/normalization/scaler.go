// Package normalization transforms a raw price table into the normalized,
// first-differenced form the model trains on.
package normalization

import (
	"fmt"
	"sort"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/metrics"
)

// MinScale is the floor applied to a field's spread during fit. A constant
// field (IQR zero) is clamped here instead of producing a division by zero.
const MinScale = 1e-8

// RobustScaler normalizes each field to (value - median) / IQR.
// The per-field scale factors are reused later to invert difference
// predictions back to price units.
type RobustScaler struct {
	fields []string
	center []float64
	scale  []float64
}

// FitScaler computes per-field median and interquartile range from the table.
func FitScaler(table *domain.Table) (*RobustScaler, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	s := &RobustScaler{
		fields: append([]string(nil), table.Fields...),
		center: make([]float64, len(table.Fields)),
		scale:  make([]float64, len(table.Fields)),
	}

	col := make([]float64, table.NumRows())
	for f := range table.Fields {
		for i, row := range table.Values {
			col[i] = row[f]
		}
		sort.Float64s(col)

		s.center[f] = metrics.Percentile(col, 0.50)
		iqr := metrics.Percentile(col, 0.75) - metrics.Percentile(col, 0.25)
		if iqr < MinScale {
			iqr = MinScale
		}
		s.scale[f] = iqr
	}
	return s, nil
}

// Transform returns a table of identical shape with every value replaced by
// (value - center) / scale.
func (s *RobustScaler) Transform(table *domain.Table) (*domain.Table, error) {
	if len(table.Fields) != len(s.fields) {
		return nil, fmt.Errorf("transform: table has %d fields, scaler fitted on %d", len(table.Fields), len(s.fields))
	}
	for i, f := range table.Fields {
		if f != s.fields[i] {
			return nil, fmt.Errorf("transform: field %d is %q, scaler fitted on %q", i, f, s.fields[i])
		}
	}

	values := make([][]float64, len(table.Values))
	for i, row := range table.Values {
		out := make([]float64, len(row))
		for f, v := range row {
			out[f] = (v - s.center[f]) / s.scale[f]
		}
		values[i] = out
	}

	return &domain.Table{
		Fields:     append([]string(nil), table.Fields...),
		Timestamps: append([]int64(nil), table.Timestamps...),
		Values:     values,
	}, nil
}

// ScaleOf returns the fitted scale factor for the named field.
func (s *RobustScaler) ScaleOf(field string) (float64, bool) {
	for i, f := range s.fields {
		if f == field {
			return s.scale[i], true
		}
	}
	return 0, false
}
