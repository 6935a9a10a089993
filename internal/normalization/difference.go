package normalization

import "patch-forecast-lab/internal/domain"

// Difference returns the row-wise first difference of the table. The first
// row has no predecessor and is defined as the zero vector, so the result
// keeps the source's row count, timestamps, and field set.
func Difference(table *domain.Table) *domain.Table {
	values := make([][]float64, len(table.Values))
	for i, row := range table.Values {
		out := make([]float64, len(row))
		if i > 0 {
			prev := table.Values[i-1]
			for f, v := range row {
				out[f] = v - prev[f]
			}
		}
		values[i] = out
	}

	return &domain.Table{
		Fields:     append([]string(nil), table.Fields...),
		Timestamps: append([]int64(nil), table.Timestamps...),
		Values:     values,
	}
}
