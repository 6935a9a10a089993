package dataset

import "math/rand"

// Loader iterates a Range in batches. Order can be shuffled between epochs,
// but only within the range, never across split boundaries.
type Loader struct {
	r         Range
	batchSize int
	order     []int
}

// NewLoader creates a loader over the range. batchSize is clamped to at
// least 1.
func NewLoader(r Range, batchSize int) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	order := make([]int, r.Len())
	for i := range order {
		order[i] = i
	}
	return &Loader{r: r, batchSize: batchSize, order: order}
}

// Shuffle permutes the iteration order in place.
func (l *Loader) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(l.order), func(i, j int) {
		l.order[i], l.order[j] = l.order[j], l.order[i]
	})
}

// Len returns the number of examples.
func (l *Loader) Len() int {
	return l.r.Len()
}

// NumBatches returns the number of batches per pass.
func (l *Loader) NumBatches() int {
	return (l.r.Len() + l.batchSize - 1) / l.batchSize
}

// Batch returns the examples of batch i in the current order.
func (l *Loader) Batch(i int) ([]Example, error) {
	start := i * l.batchSize
	end := start + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	batch := make([]Example, 0, end-start)
	for _, idx := range l.order[start:end] {
		ex, err := l.r.At(idx)
		if err != nil {
			return nil, err
		}
		batch = append(batch, ex)
	}
	return batch, nil
}
