// Package nn implements reverse-mode automatic differentiation on float64
// vectors, plus the optimizer used for training. Operations are methods on
// a Graph; a nil Graph executes the same computation without recording,
// which is the inference path.
package nn

import (
	"math"
	"math/rand"
)

// Vector is one node of the computation: a value and, while recording, its
// gradient and backward closure.
type Vector struct {
	Data     []float64
	Grad     []float64
	backward func()
}

// Len returns the number of elements.
func (v *Vector) Len() int {
	return len(v.Data)
}

// ZeroGrad clears the accumulated gradient.
func (v *Vector) ZeroGrad() {
	for i := range v.Grad {
		v.Grad[i] = 0
	}
}

// Flat returns the underlying data and gradient slices.
func (v *Vector) Flat() ([]float64, []float64) {
	return v.Data, v.Grad
}

// Matrix is a trainable row-major matrix. Matrices are graph leaves: ops
// accumulate into Grad directly, nothing propagates through them.
type Matrix struct {
	Rows, Cols int
	Data       []float64
	Grad       []float64
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

// ZeroGrad clears the accumulated gradient.
func (m *Matrix) ZeroGrad() {
	for i := range m.Grad {
		m.Grad[i] = 0
	}
}

// Flat returns the underlying data and gradient slices.
func (m *Matrix) Flat() ([]float64, []float64) {
	return m.Data, m.Grad
}

// Parameter is any trainable tensor exposing its flat data and gradient.
type Parameter interface {
	Flat() ([]float64, []float64)
}

// NewMatrix allocates a zero matrix with gradient storage.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
		Grad: make([]float64, rows*cols),
	}
}

// NewMatrixXavier allocates a matrix initialized uniformly in
// [-limit, limit] with limit = sqrt(6 / (rows + cols)).
func NewMatrixXavier(rows, cols int, rng *rand.Rand) *Matrix {
	m := NewMatrix(rows, cols)
	limit := xavierLimit(rows, cols)
	for i := range m.Data {
		m.Data[i] = (rng.Float64()*2 - 1) * limit
	}
	return m
}

// NewParamVector allocates a zero parameter vector with gradient storage.
func NewParamVector(n int) *Vector {
	return &Vector{
		Data: make([]float64, n),
		Grad: make([]float64, n),
	}
}

func xavierLimit(rows, cols int) float64 {
	return math.Sqrt(6.0 / float64(rows+cols))
}

// Graph is the explicit execution context for one recorded computation.
// Nodes are appended in creation order, which is a valid topological order,
// so Backward can walk the tape in reverse.
type Graph struct {
	tape []*Vector
}

// NewGraph creates a recording context for one forward/backward pass.
func NewGraph() *Graph {
	return &Graph{}
}

// Constant wraps raw values as a graph input. The slice is not copied.
func (g *Graph) Constant(data []float64) *Vector {
	v := &Vector{Data: data}
	if g != nil {
		v.Grad = make([]float64, len(data))
	}
	return v
}

// record allocates gradient storage for a fresh op output and appends it to
// the tape.
func (g *Graph) record(out *Vector, backward func()) *Vector {
	out.Grad = make([]float64, len(out.Data))
	out.backward = backward
	g.tape = append(g.tape, out)
	return out
}

// Backward seeds the root gradient with ones and propagates in reverse
// creation order. The root is normally a scalar loss.
func (g *Graph) Backward(root *Vector) {
	for i := range root.Grad {
		root.Grad[i] = 1
	}
	for i := len(g.tape) - 1; i >= 0; i-- {
		if fn := g.tape[i].backward; fn != nil {
			fn()
		}
	}
}

// ZeroGrads clears the gradients of all parameters.
func ZeroGrads(params []Parameter) {
	for _, p := range params {
		_, grad := p.Flat()
		for i := range grad {
			grad[i] = 0
		}
	}
}
