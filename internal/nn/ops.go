package nn

import "math"

// Affine computes W·x + b. b may be nil. W and b are leaves: their gradients
// accumulate directly, x receives the propagated gradient.
func (g *Graph) Affine(w *Matrix, b *Vector, x *Vector) *Vector {
	out := &Vector{Data: make([]float64, w.Rows)}
	for i := 0; i < w.Rows; i++ {
		sum := 0.0
		row := w.Data[i*w.Cols : (i+1)*w.Cols]
		for j, xv := range x.Data {
			sum += row[j] * xv
		}
		if b != nil {
			sum += b.Data[i]
		}
		out.Data[i] = sum
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for i := 0; i < w.Rows; i++ {
			gi := out.Grad[i]
			if gi == 0 {
				continue
			}
			row := w.Data[i*w.Cols : (i+1)*w.Cols]
			gRow := w.Grad[i*w.Cols : (i+1)*w.Cols]
			for j, xv := range x.Data {
				gRow[j] += gi * xv
				x.Grad[j] += gi * row[j]
			}
			if b != nil {
				b.Grad[i] += gi
			}
		}
	})
}

// Add returns a + b elementwise. Lengths must match.
func (g *Graph) Add(a, b *Vector) *Vector {
	out := &Vector{Data: make([]float64, len(a.Data))}
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for i, gi := range out.Grad {
			a.Grad[i] += gi
			b.Grad[i] += gi
		}
	})
}

// AddRow adds row i of the matrix to x. Used for the positional bias table.
func (g *Graph) AddRow(x *Vector, m *Matrix, row int) *Vector {
	out := &Vector{Data: make([]float64, len(x.Data))}
	base := row * m.Cols
	for i := range x.Data {
		out.Data[i] = x.Data[i] + m.Data[base+i]
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for i, gi := range out.Grad {
			x.Grad[i] += gi
			m.Grad[base+i] += gi
		}
	})
}

// Scale returns x scaled by constant c.
func (g *Graph) Scale(x *Vector, c float64) *Vector {
	out := &Vector{Data: make([]float64, len(x.Data))}
	for i, v := range x.Data {
		out.Data[i] = v * c
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for i, gi := range out.Grad {
			x.Grad[i] += gi * c
		}
	})
}

// Slice returns elements [start, end) of x as a new node.
func (g *Graph) Slice(x *Vector, start, end int) *Vector {
	out := &Vector{Data: append([]float64(nil), x.Data[start:end]...)}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for i, gi := range out.Grad {
			x.Grad[start+i] += gi
		}
	})
}

// Concat joins the given vectors into one node.
func (g *Graph) Concat(xs []*Vector) *Vector {
	n := 0
	for _, x := range xs {
		n += len(x.Data)
	}
	out := &Vector{Data: make([]float64, 0, n)}
	for _, x := range xs {
		out.Data = append(out.Data, x.Data...)
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		off := 0
		for _, x := range xs {
			for i := range x.Data {
				x.Grad[i] += out.Grad[off+i]
			}
			off += len(x.Data)
		}
	})
}

// LayerNorm normalizes x to zero mean and unit variance, then applies the
// learned elementwise gain and bias.
func (g *Graph) LayerNorm(x *Vector, gain, bias *Vector) *Vector {
	const eps = 1e-5
	n := len(x.Data)
	mu := 0.0
	for _, v := range x.Data {
		mu += v
	}
	mu /= float64(n)
	variance := 0.0
	for _, v := range x.Data {
		d := v - mu
		variance += d * d
	}
	variance /= float64(n)
	invStd := 1.0 / math.Sqrt(variance+eps)

	xhat := make([]float64, n)
	out := &Vector{Data: make([]float64, n)}
	for i, v := range x.Data {
		xhat[i] = (v - mu) * invStd
		out.Data[i] = gain.Data[i]*xhat[i] + bias.Data[i]
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		// dL/dxhat_i = gain_i * dy_i; dL/dx via the standard layer-norm
		// backward: (dxhat - mean(dxhat) - xhat * mean(dxhat * xhat)) * invStd.
		meanD := 0.0
		meanDX := 0.0
		for i, gi := range out.Grad {
			d := gain.Data[i] * gi
			meanD += d
			meanDX += d * xhat[i]
			gain.Grad[i] += gi * xhat[i]
			bias.Grad[i] += gi
		}
		meanD /= float64(n)
		meanDX /= float64(n)
		for i, gi := range out.Grad {
			d := gain.Data[i] * gi
			x.Grad[i] += (d - meanD - xhat[i]*meanDX) * invStd
		}
	})
}

// Softmax returns the softmax of x, shifted by the max for stability.
func (g *Graph) Softmax(x *Vector) *Vector {
	maxVal := x.Data[0]
	for _, v := range x.Data[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	out := &Vector{Data: make([]float64, len(x.Data))}
	total := 0.0
	for i, v := range x.Data {
		e := math.Exp(v - maxVal)
		out.Data[i] = e
		total += e
	}
	for i := range out.Data {
		out.Data[i] /= total
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		dot := 0.0
		for i, gi := range out.Grad {
			dot += gi * out.Data[i]
		}
		for i, gi := range out.Grad {
			x.Grad[i] += out.Data[i] * (gi - dot)
		}
	})
}

// GELU applies the gaussian error linear unit (tanh approximation)
// elementwise.
func (g *Graph) GELU(x *Vector) *Vector {
	const c = 0.7978845608028654 // sqrt(2/pi)
	out := &Vector{Data: make([]float64, len(x.Data))}
	for i, v := range x.Data {
		u := c * (v + 0.044715*v*v*v)
		out.Data[i] = 0.5 * v * (1 + math.Tanh(u))
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for i, gi := range out.Grad {
			v := x.Data[i]
			u := c * (v + 0.044715*v*v*v)
			th := math.Tanh(u)
			du := c * (1 + 3*0.044715*v*v)
			x.Grad[i] += gi * (0.5*(1+th) + 0.5*v*(1-th*th)*du)
		}
	})
}

// AttnScores computes the scaled dot product of the query against every key:
// out[t] = (q · keys[t]) * scale.
func (g *Graph) AttnScores(q *Vector, keys []*Vector, scale float64) *Vector {
	out := &Vector{Data: make([]float64, len(keys))}
	for t, k := range keys {
		sum := 0.0
		for j, qv := range q.Data {
			sum += qv * k.Data[j]
		}
		out.Data[t] = sum * scale
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for t, k := range keys {
			gt := out.Grad[t] * scale
			if gt == 0 {
				continue
			}
			for j, qv := range q.Data {
				q.Grad[j] += gt * k.Data[j]
				k.Grad[j] += gt * qv
			}
		}
	})
}

// WeightedSum computes sum_t weights[t] * values[t].
func (g *Graph) WeightedSum(weights *Vector, values []*Vector) *Vector {
	dim := len(values[0].Data)
	out := &Vector{Data: make([]float64, dim)}
	for t, v := range values {
		w := weights.Data[t]
		for j := range out.Data {
			out.Data[j] += w * v.Data[j]
		}
	}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		for t, v := range values {
			w := weights.Data[t]
			for j, gj := range out.Grad {
				weights.Grad[t] += v.Data[j] * gj
				v.Grad[j] += w * gj
			}
		}
	})
}

// HuberLoss returns the mean Huber loss between pred and target as a scalar
// node: quadratic within delta of the target, linear beyond it.
func (g *Graph) HuberLoss(pred *Vector, target []float64, delta float64) *Vector {
	n := len(pred.Data)
	total := 0.0
	for i, p := range pred.Data {
		e := p - target[i]
		abs := math.Abs(e)
		if abs <= delta {
			total += 0.5 * e * e
		} else {
			total += delta * (abs - 0.5*delta)
		}
	}
	out := &Vector{Data: []float64{total / float64(n)}}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		gi := out.Grad[0] / float64(n)
		for i, p := range pred.Data {
			e := p - target[i]
			switch {
			case e > delta:
				pred.Grad[i] += gi * delta
			case e < -delta:
				pred.Grad[i] -= gi * delta
			default:
				pred.Grad[i] += gi * e
			}
		}
	})
}

// MeanScalars averages scalar loss nodes into one scalar node.
func (g *Graph) MeanScalars(xs []*Vector) *Vector {
	total := 0.0
	for _, x := range xs {
		total += x.Data[0]
	}
	out := &Vector{Data: []float64{total / float64(len(xs))}}
	if g == nil {
		return out
	}
	return g.record(out, func() {
		gi := out.Grad[0] / float64(len(xs))
		for _, x := range xs {
			x.Grad[0] += gi
		}
	})
}
