package nn

import "math"

// AdamW applies the Adam update with bias-corrected moments and decoupled
// weight decay. Moment buffers are allocated lazily on the first step, sized
// to the parameter set given there; the same set must be passed every step.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
	Clip        float64 // elementwise gradient clip, 0 disables

	t int
	m [][]float64
	v [][]float64
}

// NewAdamW creates an optimizer with the usual defaults for the zero fields:
// beta1=0.9, beta2=0.999, eps=1e-8.
func NewAdamW(lr, weightDecay, clip float64) *AdamW {
	return &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		Clip:        clip,
	}
}

// Step clips gradients, applies one AdamW update to every parameter, and
// zeroes the gradients.
func (o *AdamW) Step(params []Parameter) {
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			data, _ := p.Flat()
			o.m[i] = make([]float64, len(data))
			o.v[i] = make([]float64, len(data))
		}
	}
	o.t++
	b1Corr := 1.0 - math.Pow(o.Beta1, float64(o.t))
	b2Corr := 1.0 - math.Pow(o.Beta2, float64(o.t))

	for i, p := range params {
		data, grad := p.Flat()
		mi, vi := o.m[i], o.v[i]
		for j := range data {
			g := grad[j]
			if o.Clip > 0 {
				if g > o.Clip {
					g = o.Clip
				} else if g < -o.Clip {
					g = -o.Clip
				}
			}
			mi[j] = o.Beta1*mi[j] + (1-o.Beta1)*g
			vi[j] = o.Beta2*vi[j] + (1-o.Beta2)*g*g
			mHat := mi[j] / b1Corr
			vHat := vi[j] / b2Corr
			data[j] -= o.LR * (mHat/(math.Sqrt(vHat)+o.Eps) + o.WeightDecay*data[j])
			grad[j] = 0
		}
	}
}
