// Package model implements the patch-based transformer that maps a window of
// differenced features to a vector of forecast values. Forward is a pure
// function of the input window; gradient recording is controlled by the
// caller through the nn.Graph argument.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"patch-forecast-lab/internal/nn"
)

var ErrBadConfig = errors.New("invalid model config")

// Config fixes the model architecture. NumPatches is derived:
// (InputLen - PatchLen)/Stride + 1.
type Config struct {
	InputDim    int `yaml:"input_dim" json:"input_dim"`       // fields per row
	InputLen    int `yaml:"input_len" json:"input_len"`       // rows per window
	PatchLen    int `yaml:"patch_len" json:"patch_len"`       // rows per patch
	Stride      int `yaml:"stride" json:"stride"`             // rows between patch starts
	HiddenDim   int `yaml:"hidden_dim" json:"hidden_dim"`     // embedding width
	NumHeads    int `yaml:"num_heads" json:"num_heads"`       // attention heads
	NumLayers   int `yaml:"num_layers" json:"num_layers"`     // encoder blocks
	MaxPatches  int `yaml:"max_patches" json:"max_patches"`   // positional table rows
	ForecastLen int `yaml:"forecast_len" json:"forecast_len"` // output positions
}

// NumPatches returns the patch sequence length for this config.
func (c Config) NumPatches() int {
	return (c.InputLen-c.PatchLen)/c.Stride + 1
}

// Validate checks the architecture constraints.
func (c Config) Validate() error {
	switch {
	case c.InputDim < 1:
		return fmt.Errorf("%w: input_dim %d", ErrBadConfig, c.InputDim)
	case c.PatchLen < 1 || c.Stride < 1:
		return fmt.Errorf("%w: patch_len %d, stride %d", ErrBadConfig, c.PatchLen, c.Stride)
	case c.InputLen < c.PatchLen:
		return fmt.Errorf("%w: input_len %d < patch_len %d", ErrBadConfig, c.InputLen, c.PatchLen)
	case c.HiddenDim < 1 || c.NumHeads < 1 || c.HiddenDim%c.NumHeads != 0:
		return fmt.Errorf("%w: hidden_dim %d not divisible by num_heads %d", ErrBadConfig, c.HiddenDim, c.NumHeads)
	case c.NumLayers < 1:
		return fmt.Errorf("%w: num_layers %d", ErrBadConfig, c.NumLayers)
	case c.NumPatches() > c.MaxPatches:
		return fmt.Errorf("%w: %d patches exceed max_patches %d", ErrBadConfig, c.NumPatches(), c.MaxPatches)
	case c.ForecastLen < 1 || c.ForecastLen > c.NumPatches():
		return fmt.Errorf("%w: forecast_len %d not in [1, %d]", ErrBadConfig, c.ForecastLen, c.NumPatches())
	}
	return nil
}

type encoderLayer struct {
	wq, wk, wv, wo *nn.Matrix
	w1, w2         *nn.Matrix
	b1, b2         *nn.Vector
	ln1g, ln1b     *nn.Vector
	ln2g, ln2b     *nn.Vector
}

// Model is the patch sequence transformer. Parameters are owned by the
// instance: the trainer mutates them, inference only reads.
type Model struct {
	cfg Config

	patchW *nn.Matrix // HiddenDim × (PatchLen · InputDim), the 1-D conv kernel
	patchB *nn.Vector
	pos    *nn.Matrix // MaxPatches × HiddenDim learned positional bias
	layers []*encoderLayer
	headW  *nn.Matrix // 1 × HiddenDim output projection
	headB  *nn.Vector
}

// New builds a model with Xavier-initialized weights drawn from rng.
// Layer-norm gains start at 1, everything else bias-free at 0.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		cfg:    cfg,
		patchW: nn.NewMatrixXavier(cfg.HiddenDim, cfg.PatchLen*cfg.InputDim, rng),
		patchB: nn.NewParamVector(cfg.HiddenDim),
		pos:    nn.NewMatrixXavier(cfg.MaxPatches, cfg.HiddenDim, rng),
		headW:  nn.NewMatrixXavier(1, cfg.HiddenDim, rng),
		headB:  nn.NewParamVector(1),
	}

	ffn := 4 * cfg.HiddenDim
	for i := 0; i < cfg.NumLayers; i++ {
		l := &encoderLayer{
			wq:   nn.NewMatrixXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			wk:   nn.NewMatrixXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			wv:   nn.NewMatrixXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			wo:   nn.NewMatrixXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			w1:   nn.NewMatrixXavier(ffn, cfg.HiddenDim, rng),
			w2:   nn.NewMatrixXavier(cfg.HiddenDim, ffn, rng),
			b1:   nn.NewParamVector(ffn),
			b2:   nn.NewParamVector(cfg.HiddenDim),
			ln1g: nn.NewParamVector(cfg.HiddenDim),
			ln1b: nn.NewParamVector(cfg.HiddenDim),
			ln2g: nn.NewParamVector(cfg.HiddenDim),
			ln2b: nn.NewParamVector(cfg.HiddenDim),
		}
		for j := range l.ln1g.Data {
			l.ln1g.Data[j] = 1
			l.ln2g.Data[j] = 1
		}
		m.layers = append(m.layers, l)
	}
	return m, nil
}

// Config returns the architecture the model was built with.
func (m *Model) Config() Config {
	return m.cfg
}

// Parameters returns every trainable tensor in a stable order, the order the
// optimizer and checkpoint rely on.
func (m *Model) Parameters() []nn.Parameter {
	params := []nn.Parameter{m.patchW, m.patchB, m.pos}
	for _, l := range m.layers {
		params = append(params,
			l.wq, l.wk, l.wv, l.wo,
			l.w1, l.b1, l.w2, l.b2,
			l.ln1g, l.ln1b, l.ln2g, l.ln2b,
		)
	}
	return append(params, m.headW, m.headB)
}

// Forward maps one input window (InputLen rows × InputDim fields) to a
// forecast vector of length ForecastLen. A nil graph runs inference without
// gradient recording.
func (m *Model) Forward(g *nn.Graph, window [][]float64) (*nn.Vector, error) {
	if len(window) != m.cfg.InputLen {
		return nil, fmt.Errorf("window has %d rows, model wants %d", len(window), m.cfg.InputLen)
	}

	seq := m.embedPatches(g, window)
	for _, l := range m.layers {
		seq = m.encode(g, l, seq)
	}

	// Scalar projection of the last ForecastLen positions.
	outs := make([]*nn.Vector, m.cfg.ForecastLen)
	start := len(seq) - m.cfg.ForecastLen
	for i := range outs {
		outs[i] = g.Affine(m.headW, m.headB, seq[start+i])
	}
	return g.Concat(outs), nil
}

// embedPatches flattens each patch row-major and projects it to HiddenDim,
// then adds the positional bias. Equivalent to a 1-D convolution with
// kernel PatchLen over the time axis.
func (m *Model) embedPatches(g *nn.Graph, window [][]float64) []*nn.Vector {
	numPatches := m.cfg.NumPatches()
	seq := make([]*nn.Vector, numPatches)
	flatLen := m.cfg.PatchLen * m.cfg.InputDim
	for p := 0; p < numPatches; p++ {
		flat := make([]float64, 0, flatLen)
		for r := p * m.cfg.Stride; r < p*m.cfg.Stride+m.cfg.PatchLen; r++ {
			flat = append(flat, window[r]...)
		}
		emb := g.Affine(m.patchW, m.patchB, g.Constant(flat))
		seq[p] = g.AddRow(emb, m.pos, p)
	}
	return seq
}

// encode runs one pre-norm encoder block: multi-head self-attention with a
// residual connection, then a GELU feed-forward with a residual connection.
func (m *Model) encode(g *nn.Graph, l *encoderLayer, seq []*nn.Vector) []*nn.Vector {
	T := len(seq)
	headDim := m.cfg.HiddenDim / m.cfg.NumHeads
	scale := 1 / math.Sqrt(float64(headDim))

	normed := make([]*nn.Vector, T)
	qs := make([]*nn.Vector, T)
	ks := make([]*nn.Vector, T)
	vs := make([]*nn.Vector, T)
	for t, x := range seq {
		normed[t] = g.LayerNorm(x, l.ln1g, l.ln1b)
		qs[t] = g.Affine(l.wq, nil, normed[t])
		ks[t] = g.Affine(l.wk, nil, normed[t])
		vs[t] = g.Affine(l.wv, nil, normed[t])
	}

	// Per-head slices, full bidirectional attention over the patch sequence.
	keyH := make([][]*nn.Vector, m.cfg.NumHeads)
	valH := make([][]*nn.Vector, m.cfg.NumHeads)
	for h := 0; h < m.cfg.NumHeads; h++ {
		keyH[h] = make([]*nn.Vector, T)
		valH[h] = make([]*nn.Vector, T)
		for t := 0; t < T; t++ {
			keyH[h][t] = g.Slice(ks[t], h*headDim, (h+1)*headDim)
			valH[h][t] = g.Slice(vs[t], h*headDim, (h+1)*headDim)
		}
	}

	out := make([]*nn.Vector, T)
	for t := 0; t < T; t++ {
		heads := make([]*nn.Vector, m.cfg.NumHeads)
		for h := 0; h < m.cfg.NumHeads; h++ {
			q := g.Slice(qs[t], h*headDim, (h+1)*headDim)
			probs := g.Softmax(g.AttnScores(q, keyH[h], scale))
			heads[h] = g.WeightedSum(probs, valH[h])
		}
		attn := g.Affine(l.wo, nil, g.Concat(heads))
		x := g.Add(seq[t], attn)

		ffn := g.Affine(l.w2, l.b2, g.GELU(g.Affine(l.w1, l.b1, g.LayerNorm(x, l.ln2g, l.ln2b))))
		out[t] = g.Add(x, ffn)
	}
	return out
}
