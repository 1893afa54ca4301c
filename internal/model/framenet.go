package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FrameNetConfig sizes a FrameNet.
type FrameNetConfig struct {
	FrameSize int // raw samples per output step
	HiddenDim int // 0 selects a linear classifier
	OutputDim int
	InitScale float64 // <= 0 selects 1/sqrt(fan_in)
	Seed      int64
}

// FrameNet cuts each input row into consecutive frames of FrameSize samples
// and classifies every frame independently, optionally through one ReLU layer.
type FrameNet struct {
	frameSize int
	layers    []*dense
	params    []*Param

	// activations of the last Forward, indexed [batch row][layer input]
	cache [][]*mat.Dense
}

// NewFrameNet constructs the network with seeded uniform initialization.
func NewFrameNet(cfg FrameNetConfig) (*FrameNet, error) {
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("framenet: frame_size must be > 0 (got %d)", cfg.FrameSize)
	}
	if cfg.OutputDim <= 1 {
		return nil, fmt.Errorf("framenet: output_dim must be > 1 (got %d)", cfg.OutputDim)
	}
	if cfg.HiddenDim < 0 {
		return nil, fmt.Errorf("framenet: hidden_dim must be >= 0 (got %d)", cfg.HiddenDim)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	dims := []int{cfg.FrameSize}
	if cfg.HiddenDim > 0 {
		dims = append(dims, cfg.HiddenDim)
	}
	dims = append(dims, cfg.OutputDim)

	n := &FrameNet{frameSize: cfg.FrameSize}
	for i := 0; i+1 < len(dims); i++ {
		fanIn, fanOut := dims[i], dims[i+1]
		scale := cfg.InitScale
		if scale <= 0 {
			scale = 1 / math.Sqrt(float64(fanIn))
		}
		layer := &dense{
			w: newParam(fmt.Sprintf("layer%d/weights", i), fanIn, fanOut),
			b: newParam(fmt.Sprintf("layer%d/bias", i), 1, fanOut),
		}
		w := layer.w.Value.RawMatrix().Data
		for j := range w {
			w[j] = (rng.Float64()*2 - 1) * scale
		}
		n.layers = append(n.layers, layer)
		n.params = append(n.params, layer.w, layer.b)
	}
	return n, nil
}

// Params implements Network.
func (n *FrameNet) Params() []*Param { return n.params }

// OutputDim implements Network.
func (n *FrameNet) OutputDim() int {
	_, c := n.layers[len(n.layers)-1].w.Value.Dims()
	return c
}

// Forward implements Network.
func (n *FrameNet) Forward(inputs *mat.Dense) (Scores, error) {
	batch, width := inputs.Dims()
	if width%n.frameSize != 0 {
		return nil, fmt.Errorf("framenet: input length %d is not a multiple of frame_size %d: %w", width, n.frameSize, ErrShape)
	}
	steps := width / n.frameSize

	scores := make(Scores, batch)
	n.cache = make([][]*mat.Dense, batch)
	for b := 0; b < batch; b++ {
		row := make([]float64, width)
		mat.Row(row, b, inputs)
		x := mat.NewDense(steps, n.frameSize, row)
		acts := []*mat.Dense{x}
		for i, layer := range n.layers {
			x = layer.forward(x)
			if i < len(n.layers)-1 {
				relu(x)
			}
			acts = append(acts, x)
		}
		n.cache[b] = acts[:len(acts)-1]
		scores[b] = x
	}
	return scores, nil
}

// Backward implements Network.
func (n *FrameNet) Backward(dScores Scores) error {
	if n.cache == nil {
		return errors.New("framenet: backward without forward")
	}
	if len(dScores) != len(n.cache) {
		return fmt.Errorf("framenet: %d score gradients for batch %d: %w", len(dScores), len(n.cache), ErrShape)
	}
	for b, dy := range dScores {
		acts := n.cache[b]
		for i := len(n.layers) - 1; i >= 0; i-- {
			dx := n.layers[i].backward(acts[i], dy)
			if i > 0 {
				reluGrad(dx, acts[i])
			}
			dy = dx
		}
	}
	return nil
}

type dense struct {
	w, b *Param
}

func (d *dense) forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	_, cols := d.w.Value.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Mul(x, d.w.Value)
	bias := d.b.Value.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(out.RawRowView(i), bias)
	}
	return out
}

// backward accumulates parameter gradients and returns dLoss/dx.
func (d *dense) backward(x, dy *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(x.T(), dy)
	d.w.Grad.Add(d.w.Grad, &dw)

	gb := d.b.Grad.RawRowView(0)
	rows, _ := dy.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(gb, dy.RawRowView(i))
	}

	var dx mat.Dense
	dx.Mul(dy, d.w.Value.T())
	return &dx
}

func relu(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, m)
}

// reluGrad zeroes grad wherever the post-activation value was clamped.
func reluGrad(grad, act *mat.Dense) {
	grad.Apply(func(i, j int, v float64) float64 {
		if act.At(i, j) <= 0 {
			return 0
		}
		return v
	}, grad)
}
