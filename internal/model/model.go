package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShape reports tensors whose dimensions do not line up.
var ErrShape = errors.New("shape mismatch")

// Scores holds per-timestep class scores, one (time x classes) matrix per batch row.
type Scores []*mat.Dense

// Dims returns batch, time and class counts. Rows are assumed to share a shape.
func (s Scores) Dims() (batch, steps, classes int) {
	if len(s) == 0 {
		return 0, 0, 0
	}
	steps, classes = s[0].Dims()
	return len(s), steps, classes
}

// Param is a trainable tensor and its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Network is the pluggable inference component. Forward caches whatever Backward
// needs, so a Backward call always refers to the most recent Forward.
type Network interface {
	// Forward maps stacked raw inputs (batch x samples) to class scores.
	Forward(inputs *mat.Dense) (Scores, error)
	// Backward accumulates dLoss/dParams into each Param.Grad.
	Backward(dScores Scores) error
	// Params lists every trainable parameter in a stable order.
	Params() []*Param
	OutputDim() int
}

// ZeroGrads clears the gradient buffers of params.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.Grad.Zero()
	}
}

// New builds the network named by arch. An empty arch selects "framenet".
func New(arch string, cfg FrameNetConfig) (Network, error) {
	switch arch {
	case "", "framenet":
		return NewFrameNet(cfg)
	case "linear":
		cfg.HiddenDim = 0
		return NewFrameNet(cfg)
	default:
		return nil, fmt.Errorf("model: unknown arch %q", arch)
	}
}
