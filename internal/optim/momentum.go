package optim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Momentum applies v = mu*v - lr*g; p += v. Velocities are allocated once,
// shaped like the parameters handed to NewMomentum.
type Momentum struct {
	velocity []*mat.Dense
}

// NewMomentum allocates zero velocities for params.
func NewMomentum(params []*mat.Dense) *Momentum {
	m := &Momentum{velocity: make([]*mat.Dense, len(params))}
	for i, p := range params {
		r, c := p.Dims()
		m.velocity[i] = mat.NewDense(r, c, nil)
	}
	return m
}

// Check verifies that params and grads match the velocity shapes.
func (m *Momentum) Check(params, grads []*mat.Dense) error {
	if len(params) != len(m.velocity) || len(grads) != len(m.velocity) {
		return fmt.Errorf("momentum: %d params, %d grads, %d velocities", len(params), len(grads), len(m.velocity))
	}
	for i, v := range m.velocity {
		vr, vc := v.Dims()
		if pr, pc := params[i].Dims(); pr != vr || pc != vc {
			return fmt.Errorf("momentum: param %d is %dx%d, velocity %dx%d", i, pr, pc, vr, vc)
		}
		if gr, gc := grads[i].Dims(); gr != vr || gc != vc {
			return fmt.Errorf("momentum: grad %d is %dx%d, velocity %dx%d", i, gr, gc, vr, vc)
		}
	}
	return nil
}

// Apply updates params in place. Callers run Check first; Apply itself
// cannot fail so an update is never half applied.
func (m *Momentum) Apply(params, grads []*mat.Dense, lr, mu float64) {
	for i, v := range m.velocity {
		vd := v.RawMatrix().Data
		floats.Scale(mu, vd)
		floats.AddScaled(vd, -lr, grads[i].RawMatrix().Data)
		floats.Add(params[i].RawMatrix().Data, vd)
	}
}

// Velocities exposes the velocity buffers for checkpointing.
func (m *Momentum) Velocities() []*mat.Dense {
	return m.velocity
}
