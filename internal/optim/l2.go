package optim

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// L2Penalty returns weight * sum(||p||^2) over every parameter. There is no
// per-parameter opt-out: biases are penalized like weights.
func L2Penalty(params []*mat.Dense, weight float64) float64 {
	sum := 0.0
	for _, p := range params {
		n := mat.Norm(p, 2)
		sum += n * n
	}
	return weight * sum
}

// AddL2Grad adds d(L2Penalty)/dp = 2 * weight * p to each gradient.
func AddL2Grad(grads, params []*mat.Dense, weight float64) {
	for i, p := range params {
		floats.AddScaled(grads[i].RawMatrix().Data, 2*weight, p.RawMatrix().Data)
	}
}
