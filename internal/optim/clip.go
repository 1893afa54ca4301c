package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// GlobalNorm is the L2 norm of all grads concatenated.
func GlobalNorm(grads []*mat.Dense) float64 {
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := mat.Norm(g, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// ClipByGlobalNorm rescales grads in place so their global norm is at most
// clipNorm. It returns the norm measured before clipping.
func ClipByGlobalNorm(grads []*mat.Dense, clipNorm float64) float64 {
	norm := GlobalNorm(grads)
	if clipNorm <= 0 || norm <= clipNorm || norm == 0 {
		return norm
	}
	s := clipNorm / norm
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return norm
}
