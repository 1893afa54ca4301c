// Package optim holds the pieces of the momentum SGD update: the learning-rate
// schedule, global-norm clipping, the L2 penalty and the momentum rule itself.
package optim

import (
	"fmt"
	"math"
)

// MomentumInit is the momentum coefficient used before warmup completes.
const MomentumInit = 0.5

// Staircase is an exponential learning-rate decay that only drops at
// multiples of DecaySteps.
type Staircase struct {
	Base       float64
	DecayRate  float64
	DecaySteps int64
}

// NewStaircase validates the schedule parameters.
func NewStaircase(base, rate float64, steps int64) (Staircase, error) {
	if base <= 0 {
		return Staircase{}, fmt.Errorf("learning_rate must be > 0 (got %g)", base)
	}
	if rate <= 0 {
		return Staircase{}, fmt.Errorf("decay_rate must be > 0 (got %g)", rate)
	}
	if steps <= 0 {
		return Staircase{}, fmt.Errorf("decay_steps must be > 0 (got %d)", steps)
	}
	return Staircase{Base: base, DecayRate: rate, DecaySteps: steps}, nil
}

// At returns the learning rate for the given global step.
func (s Staircase) At(step int64) float64 {
	if step < 0 {
		step = 0
	}
	return s.Base * math.Pow(s.DecayRate, float64(step/s.DecaySteps))
}
