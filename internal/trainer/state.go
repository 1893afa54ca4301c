package trainer

import (
	"seqlabel/internal/metrics"
	"seqlabel/internal/optim"
)

// State is the mutable bookkeeping of one run. It is owned by a single
// goroutine; separate runs use separate States.
type State struct {
	// GlobalStep counts completed optimization updates.
	GlobalStep int64
	// Momentum is the coefficient used by the next update.
	Momentum float64
	AvgLoss  metrics.EMA
	AvgAcc   metrics.EMA
}

// NewState returns the state of a fresh run.
func NewState() *State {
	return &State{
		Momentum: optim.MomentumInit,
		AvgLoss:  metrics.NewEMA(metrics.DefaultDecay),
		AvgAcc:   metrics.NewEMA(metrics.DefaultDecay),
	}
}
