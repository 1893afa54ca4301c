package metrics

// DefaultDecay is the smoothing factor used for reported loss and accuracy.
const DefaultDecay = 0.95

// EMA is an exponential moving average whose shadow is seeded by the first
// update. Fields are exported so the average survives a checkpoint.
type EMA struct {
	Decay       float64
	Shadow      float64
	Initialized bool
}

// NewEMA returns an average with the given decay.
func NewEMA(decay float64) EMA {
	return EMA{Decay: decay}
}

// Update folds v into the average and returns the new smoothed value.
func (e *EMA) Update(v float64) float64 {
	if !e.Initialized {
		e.Shadow = v
		e.Initialized = true
		return v
	}
	e.Shadow = e.Decay*e.Shadow + (1-e.Decay)*v
	return e.Shadow
}

// Value returns the smoothed value, 0 before the first update.
func (e EMA) Value() float64 {
	return e.Shadow
}
