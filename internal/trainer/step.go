package trainer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"seqlabel/internal/model"
	"seqlabel/internal/optim"
)

// ErrNonFinite is returned when a step produces a NaN or infinite loss.
var ErrNonFinite = errors.New("non-finite loss")

// OptimizerConfig holds the resolved optimizer settings.
type OptimizerConfig struct {
	// Momentum is the target coefficient installed after warmup.
	Momentum     float64
	LearningRate float64
	DecaySteps   int64
	DecayRate    float64
	// L2Weight and ClipNorm are disabled when nil.
	L2Weight *float64
	ClipNorm *float64
}

// StepResult reports one optimization step.
type StepResult struct {
	GlobalStep   int64
	Loss         float64
	Accuracy     float64
	AvgLoss      float64
	AvgAcc       float64
	LearningRate float64
	GradNorm     float64
}

// Step is the compiled update: forward, masked objective, optional L2 and
// clipping, momentum update, global step increment and EMA update. Build it
// once per run and call Run per batch.
type Step struct {
	net      model.Network
	params   []*model.Param
	values   []*mat.Dense
	grads    []*mat.Dense
	opt      *optim.Momentum
	schedule optim.Staircase
	l2Weight *float64
	clipNorm *float64
}

// NewStep wires net to the optimizer described by cfg.
func NewStep(net model.Network, cfg OptimizerConfig) (*Step, error) {
	schedule, err := optim.NewStaircase(cfg.LearningRate, cfg.DecayRate, cfg.DecaySteps)
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	params := net.Params()
	if len(params) == 0 {
		return nil, errors.New("step: network has no parameters")
	}
	s := &Step{
		net:      net,
		params:   params,
		schedule: schedule,
		l2Weight: cfg.L2Weight,
		clipNorm: cfg.ClipNorm,
	}
	for _, p := range params {
		s.values = append(s.values, p.Value)
		s.grads = append(s.grads, p.Grad)
	}
	s.opt = optim.NewMomentum(s.values)
	if err := s.opt.Check(s.values, s.grads); err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	return s, nil
}

// LearningRate returns the rate applied at the given global step.
func (s *Step) LearningRate(step int64) float64 {
	return s.schedule.At(step)
}

// Run executes one update. On error nothing in net or state has changed.
func (s *Step) Run(state *State, feed *model.Feed) (StepResult, error) {
	obj, loss, err := s.evaluate(feed)
	if err != nil {
		return StepResult{}, err
	}

	model.ZeroGrads(s.params)
	if err := s.net.Backward(obj.Grad); err != nil {
		return StepResult{}, fmt.Errorf("backward: %w", err)
	}
	if s.l2Weight != nil {
		optim.AddL2Grad(s.grads, s.values, *s.l2Weight)
	}
	var norm float64
	if s.clipNorm != nil {
		norm = optim.ClipByGlobalNorm(s.grads, *s.clipNorm)
	} else {
		norm = optim.GlobalNorm(s.grads)
	}

	lr := s.schedule.At(state.GlobalStep)
	s.opt.Apply(s.values, s.grads, lr, state.Momentum)
	state.GlobalStep++
	avgLoss := state.AvgLoss.Update(loss)
	avgAcc := state.AvgAcc.Update(obj.Accuracy)

	return StepResult{
		GlobalStep:   state.GlobalStep,
		Loss:         loss,
		Accuracy:     obj.Accuracy,
		AvgLoss:      avgLoss,
		AvgAcc:       avgAcc,
		LearningRate: lr,
		GradNorm:     norm,
	}, nil
}

// Evaluate returns the raw loss (including any L2 penalty) and accuracy of
// feed without touching parameters or state.
func (s *Step) Evaluate(feed *model.Feed) (loss, acc float64, err error) {
	obj, loss, err := s.evaluate(feed)
	if err != nil {
		return 0, 0, err
	}
	return loss, obj.Accuracy, nil
}

func (s *Step) evaluate(feed *model.Feed) (model.Objective, float64, error) {
	if feed == nil || feed.Labels == nil || feed.Mask == nil {
		return model.Objective{}, 0, errors.New("step: feed has no labels")
	}
	scores, err := s.net.Forward(feed.Inputs)
	if err != nil {
		return model.Objective{}, 0, fmt.Errorf("forward: %w", err)
	}
	obj, err := model.MaskedObjective(scores, feed.Labels, feed.Mask)
	if err != nil {
		return model.Objective{}, 0, err
	}
	loss := obj.Loss
	if s.l2Weight != nil {
		loss += optim.L2Penalty(s.values, *s.l2Weight)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return model.Objective{}, 0, ErrNonFinite
	}
	return obj, loss, nil
}

// Velocities exposes the optimizer buffers in parameter order.
func (s *Step) Velocities() []*mat.Dense {
	return s.opt.Velocities()
}
