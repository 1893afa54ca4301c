package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"seqlabel/internal/checkpoint"
	"seqlabel/internal/dataset"
	"seqlabel/internal/metrics"
	"seqlabel/internal/model"
	"seqlabel/internal/telemetry"
)

const (
	// MomentumWarmupSteps is the global step at which momentum switches from
	// its initial value to the configured target.
	MomentumWarmupSteps = 50
	defaultLogEvery     = 100
)

// Loader yields padded batches for a split.
type Loader interface {
	Batches(split dataset.Split) ([]dataset.Batch, error)
}

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Epochs    int
	SavePath  string
	Classes   []string
	RunID     string
	LogEvery  int
	Optimizer OptimizerConfig
}

// Trainer runs epochs of training, checkpointing and validation.
type Trainer struct {
	cfg    RunConfig
	net    model.Network
	step   *Step
	state  *State
	loader Loader
	sink   telemetry.Sink
	window metrics.Window
}

// New wires a trainer around net. The step function is built here, once.
func New(cfg RunConfig, net model.Network, loader Loader, sink telemetry.Sink) (*Trainer, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.SavePath == "" {
		return nil, errors.New("trainer: save path must be set")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = defaultLogEvery
	}
	step, err := NewStep(net, cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		cfg:    cfg,
		net:    net,
		step:   step,
		state:  NewState(),
		loader: loader,
		sink:   sink,
	}, nil
}

// State returns a copy of the current bookkeeping.
func (t *Trainer) State() State {
	return *t.state
}

// Run executes the configured number of epochs.
func (t *Trainer) Run(ctx context.Context) error {
	ckptPath := checkpoint.Path(t.cfg.SavePath)
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		start := time.Now()
		if err := t.runEpoch(ctx, epoch); err != nil {
			return err
		}
		if err := checkpoint.Save(ckptPath, t.Snapshot(epoch)); err != nil {
			return fmt.Errorf("epoch %d step %d: %w", epoch, t.state.GlobalStep, err)
		}
		log.Printf("epoch=%d time=%.1fs step=%d checkpoint=%s", epoch, time.Since(start).Seconds(), t.state.GlobalStep, ckptPath)
		if err := t.runValidation(ctx); err != nil {
			return fmt.Errorf("epoch %d step %d: %w", epoch, t.state.GlobalStep, err)
		}
	}
	return nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int) error {
	batches, err := t.loader.Batches(dataset.Train)
	if err != nil {
		return fmt.Errorf("epoch %d: %w", epoch, err)
	}
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := t.state.GlobalStep + 1

		startData := time.Now()
		feed, err := model.BuildFeed(batch.Inputs, batch.Labels, batch.Lengths)
		if err != nil {
			return fmt.Errorf("epoch %d step %d: %w", epoch, next, err)
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		res, err := t.step.Run(t.state, feed)
		if err != nil {
			return fmt.Errorf("epoch %d step %d: %w", epoch, next, err)
		}
		computeTime := time.Since(startCompute)
		t.window.Record(len(batch.Inputs), validFrames(batch), dataTime, computeTime)

		if err := t.sink.AddScalar(ctx, telemetry.Loss, res.GlobalStep, res.Loss); err != nil {
			return err
		}
		if err := t.sink.AddScalar(ctx, telemetry.Accuracy, res.GlobalStep, res.Accuracy); err != nil {
			return err
		}

		if res.GlobalStep == MomentumWarmupSteps {
			t.state.Momentum = t.cfg.Optimizer.Momentum
			log.Printf("step=%d momentum=%.3f", res.GlobalStep, t.state.Momentum)
		}
		if res.GlobalStep%int64(t.cfg.LogEvery) == 0 {
			snap := t.window.Snapshot()
			log.Printf("step=%d avg_loss=%.3f avg_acc=%.3f lr=%.6f grad_norm=%.3f seqs_per_sec=%.1f data_ms=%.2f compute_ms=%.2f",
				res.GlobalStep,
				res.AvgLoss,
				res.AvgAcc,
				res.LearningRate,
				res.GradNorm,
				snap.SequencesPerSec,
				snap.AvgDataMS,
				snap.AvgComputeMS,
			)
		}
	}
	return nil
}

func (t *Trainer) runValidation(ctx context.Context) error {
	batches, err := t.loader.Batches(dataset.Val)
	if err != nil {
		return err
	}
	step := t.state.GlobalStep
	res, err := Validate(ctx, t.step, batches)
	if errors.Is(err, ErrNoBatches) {
		log.Printf("validation step=%d skipped: no batches", step)
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.sink.AddScalar(ctx, telemetry.DevAccuracy, step, res.Accuracy); err != nil {
		return err
	}
	if err := t.sink.AddScalar(ctx, telemetry.DevLoss, step, res.Loss); err != nil {
		return err
	}
	log.Printf("validation step=%d loss=%.3f acc=%.3f batches=%d", step, res.Loss, res.Accuracy, res.Batches)
	return nil
}

func validFrames(b dataset.Batch) int {
	if b.Lengths == nil {
		if len(b.Labels) == 0 {
			return 0
		}
		return len(b.Labels) * len(b.Labels[0])
	}
	n := 0
	for _, l := range b.Lengths {
		n += l
	}
	return n
}
