package trainer

import (
	"context"
	"errors"
	"fmt"

	"seqlabel/internal/dataset"
	"seqlabel/internal/model"
)

// ErrNoBatches is returned by Validate when there is nothing to evaluate.
var ErrNoBatches = errors.New("no validation batches")

// Validation is the mean raw loss and accuracy over a set of batches.
type Validation struct {
	Loss     float64
	Accuracy float64
	Batches  int
}

// Validate evaluates every batch and averages the per-batch figures.
// Parameters, velocities and state are not modified.
func Validate(ctx context.Context, step *Step, batches []dataset.Batch) (Validation, error) {
	if len(batches) == 0 {
		return Validation{}, ErrNoBatches
	}
	var lossSum, accSum float64
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return Validation{}, err
		}
		feed, err := model.BuildFeed(b.Inputs, b.Labels, b.Lengths)
		if err != nil {
			return Validation{}, fmt.Errorf("validation batch %d: %w", i, err)
		}
		loss, acc, err := step.Evaluate(feed)
		if err != nil {
			return Validation{}, fmt.Errorf("validation batch %d: %w", i, err)
		}
		lossSum += loss
		accSum += acc
	}
	n := float64(len(batches))
	return Validation{Loss: lossSum / n, Accuracy: accSum / n, Batches: len(batches)}, nil
}
