package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNoValidPositions is returned when a mask has nothing to normalize by.
var ErrNoValidPositions = errors.New("mask has no valid positions")

// Objective is the masked loss and accuracy of one batch.
type Objective struct {
	Loss     float64
	Accuracy float64
	// Valid is the mask sum the figures were normalized by.
	Valid float64
	// Grad is dLoss/dScores.
	Grad Scores
}

// MaskedObjective computes mean softmax cross-entropy and accuracy over the
// positions selected by mask.
func MaskedObjective(scores Scores, labels [][]int, mask *mat.Dense) (Objective, error) {
	batch, steps, classes := scores.Dims()
	if batch == 0 {
		return Objective{}, fmt.Errorf("objective: empty scores: %w", ErrShape)
	}
	if mask == nil {
		return Objective{}, fmt.Errorf("objective: missing mask: %w", ErrShape)
	}
	if mr, mc := mask.Dims(); mr != batch || mc != steps {
		return Objective{}, fmt.Errorf("objective: mask is %dx%d, scores are %dx%d: %w", mr, mc, batch, steps, ErrShape)
	}
	if len(labels) != batch {
		return Objective{}, fmt.Errorf("objective: %d label rows for batch %d: %w", len(labels), batch, ErrShape)
	}
	for b, s := range scores {
		if r, c := s.Dims(); r != steps || c != classes {
			return Objective{}, fmt.Errorf("objective: scores row %d is %dx%d, want %dx%d: %w", b, r, c, steps, classes, ErrShape)
		}
		if len(labels[b]) != steps {
			return Objective{}, fmt.Errorf("objective: labels row %d has %d steps, want %d: %w", b, len(labels[b]), steps, ErrShape)
		}
	}

	total := mat.Sum(mask)
	if !(total > 0) {
		return Objective{}, ErrNoValidPositions
	}
	inv := 1.0 / total

	var lossSum, correctSum float64
	grad := make(Scores, batch)
	for b, s := range scores {
		g := mat.NewDense(steps, classes, nil)
		grad[b] = g
		for t := 0; t < steps; t++ {
			w := mask.At(b, t)
			if w == 0 {
				continue
			}
			label := labels[b][t]
			if label < 0 || label >= classes {
				return Objective{}, fmt.Errorf("objective: label %d at (%d,%d) outside [0,%d): %w", label, b, t, classes, ErrShape)
			}
			row := s.RawRowView(t)
			lse := floats.LogSumExp(row)
			lossSum += w * (lse - row[label])
			if floats.MaxIdx(row) == label {
				correctSum += w
			}

			gr := g.RawRowView(t)
			for c, v := range row {
				gr[c] = w * inv * math.Exp(v-lse)
			}
			gr[label] -= w * inv
		}
	}

	return Objective{
		Loss:     lossSum * inv,
		Accuracy: correctSum * inv,
		Valid:    total,
		Grad:     grad,
	}, nil
}
