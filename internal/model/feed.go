package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Feed holds the tensors consumed by one optimization or evaluation step.
type Feed struct {
	Inputs *mat.Dense // batch x samples
	Labels [][]int    // batch x steps, nil for inference
	Mask   *mat.Dense // batch x steps, nil for inference
}

// BuildFeed stacks a batch. All inputs must share a length, as must all labels;
// padding is the loader's job. When lengths is nil the mask is all ones,
// otherwise position t of row b is valid iff t < lengths[b].
func BuildFeed(inputs [][]float64, labels [][]int, lengths []int) (*Feed, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("feed: empty batch: %w", ErrShape)
	}
	width := len(inputs[0])
	if width == 0 {
		return nil, fmt.Errorf("feed: empty input sequence: %w", ErrShape)
	}
	stacked := mat.NewDense(len(inputs), width, nil)
	for i, in := range inputs {
		if len(in) != width {
			return nil, fmt.Errorf("feed: input %d has length %d, want %d: %w", i, len(in), width, ErrShape)
		}
		stacked.SetRow(i, in)
	}
	feed := &Feed{Inputs: stacked}
	if labels == nil {
		return feed, nil
	}

	if len(labels) != len(inputs) {
		return nil, fmt.Errorf("feed: %d label rows for %d inputs: %w", len(labels), len(inputs), ErrShape)
	}
	steps := len(labels[0])
	if steps == 0 {
		return nil, fmt.Errorf("feed: empty label sequence: %w", ErrShape)
	}
	feed.Labels = make([][]int, len(labels))
	for i, lbl := range labels {
		if len(lbl) != steps {
			return nil, fmt.Errorf("feed: labels %d has length %d, want %d: %w", i, len(lbl), steps, ErrShape)
		}
		feed.Labels[i] = append([]int(nil), lbl...)
	}

	mask := mat.NewDense(len(labels), steps, nil)
	switch {
	case lengths == nil:
		for i := 0; i < len(labels); i++ {
			for t := 0; t < steps; t++ {
				mask.Set(i, t, 1)
			}
		}
	case len(lengths) != len(labels):
		return nil, fmt.Errorf("feed: %d lengths for %d label rows: %w", len(lengths), len(labels), ErrShape)
	default:
		for i, n := range lengths {
			if n < 0 || n > steps {
				return nil, fmt.Errorf("feed: length %d of row %d outside [0, %d]: %w", n, i, steps, ErrShape)
			}
			for t := 0; t < n; t++ {
				mask.Set(i, t, 1)
			}
		}
	}
	feed.Mask = mask
	return feed, nil
}
