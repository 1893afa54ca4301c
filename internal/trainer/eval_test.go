package trainer

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"seqlabel/internal/dataset"
)

func TestValidateAveragesWithoutMutation(t *testing.T) {
	net := newToyNet(t)
	step, err := NewStep(net, baseOptimizer())
	if err != nil {
		t.Fatalf("NewStep: %v", err)
	}
	batches := []dataset.Batch{
		{Inputs: [][]float64{{1, 0, 0, 1}}, Labels: [][]int{{0, 1}}},
		{Inputs: [][]float64{{0, 1, 1, 0}, {1, 1, 0, 0}}, Labels: [][]int{{1, 0}, {0, 0}}, Lengths: []int{2, 1}},
	}
	before := paramCopies(net)

	res, err := Validate(context.Background(), step, batches)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Batches != 2 {
		t.Fatalf("batches=%d", res.Batches)
	}
	var wantLoss, wantAcc float64
	for _, b := range batches {
		feed := mustFeed(t, b)
		l, a, err := step.Evaluate(feed)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		wantLoss += l / 2
		wantAcc += a / 2
	}
	if math.Abs(res.Loss-wantLoss) > 1e-12 || math.Abs(res.Accuracy-wantAcc) > 1e-12 {
		t.Fatalf("got %+v want loss=%f acc=%f", res, wantLoss, wantAcc)
	}
	for i, p := range net.Params() {
		if !mat.Equal(p.Value, before[i]) {
			t.Fatalf("validation changed %s", p.Name)
		}
	}
}

func TestValidateEmpty(t *testing.T) {
	step, err := NewStep(newToyNet(t), baseOptimizer())
	if err != nil {
		t.Fatalf("NewStep: %v", err)
	}
	if _, err := Validate(context.Background(), step, nil); !errors.Is(err, ErrNoBatches) {
		t.Fatalf("expected ErrNoBatches, got %v", err)
	}
}

func TestRunValidationKeepsGlobalStep(t *testing.T) {
	val := repeatBatches(3)
	sink := &memorySink{}
	tr := newTrainer(t, staticLoader{train: repeatBatches(2), val: val}, sink, 1)
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	before := tr.State()
	if err := tr.runValidation(context.Background()); err != nil {
		t.Fatalf("runValidation: %v", err)
	}
	if tr.State() != before {
		t.Fatalf("validation mutated state: %+v vs %+v", tr.State(), before)
	}
	for _, p := range sink.series("Dev Loss") {
		if p.step != 2 {
			t.Fatalf("Dev Loss tagged with step %d, want 2", p.step)
		}
	}
}
