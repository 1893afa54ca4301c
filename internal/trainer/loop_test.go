package trainer

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"seqlabel/internal/checkpoint"
	"seqlabel/internal/dataset"
	"seqlabel/internal/model"
	"seqlabel/internal/optim"
)

type scalar struct {
	name  string
	step  int64
	value float64
}

type memorySink struct {
	points []scalar
	fail   error
}

func (m *memorySink) AddScalar(_ context.Context, name string, step int64, value float64) error {
	if m.fail != nil {
		return m.fail
	}
	m.points = append(m.points, scalar{name, step, value})
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) series(name string) []scalar {
	var out []scalar
	for _, p := range m.points {
		if p.name == name {
			out = append(out, p)
		}
	}
	return out
}

type staticLoader struct {
	train, val []dataset.Batch
}

func (l staticLoader) Batches(split dataset.Split) ([]dataset.Batch, error) {
	if split == dataset.Train {
		return l.train, nil
	}
	return l.val, nil
}

func toySamples() []dataset.Sample {
	return []dataset.Sample{
		{Key: "a", Signal: []float64{1, 0, 0, 1}, Labels: []string{"N", "A"}},
		{Key: "b", Signal: []float64{0, 1, 1, 0}, Labels: []string{"A", "N"}},
		{Key: "c", Signal: []float64{1, 1, 0, 0}, Labels: []string{"N", "N"}},
	}
}

func repeatBatches(n int) []dataset.Batch {
	out := make([]dataset.Batch, n)
	for i := range out {
		out[i] = dataset.Batch{
			Inputs: [][]float64{{1, 0, 0, 1}},
			Labels: [][]int{{0, 1}},
		}
	}
	return out
}

func newTrainer(t *testing.T, loader Loader, sink *memorySink, epochs int) *Trainer {
	t.Helper()
	tr, err := New(RunConfig{
		Epochs:    epochs,
		SavePath:  t.TempDir(),
		Classes:   []string{"A", "N"},
		RunID:     "test",
		Optimizer: baseOptimizer(),
	}, newToyNet(t), loader, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestRunToyEpochCheckpointsAndValidates(t *testing.T) {
	samples := toySamples()
	loader, err := dataset.FromSamples(samples, samples[:2], 2, 1)
	if err != nil {
		t.Fatalf("FromSamples: %v", err)
	}
	sink := &memorySink{}
	tr := newTrainer(t, loader, sink, 1)

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := tr.State().GlobalStep; got != 2 {
		t.Fatalf("global step %d after 2 batches, want 2", got)
	}
	if n := len(sink.series("Loss")); n != 2 {
		t.Fatalf("expected 2 Loss points, got %d", n)
	}
	dev := sink.series("Dev Accuracy")
	if len(dev) != 1 || dev[0].step != 2 {
		t.Fatalf("unexpected Dev Accuracy series %+v", dev)
	}
	if len(sink.series("Dev Loss")) != 1 {
		t.Fatalf("missing Dev Loss point")
	}

	path := checkpoint.Path(tr.cfg.SavePath)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint missing: %v", err)
	}
	snap, err := checkpoint.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.GlobalStep != 2 || snap.Epoch != 0 || snap.Momentum != optim.MomentumInit {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}

	fresh := newToyNet(t)
	if err := RestoreParams(fresh, snap); err != nil {
		t.Fatalf("RestoreParams: %v", err)
	}
	for i, p := range tr.net.Params() {
		if !mat.Equal(p.Value, fresh.Params()[i].Value) {
			t.Fatalf("restored %s differs", p.Name)
		}
	}
}

func TestRunSwitchesMomentumAtWarmupStep(t *testing.T) {
	cases := []struct {
		batches int
		want    float64
	}{
		{MomentumWarmupSteps - 1, optim.MomentumInit},
		{MomentumWarmupSteps, 0.9},
		{MomentumWarmupSteps + 10, 0.9},
	}
	for _, tc := range cases {
		tr := newTrainer(t, staticLoader{train: repeatBatches(tc.batches)}, &memorySink{}, 1)
		if err := tr.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		st := tr.State()
		if st.GlobalStep != int64(tc.batches) {
			t.Fatalf("global step %d want %d", st.GlobalStep, tc.batches)
		}
		if st.Momentum != tc.want {
			t.Fatalf("after %d steps momentum=%f want %f", tc.batches, st.Momentum, tc.want)
		}
	}
}

func TestRunMomentumSwitchHappensOnce(t *testing.T) {
	tr := newTrainer(t, staticLoader{train: repeatBatches(MomentumWarmupSteps + 5)}, &memorySink{}, 2)
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Overwrite and keep training: the switch must not fire again.
	tr.state.Momentum = 0.3
	tr.cfg.Epochs = 1
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.State().Momentum != 0.3 {
		t.Fatalf("momentum reset after warmup step passed: %f", tr.State().Momentum)
	}
}

func TestRunReportsShapeErrorWithStep(t *testing.T) {
	batches := repeatBatches(3)
	batches[2] = dataset.Batch{Inputs: [][]float64{{1, 0, 0, 1}, {1, 0}}, Labels: [][]int{{0, 1}, {1}}}
	tr := newTrainer(t, staticLoader{train: batches}, &memorySink{}, 1)
	err := tr.Run(context.Background())
	if !errors.Is(err, model.ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	if want := "epoch 0 step 3"; err == nil || !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not name %q", err, want)
	}
	if tr.State().GlobalStep != 2 {
		t.Fatalf("global step %d, want 2", tr.State().GlobalStep)
	}
}

func TestRunPropagatesSinkErrors(t *testing.T) {
	boom := errors.New("sink down")
	tr := newTrainer(t, staticLoader{train: repeatBatches(1)}, &memorySink{fail: boom}, 1)
	if err := tr.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	tr := newTrainer(t, staticLoader{train: repeatBatches(5)}, &memorySink{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.State().GlobalStep != 0 {
		t.Fatalf("steps ran after cancel")
	}
}

func TestRestoreResumesState(t *testing.T) {
	tr := newTrainer(t, staticLoader{train: repeatBatches(4)}, &memorySink{}, 1)
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := tr.Snapshot(0)

	resumed := newTrainer(t, staticLoader{train: repeatBatches(1)}, &memorySink{}, 1)
	if err := resumed.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if resumed.State() != tr.State() {
		t.Fatalf("state %+v want %+v", resumed.State(), tr.State())
	}
	for i, v := range resumed.step.Velocities() {
		if !mat.Equal(v, tr.step.Velocities()[i]) {
			t.Fatalf("velocity %d not restored", i)
		}
	}
}
