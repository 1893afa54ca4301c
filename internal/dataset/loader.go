package dataset

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
)

// Split names a dataset partition directory.
type Split string

const (
	Train Split = "train"
	Val   Split = "val"
)

// Batch is a padded minibatch. Every Inputs row has the same length, as does
// every Labels row; Lengths holds the number of real label steps per row.
type Batch struct {
	Keys    []string
	Inputs  [][]float64
	Labels  [][]int
	Lengths []int
}

// Options configures NewLoader.
type Options struct {
	Path       string
	BatchSize  int
	Seed       int64
	NumWorkers int
}

// Loader owns the batched train and validation splits.
type Loader struct {
	classes []string
	rng     *rand.Rand
	train   []Batch
	val     []Batch
}

// NewLoader reads <Path>/train and, when present, <Path>/val.
func NewLoader(ctx context.Context, opts Options) (*Loader, error) {
	trainShards, err := DiscoverSplit(opts.Path, Train)
	if err != nil {
		return nil, err
	}
	if len(trainShards) == 0 {
		return nil, fmt.Errorf("loader: no shards under %s/%s", opts.Path, Train)
	}
	train, err := ReadShards(ctx, trainShards, opts.NumWorkers)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", Train, err)
	}

	valShards, err := DiscoverSplit(opts.Path, Val)
	if err != nil {
		return nil, err
	}
	var val []Sample
	if len(valShards) > 0 {
		val, err = ReadShards(ctx, valShards, opts.NumWorkers)
		if err != nil {
			return nil, fmt.Errorf("loader: read %s: %w", Val, err)
		}
	}
	return FromSamples(train, val, opts.BatchSize, opts.Seed)
}

// FromSamples batches already decoded samples.
func FromSamples(train, val []Sample, batchSize int, seed int64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0 (got %d)", batchSize)
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("loader: no training samples")
	}
	classes := collectClasses(train, val)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	l := &Loader{classes: classes, rng: rand.New(rand.NewSource(seed))}
	var err error
	if l.train, err = makeBatches(train, index, batchSize); err != nil {
		return nil, err
	}
	if l.val, err = makeBatches(val, index, batchSize); err != nil {
		return nil, err
	}
	return l, nil
}

// OutputDim is the number of distinct classes.
func (l *Loader) OutputDim() int { return len(l.classes) }

// Classes returns class names in label-index order.
func (l *Loader) Classes() []string { return append([]string(nil), l.classes...) }

// Batches returns the batches of split. Training order is reshuffled on
// every call; validation order is fixed.
func (l *Loader) Batches(split Split) ([]Batch, error) {
	switch split {
	case Train:
		out := append([]Batch(nil), l.train...)
		l.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out, nil
	case Val:
		return l.val, nil
	default:
		return nil, fmt.Errorf("loader: unknown split %q", split)
	}
}

func collectClasses(splits ...[]Sample) []string {
	seen := make(map[string]struct{})
	for _, samples := range splits {
		for _, s := range samples {
			for _, c := range s.Labels {
				seen[c] = struct{}{}
			}
		}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

// makeBatches groups samples of similar length and pads each batch to its
// longest member.
func makeBatches(samples []Sample, index map[string]int, batchSize int) ([]Batch, error) {
	sorted := append([]Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Labels) < len(sorted[j].Labels)
	})

	var batches []Batch
	for start := 0; start < len(sorted); start += batchSize {
		end := min(start+batchSize, len(sorted))
		group := sorted[start:end]

		maxSignal, maxSteps := 0, 0
		for _, s := range group {
			maxSignal = max(maxSignal, len(s.Signal))
			maxSteps = max(maxSteps, len(s.Labels))
		}

		b := Batch{
			Keys:    make([]string, len(group)),
			Inputs:  make([][]float64, len(group)),
			Labels:  make([][]int, len(group)),
			Lengths: make([]int, len(group)),
		}
		for i, s := range group {
			b.Keys[i] = s.Key
			b.Inputs[i] = make([]float64, maxSignal)
			copy(b.Inputs[i], s.Signal)
			b.Labels[i] = make([]int, maxSteps)
			for t, name := range s.Labels {
				id, ok := index[name]
				if !ok {
					return nil, fmt.Errorf("loader: sample %s: unknown class %q", s.Key, name)
				}
				b.Labels[i][t] = id
			}
			b.Lengths[i] = len(s.Labels)
		}
		batches = append(batches, b)
	}
	return batches, nil
}
