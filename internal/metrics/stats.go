package metrics

import "time"

// Window accumulates throughput stats between progress lines.
type Window struct {
	sequences int
	frames    int
	data      time.Duration
	compute   time.Duration
	steps     int
}

// Record adds one training step to the window.
func (w *Window) Record(sequences, frames int, dataTime, computeTime time.Duration) {
	w.sequences += sequences
	w.frames += frames
	w.data += dataTime
	w.compute += computeTime
	w.steps++
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps}
	total := w.data + w.compute
	if total > 0 {
		snap.SequencesPerSec = float64(w.sequences) / total.Seconds()
		snap.FramesPerSec = float64(w.frames) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable throughput metrics.
type Snapshot struct {
	Steps           int
	SequencesPerSec float64
	FramesPerSec    float64
	AvgDataMS       float64
	AvgComputeMS    float64
}
