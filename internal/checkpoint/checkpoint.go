// Package checkpoint persists the full training state of a run as a single
// gob file that is overwritten on every save.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"seqlabel/internal/metrics"
)

// FileName is the checkpoint file written under the save path.
const FileName = "model.ckpt"

const formatVersion = 1

// Tensor is a serialized dense matrix.
type Tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// Snapshot is everything needed to resume inference or training.
type Snapshot struct {
	Version    int
	RunID      string
	Epoch      int
	GlobalStep int64
	Momentum   float64
	AvgLoss    metrics.EMA
	AvgAcc     metrics.EMA
	Classes    []string
	Params     []Tensor
	Velocity   []Tensor
}

// FromDense copies m into a Tensor.
func FromDense(name string, m *mat.Dense) Tensor {
	r, c := m.Dims()
	return Tensor{
		Name: name,
		Rows: r,
		Cols: c,
		Data: append([]float64(nil), mat.DenseCopyOf(m).RawMatrix().Data...),
	}
}

// CopyTo overwrites dst with the tensor contents.
func (t Tensor) CopyTo(dst *mat.Dense) error {
	r, c := dst.Dims()
	if r != t.Rows || c != t.Cols {
		return fmt.Errorf("checkpoint: %s is %dx%d, destination %dx%d", t.Name, t.Rows, t.Cols, r, c)
	}
	if len(t.Data) != r*c {
		return fmt.Errorf("checkpoint: %s holds %d values for %dx%d", t.Name, len(t.Data), r, c)
	}
	dst.Copy(mat.NewDense(r, c, t.Data))
	return nil
}

// Path returns the checkpoint location under dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Save writes snap to path through a temporary file and rename, so a crash
// mid-write leaves the previous checkpoint intact.
func Save(path string, snap *Snapshot) error {
	snap.Version = formatVersion
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.Version != formatVersion {
		return nil, fmt.Errorf("checkpoint: unsupported version %d", snap.Version)
	}
	return &snap, nil
}
