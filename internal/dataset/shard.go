package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Sample is one labeled recording read from a shard: a raw signal and one
// class name per output step.
type Sample struct {
	Key    string
	Signal []float64
	Labels []string
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("shard: pending pair buffer exceeded")

const defaultPendingCap = 1024

// Shard members are paired by key: <key>.sig holds little-endian float32
// samples, <key>.lbl holds whitespace separated class names.
const (
	signalExt = ".sig"
	labelExt  = ".lbl"
)

// StreamShard streams paired samples from the shard at path.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open shard: %w", err)
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("read tar %s: %w", path, err)
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, filepath.Ext(name))

			var part *partial
			switch ext {
			case signalExt:
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read signal %s: %w", name, err)
					return
				}
				signal, err := decodeSignal(payload)
				if err != nil {
					errCh <- fmt.Errorf("decode signal %s: %w", name, err)
					return
				}
				part = pendingPart(pending, key)
				part.signal = signal
			case labelExt:
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read labels %s: %w", name, err)
					return
				}
				labels := strings.Fields(string(payload))
				if len(labels) == 0 {
					errCh <- fmt.Errorf("labels %s: empty label sequence", name)
					return
				}
				part = pendingPart(pending, key)
				part.labels = labels
			default:
				continue
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part.ready() {
				sample := Sample{Key: key, Signal: part.signal, Labels: part.labels}
				delete(pending, key)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- sample:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- fmt.Errorf("shard %s: %d samples incomplete", path, len(pending))
		}
	}()

	return out, errCh
}

type partial struct {
	signal []float64
	labels []string
}

func (p *partial) ready() bool {
	return len(p.signal) > 0 && p.labels != nil
}

func pendingPart(pending map[string]*partial, key string) *partial {
	part := pending[key]
	if part == nil {
		part = &partial{}
		pending[key] = part
	}
	return part
}

func decodeSignal(payload []byte) ([]float64, error) {
	if len(payload) == 0 || len(payload)%4 != 0 {
		return nil, fmt.Errorf("signal payload of %d bytes is not float32 aligned", len(payload))
	}
	out := make([]float64, len(payload)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
	}
	return out, nil
}
