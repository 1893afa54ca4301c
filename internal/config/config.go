package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
)

// ErrMissingKey marks a required key absent from the config file.
var ErrMissingKey = errors.New("missing required key")

// Config captures the runtime knobs for a training run. It is read once and
// not modified afterwards, except for Model.OutputDim which is derived from
// the data before the config is persisted.
type Config struct {
	Seed      int64
	Data      Data
	Model     Model
	Optimizer Optimizer
	IO        IO

	// raw keeps every key of the source file so Save round-trips
	// architecture-specific settings this package does not know about.
	raw map[string]any
}

// Data locates the dataset.
type Data struct {
	Path string
	Seed int64
}

// Model sizes the network and batches.
type Model struct {
	BatchSize int
	Arch      string
	FrameSize int
	HiddenDim int
	InitScale float64
	OutputDim int
}

// Optimizer configures momentum SGD. L2Weight and ClipNorm are optional.
type Optimizer struct {
	Epochs       int
	Momentum     float64
	LearningRate float64
	DecaySteps   int64
	DecayRate    float64
	L2Weight     *float64
	ClipNorm     *float64
}

// IO configures where artifacts are written.
type IO struct {
	SavePath string
}

type fileConfig struct {
	Seed *int64 `json:"seed"`
	Data *struct {
		Path *string `json:"path"`
		Seed *int64  `json:"seed"`
	} `json:"data"`
	Model *struct {
		BatchSize *int    `json:"batch_size"`
		Arch      string  `json:"arch"`
		FrameSize *int    `json:"frame_size"`
		HiddenDim int     `json:"hidden_dim"`
		InitScale float64 `json:"init_scale"`
		OutputDim int     `json:"output_dim"`
	} `json:"model"`
	Optimizer *struct {
		Epochs       *int     `json:"epochs"`
		Momentum     *float64 `json:"momentum"`
		LearningRate *float64 `json:"learning_rate"`
		DecaySteps   *int64   `json:"decay_steps"`
		DecayRate    *float64 `json:"decay_rate"`
		L2Weight     *float64 `json:"l2_weight"`
		ClipNorm     *float64 `json:"clip_norm"`
	} `json:"optimizer"`
	IO *struct {
		SavePath *string `json:"save_path"`
	} `json:"io"`
}

// Load reads and validates a Config from JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a JSON config document.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}
	need(fc.Seed != nil, "seed")
	need(fc.Data != nil, "data")
	need(fc.Model != nil, "model")
	need(fc.Optimizer != nil, "optimizer")
	need(fc.IO != nil, "io")
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingKey, missing)
	}
	need(fc.Data.Path != nil, "data.path")
	need(fc.Data.Seed != nil, "data.seed")
	need(fc.Model.BatchSize != nil, "model.batch_size")
	need(fc.Model.FrameSize != nil, "model.frame_size")
	need(fc.Optimizer.Epochs != nil, "optimizer.epochs")
	need(fc.Optimizer.Momentum != nil, "optimizer.momentum")
	need(fc.Optimizer.LearningRate != nil, "optimizer.learning_rate")
	need(fc.Optimizer.DecaySteps != nil, "optimizer.decay_steps")
	need(fc.Optimizer.DecayRate != nil, "optimizer.decay_rate")
	need(fc.IO.SavePath != nil, "io.save_path")
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingKey, missing)
	}

	cfg := &Config{
		Seed: *fc.Seed,
		Data: Data{Path: *fc.Data.Path, Seed: *fc.Data.Seed},
		Model: Model{
			BatchSize: *fc.Model.BatchSize,
			Arch:      fc.Model.Arch,
			FrameSize: *fc.Model.FrameSize,
			HiddenDim: fc.Model.HiddenDim,
			InitScale: fc.Model.InitScale,
			OutputDim: fc.Model.OutputDim,
		},
		Optimizer: Optimizer{
			Epochs:       *fc.Optimizer.Epochs,
			Momentum:     *fc.Optimizer.Momentum,
			LearningRate: *fc.Optimizer.LearningRate,
			DecaySteps:   *fc.Optimizer.DecaySteps,
			DecayRate:    *fc.Optimizer.DecayRate,
			L2Weight:     fc.Optimizer.L2Weight,
			ClipNorm:     fc.Optimizer.ClipNorm,
		},
		IO:  IO{SavePath: *fc.IO.SavePath},
		raw: raw,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Data.Path == "" {
		return errors.New("data.path must be set")
	}
	if c.IO.SavePath == "" {
		return errors.New("io.save_path must be set")
	}
	if c.Model.BatchSize <= 0 {
		return fmt.Errorf("model.batch_size must be > 0 (got %d)", c.Model.BatchSize)
	}
	if c.Model.FrameSize <= 0 {
		return fmt.Errorf("model.frame_size must be > 0 (got %d)", c.Model.FrameSize)
	}
	if c.Model.HiddenDim < 0 {
		return fmt.Errorf("model.hidden_dim must be >= 0 (got %d)", c.Model.HiddenDim)
	}
	if c.Optimizer.Epochs <= 0 {
		return fmt.Errorf("optimizer.epochs must be > 0 (got %d)", c.Optimizer.Epochs)
	}
	if c.Optimizer.Momentum < 0 || c.Optimizer.Momentum >= 1 {
		return fmt.Errorf("optimizer.momentum must be in [0, 1) (got %g)", c.Optimizer.Momentum)
	}
	if c.Optimizer.LearningRate <= 0 {
		return fmt.Errorf("optimizer.learning_rate must be > 0 (got %g)", c.Optimizer.LearningRate)
	}
	if c.Optimizer.DecaySteps <= 0 {
		return fmt.Errorf("optimizer.decay_steps must be > 0 (got %d)", c.Optimizer.DecaySteps)
	}
	if c.Optimizer.DecayRate <= 0 {
		return fmt.Errorf("optimizer.decay_rate must be > 0 (got %g)", c.Optimizer.DecayRate)
	}
	if w := c.Optimizer.L2Weight; w != nil && *w < 0 {
		return fmt.Errorf("optimizer.l2_weight must be >= 0 (got %g)", *w)
	}
	if n := c.Optimizer.ClipNorm; n != nil && *n <= 0 {
		return fmt.Errorf("optimizer.clip_norm must be > 0 (got %g)", *n)
	}
	return nil
}

// Save writes the config, including the derived model.output_dim, to path.
func (c *Config) Save(path string) error {
	doc := maps.Clone(c.raw)
	if doc == nil {
		doc = map[string]any{}
	}
	section, _ := doc["model"].(map[string]any)
	section = maps.Clone(section)
	if section == nil {
		section = map[string]any{}
	}
	section["output_dim"] = c.Model.OutputDim
	doc["model"] = section

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
