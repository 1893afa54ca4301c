package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"seqlabel/internal/config"
	"seqlabel/internal/dataset"
	"seqlabel/internal/model"
	"seqlabel/internal/telemetry"
	"seqlabel/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/cinc_config.json", "Path to JSON config")
	numWorkers := flag.Int("num-workers", 0, "Number of shard decoding workers")
	logEvery := flag.Int("log-every", 0, "Log every N steps")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := dataset.NewLoader(ctx, dataset.Options{
		Path:       cfg.Data.Path,
		BatchSize:  cfg.Model.BatchSize,
		Seed:       cfg.Data.Seed,
		NumWorkers: *numWorkers,
	})
	if err != nil {
		log.Fatalf("build loader: %v", err)
	}
	cfg.Model.OutputDim = loader.OutputDim()
	log.Printf("data=%s classes=%v", cfg.Data.Path, loader.Classes())

	if err := os.MkdirAll(cfg.IO.SavePath, 0o755); err != nil {
		log.Fatalf("create save path: %v", err)
	}
	if err := cfg.Save(filepath.Join(cfg.IO.SavePath, "config.json")); err != nil {
		log.Fatalf("persist config: %v", err)
	}

	net, err := model.New(cfg.Model.Arch, model.FrameNetConfig{
		FrameSize: cfg.Model.FrameSize,
		HiddenDim: cfg.Model.HiddenDim,
		OutputDim: cfg.Model.OutputDim,
		InitScale: cfg.Model.InitScale,
		Seed:      cfg.Seed,
	})
	if err != nil {
		log.Fatalf("build model: %v", err)
	}

	sink, err := telemetry.OpenSQLite(ctx, cfg.IO.SavePath)
	if err != nil {
		log.Fatalf("open telemetry: %v", err)
	}
	defer sink.Close()

	t, err := trainer.New(trainer.RunConfig{
		Epochs:   cfg.Optimizer.Epochs,
		SavePath: cfg.IO.SavePath,
		Classes:  loader.Classes(),
		RunID:    sink.RunID(),
		LogEvery: *logEvery,
		Optimizer: trainer.OptimizerConfig{
			Momentum:     cfg.Optimizer.Momentum,
			LearningRate: cfg.Optimizer.LearningRate,
			DecaySteps:   cfg.Optimizer.DecaySteps,
			DecayRate:    cfg.Optimizer.DecayRate,
			L2Weight:     cfg.Optimizer.L2Weight,
			ClipNorm:     cfg.Optimizer.ClipNorm,
		},
	}, net, loader, sink)
	if err != nil {
		log.Fatalf("build trainer: %v", err)
	}
	log.Printf("run=%s arch=%q params=%d save=%s", sink.RunID(), cfg.Model.Arch, len(net.Params()), cfg.IO.SavePath)

	if err := t.Run(ctx); err != nil {
		sink.Close()
		log.Fatalf("training failed: %v", err)
	}
}
