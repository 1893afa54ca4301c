package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"seqlabel/internal/checkpoint"
	"seqlabel/internal/config"
	"seqlabel/internal/dataset"
	"seqlabel/internal/model"
	"seqlabel/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to the config.json persisted by seqlabel-train")
	numWorkers := flag.Int("num-workers", 0, "Number of shard decoding workers")

	flag.Parse()
	if *cfgPath == "" {
		log.Fatalf("--config is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ckptPath := checkpoint.Path(cfg.IO.SavePath)
	snap, err := checkpoint.Load(ckptPath)
	if err != nil {
		log.Fatalf("load checkpoint: %v", err)
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
	if got := loader.Classes(); !slices.Equal(got, snap.Classes) {
		log.Fatalf("class mismatch: data has %v, checkpoint has %v", got, snap.Classes)
	}

	net, err := model.New(cfg.Model.Arch, model.FrameNetConfig{
		FrameSize: cfg.Model.FrameSize,
		HiddenDim: cfg.Model.HiddenDim,
		OutputDim: len(snap.Classes),
		InitScale: cfg.Model.InitScale,
		Seed:      cfg.Seed,
	})
	if err != nil {
		log.Fatalf("build model: %v", err)
	}
	if err := trainer.RestoreParams(net, snap); err != nil {
		log.Fatalf("restore: %v", err)
	}

	step, err := trainer.NewStep(net, trainer.OptimizerConfig{
		Momentum:     cfg.Optimizer.Momentum,
		LearningRate: cfg.Optimizer.LearningRate,
		DecaySteps:   cfg.Optimizer.DecaySteps,
		DecayRate:    cfg.Optimizer.DecayRate,
		L2Weight:     cfg.Optimizer.L2Weight,
		ClipNorm:     cfg.Optimizer.ClipNorm,
	})
	if err != nil {
		log.Fatalf("build step: %v", err)
	}

	batches, err := loader.Batches(dataset.Val)
	if err != nil {
		log.Fatalf("validation batches: %v", err)
	}
	res, err := trainer.Validate(ctx, step, batches)
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}
	log.Printf("run=%s epoch=%d step=%d loss=%.3f acc=%.3f batches=%d",
		snap.RunID, snap.Epoch, snap.GlobalStep, res.Loss, res.Accuracy, res.Batches)
}
