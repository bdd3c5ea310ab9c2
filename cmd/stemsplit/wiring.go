package main

import (
	"fmt"
	"log/slog"

	"stemsplit/internal/batch"
	"stemsplit/internal/config"
	"stemsplit/internal/pipeline"
	"stemsplit/internal/separator"
	"stemsplit/internal/sink"
	"stemsplit/internal/sources"
	"stemsplit/internal/stages"
	"stemsplit/internal/transcriber"
)

// dependencyBuilder constructs stage collaborators from config. Tests swap it
// for fakes that do not shell out.
type dependencyBuilder func(cfg *config.Config, logger *slog.Logger) (stages.Dependencies, error)

func buildDependencies(cfg *config.Config, logger *slog.Logger) (stages.Dependencies, error) {
	sep, err := separator.New(cfg.Separator.Engine, separator.Options{
		Binary: cfg.Separator.Binary,
		Model:  cfg.Separator.Model,
		UseGPU: cfg.Pipeline.UseGPU,
	})
	if err != nil {
		return stages.Dependencies{}, err
	}

	deps := stages.Dependencies{Separator: sep}
	if cfg.Pipeline.Transcribe {
		deps.Transcriber = transcriber.NewWhisperX(transcriber.Config{
			Binary:   cfg.Transcription.Binary,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
			CUDA:     cfg.Pipeline.UseGPU,
		})
	}

	publisher, err := sink.FromConfig(cfg, logger)
	if err != nil {
		return stages.Dependencies{}, err
	}
	deps.Sink = publisher
	return deps, nil
}

// newBatchRunner assembles the batch runner for cfg.
func newBatchRunner(cfg *config.Config, deps stages.Dependencies, observer batch.Observer, logger *slog.Logger) (*batch.Runner, error) {
	if deps.Separator == nil {
		return nil, fmt.Errorf("no separator configured")
	}
	return &batch.Runner{
		Pipeline: &pipeline.Runner{
			Stages:     stages.Build(cfg, deps, logger),
			StagingDir: cfg.Paths.StagingDir,
			Logger:     logger,
		},
		Sources:            sources.NewProvider(cfg, logger),
		Concurrency:        cfg.Workflow.Concurrency,
		PreserveInputOrder: cfg.Workflow.PreserveInputOrder,
		Bundle:             cfg.Workflow.Bundle,
		StagingDir:         cfg.Paths.StagingDir,
		OutputDir:          cfg.Paths.OutputDir,
		Observer:           observer,
		Logger:             logger,
	}, nil
}
