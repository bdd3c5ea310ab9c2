package stages

import (
	"log/slog"

	"stemsplit/internal/config"
	"stemsplit/internal/media/ffmpeg"
	"stemsplit/internal/separator"
	"stemsplit/internal/sink"
	"stemsplit/internal/stage"
	"stemsplit/internal/transcriber"
)

// Dependencies carries the collaborators stages are built around.
type Dependencies struct {
	Separator   separator.Separator
	Transcriber transcriber.Transcriber
	// Sink is nil when publishing is disabled.
	Sink   *sink.Retrying
	FFmpeg *ffmpeg.Tool
	// Probe overrides ffprobe inspection (tests).
	Probe ProbeFunc
}

// Build returns the ordered stage list for cfg. Transcription is included only
// when enabled and publishing only when a sink is configured.
func Build(cfg *config.Config, deps Dependencies, logger *slog.Logger) []stage.Handler {
	tool := deps.FFmpeg
	if tool == nil {
		tool = ffmpeg.New(cfg.Pipeline.FFmpegBinary)
	}

	extract := NewExtract(tool, cfg.Pipeline.FFprobeBinary, cfg.Pipeline.Mode, cfg.Transcription.Language, logger)
	if deps.Probe != nil {
		extract.WithProbe(deps.Probe)
	}

	handlers := []stage.Handler{
		extract,
		NewSeparate(deps.Separator, logger),
	}
	if cfg.Pipeline.Transcribe && deps.Transcriber != nil {
		handlers = append(handlers, NewTranscribe(deps.Transcriber, logger))
	}
	handlers = append(handlers,
		NewRecombine(tool, cfg.Pipeline.Mode, cfg.Pipeline.VideoContainer, logger),
		NewFinalize(cfg.Paths.OutputDir, logger),
	)
	if deps.Sink != nil {
		handlers = append(handlers, NewPublish(deps.Sink, logger))
	}
	return handlers
}
