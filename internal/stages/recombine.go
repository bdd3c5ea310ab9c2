package stages

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"stemsplit/internal/config"
	"stemsplit/internal/logging"
	"stemsplit/internal/media/ffmpeg"
	"stemsplit/internal/separator"
	"stemsplit/internal/services"
	"stemsplit/internal/stage"
	"stemsplit/internal/workunit"
)

// Recombine muxes the vocal stem onto the source video (vocals_video), strips
// all audio from it (silent_video), or does nothing (stems_only).
type Recombine struct {
	ffmpeg    *ffmpeg.Tool
	mode      string
	container string
	logger    *slog.Logger
}

// NewRecombine constructs the recombination stage.
func NewRecombine(tool *ffmpeg.Tool, mode, container string, logger *slog.Logger) *Recombine {
	return &Recombine{
		ffmpeg:    tool,
		mode:      mode,
		container: strings.TrimPrefix(container, "."),
		logger:    logging.NewComponentLogger(logger, "recombine"),
	}
}

func (s *Recombine) Name() string            { return "recombine" }
func (s *Recombine) Status() workunit.Status { return workunit.StatusRecombining }

// HealthCheck reports whether ffmpeg is installed.
func (s *Recombine) HealthCheck(context.Context) stage.Health {
	if s.mode == config.ModeStemsOnly {
		return stage.Healthy(s.Name())
	}
	return stage.BinaryHealth(s.Name(), s.ffmpeg.Binary())
}

// Execute implements stage.Handler.
func (s *Recombine) Execute(ctx context.Context, wu *workunit.WorkUnit) error {
	switch s.mode {
	case config.ModeVocalsVideo:
		return s.muxVocals(ctx, wu)
	case config.ModeSilentVideo:
		return s.strip(ctx, wu)
	default:
		return nil
	}
}

func (s *Recombine) muxVocals(ctx context.Context, wu *workunit.WorkUnit) error {
	vocals, ok := wu.Artifact(workunit.KindStem, separator.StemVocals)
	if !ok {
		return services.Wrap(services.ErrMux, s.Name(), "locate vocals", "no vocal stem to mux", nil)
	}
	ext := strings.ToLower(filepath.Ext(wu.Item.Path))
	if ext == "" || ext == ".webm" {
		// WebM cannot carry AAC audio.
		ext = ".mkv"
	}
	dest := filepath.Join(wu.WorkDir, wu.Item.Name+"_vocals"+ext)
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindVocalsVideo, Path: dest, Label: "vocals_video"})

	if err := s.ffmpeg.MuxVocals(ctx, wu.Item.Path, vocals.Path, dest); err != nil {
		return services.Wrap(services.ErrMux, s.Name(), "mux vocals", "ffmpeg failed to mux vocals onto video", err)
	}
	if err := requireFile(dest); err != nil {
		return services.Wrap(services.ErrMux, s.Name(), "verify output", "ffmpeg produced no video", err)
	}
	return nil
}

func (s *Recombine) strip(ctx context.Context, wu *workunit.WorkUnit) error {
	dest := filepath.Join(wu.WorkDir, wu.Item.Name+"_silent."+s.container)
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindSilentVideo, Path: dest, Label: "silent_video"})

	if err := s.ffmpeg.StripAudio(ctx, wu.Item.Path, dest, s.container); err != nil {
		return services.Wrap(services.ErrMux, s.Name(), "strip audio", "ffmpeg failed to strip audio", err)
	}
	if err := requireFile(dest); err != nil {
		return services.Wrap(services.ErrMux, s.Name(), "verify output", "ffmpeg produced no video", err)
	}
	return nil
}
