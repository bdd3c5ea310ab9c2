package stages

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"stemsplit/internal/config"
	"stemsplit/internal/logging"
	"stemsplit/internal/media/audio"
	"stemsplit/internal/media/ffmpeg"
	"stemsplit/internal/media/ffprobe"
	"stemsplit/internal/services"
	"stemsplit/internal/stage"
	"stemsplit/internal/workunit"
)

// ProbeFunc inspects a media file.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Extract pulls the selected audio stream out of the source video as PCM WAV.
type Extract struct {
	probe       ProbeFunc
	probeBinary string
	ffmpeg      *ffmpeg.Tool
	profile     ffmpeg.AudioProfile
	language    string
	logger      *slog.Logger
}

// NewExtract constructs the extraction stage. Mode vocals_video keeps source
// fidelity because the vocal stem is muxed back onto the video.
func NewExtract(tool *ffmpeg.Tool, probeBinary, mode, language string, logger *slog.Logger) *Extract {
	profile := ffmpeg.SpeechProfile
	if mode == config.ModeVocalsVideo {
		profile = ffmpeg.FidelityProfile
	}
	return &Extract{
		probe: func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, probeBinary, path)
		},
		probeBinary: probeBinary,
		ffmpeg:      tool,
		profile:     profile,
		language:    language,
		logger:      logging.NewComponentLogger(logger, "extract"),
	}
}

// WithProbe overrides the ffprobe call (for testing).
func (e *Extract) WithProbe(probe ProbeFunc) {
	if probe != nil {
		e.probe = probe
	}
}

func (e *Extract) Name() string            { return "extract" }
func (e *Extract) Status() workunit.Status { return workunit.StatusExtracting }

// HealthCheck reports whether ffmpeg and ffprobe are installed.
func (e *Extract) HealthCheck(context.Context) stage.Health {
	return stage.BinaryHealth(e.Name(), e.ffmpeg.Binary(), e.probeBinary)
}

// Execute implements stage.Handler.
func (e *Extract) Execute(ctx context.Context, wu *workunit.WorkUnit) error {
	logger := logging.WithContext(ctx, e.logger)

	probe, err := e.probe(ctx, wu.Item.Path)
	if err != nil {
		return services.Wrap(services.ErrExtraction, e.Name(), "probe input", "ffprobe could not read the input", err)
	}
	selection, ok := audio.Select(probe.Streams, e.language)
	if !ok {
		return services.Wrap(services.ErrExtraction, e.Name(), "select audio", "no audio track", nil)
	}

	dest := filepath.Join(wu.WorkDir, "audio.wav")
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindRawAudio, Path: dest, Label: "audio"})

	logger.Debug("extracting audio",
		logging.String("source", wu.Item.Path),
		logging.String("track", selection.Label()),
		logging.Int("sample_rate", e.profile.SampleRate),
		logging.Int("channels", e.profile.Channels),
	)
	if err := e.ffmpeg.ExtractAudio(ctx, wu.Item.Path, selection.MapSpec(), dest, e.profile); err != nil {
		return services.Wrap(services.ErrExtraction, e.Name(), "run ffmpeg", "ffmpeg failed to extract audio", err)
	}
	if err := requireFile(dest); err != nil {
		return services.Wrap(services.ErrExtraction, e.Name(), "verify output", "ffmpeg produced no audio", err)
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() || info.Size() == 0 {
		return errEmptyOutput
	}
	return nil
}
