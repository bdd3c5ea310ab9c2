package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stemsplit/internal/logging"
	"stemsplit/internal/separator"
	"stemsplit/internal/services"
	"stemsplit/internal/stage"
	"stemsplit/internal/transcriber"
	"stemsplit/internal/workunit"
)

// Transcribe writes a transcript of the vocal stem. It never fails the item
// for recognition problems; those produce a degraded transcript.
type Transcribe struct {
	t      transcriber.Transcriber
	logger *slog.Logger
}

// NewTranscribe constructs the transcription stage.
func NewTranscribe(t transcriber.Transcriber, logger *slog.Logger) *Transcribe {
	return &Transcribe{t: t, logger: logging.NewComponentLogger(logger, "transcribe")}
}

func (s *Transcribe) Name() string            { return "transcribe" }
func (s *Transcribe) Status() workunit.Status { return workunit.StatusTranscribing }

// HealthCheck reports whether the transcriber's executables are installed.
func (s *Transcribe) HealthCheck(context.Context) stage.Health {
	return stage.BinaryHealth(s.Name(), s.t.Commands()...)
}

// Execute implements stage.Handler.
func (s *Transcribe) Execute(ctx context.Context, wu *workunit.WorkUnit) error {
	logger := logging.WithContext(ctx, s.logger)
	vocals, ok := wu.Artifact(workunit.KindStem, separator.StemVocals)
	if !ok {
		return services.Wrap(services.ErrValidation, s.Name(), "locate vocals", "no vocal stem to transcribe", nil)
	}

	workDir := filepath.Join(wu.WorkDir, "transcription")
	wu.Guard.Register(workDir)

	result, err := s.t.Transcribe(ctx, vocals.Path, workDir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result = transcriber.Result{Degraded: true, Reason: "service unavailable: " + services.Details(err).Message}
	}
	if result.Degraded {
		logging.WarnWithContext(logger, "transcription degraded", "transcription_degraded",
			logging.String("reason", result.Reason),
			logging.String(logging.FieldErrorKind, string(services.KindTranscriptionUnavailable)),
			logging.String(logging.FieldImpact, "transcript contains diagnostic text only"),
		)
	}

	path := filepath.Join(wu.WorkDir, "transcript.txt")
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindTranscript, Path: path, Label: "transcript"})
	if err := os.WriteFile(path, []byte(transcriptBody(result)), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, s.Name(), "write transcript", "could not write transcript file", err)
	}
	wu.Transcript = &workunit.Transcription{Text: result.Text, Degraded: result.Degraded, Reason: result.Reason}
	return nil
}

func transcriptBody(result transcriber.Result) string {
	if result.Degraded {
		return fmt.Sprintf("[transcription degraded: %s]\n", result.Reason)
	}
	return result.Text + "\n"
}
