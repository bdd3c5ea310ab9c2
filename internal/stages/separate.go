package stages

import (
	"context"
	"log/slog"
	"path/filepath"

	"stemsplit/internal/logging"
	"stemsplit/internal/separator"
	"stemsplit/internal/services"
	"stemsplit/internal/stage"
	"stemsplit/internal/workunit"
)

// Separate splits the extracted audio into stems.
type Separate struct {
	sep    separator.Separator
	logger *slog.Logger
}

// NewSeparate constructs the separation stage around an injected engine.
func NewSeparate(sep separator.Separator, logger *slog.Logger) *Separate {
	return &Separate{sep: sep, logger: logging.NewComponentLogger(logger, "separate")}
}

func (s *Separate) Name() string            { return "separate" }
func (s *Separate) Status() workunit.Status { return workunit.StatusSeparating }

// HealthCheck reports whether the engine's executables are installed.
func (s *Separate) HealthCheck(context.Context) stage.Health {
	return stage.BinaryHealth(s.Name(), s.sep.Commands()...)
}

// Execute implements stage.Handler.
func (s *Separate) Execute(ctx context.Context, wu *workunit.WorkUnit) error {
	raw, ok := wu.Artifact(workunit.KindRawAudio, "")
	if !ok {
		return services.Wrap(services.ErrValidation, s.Name(), "locate audio", "no extracted audio to separate", nil)
	}

	outDir := filepath.Join(wu.WorkDir, "stems")
	wu.Guard.Register(outDir)

	stems, err := s.sep.Separate(ctx, raw.Path, outDir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrModel, s.Name(), s.sep.Engine(), "separation engine failed", err)
	}
	for _, stem := range stems {
		wu.AddArtifact(workunit.Artifact{Kind: workunit.KindStem, Path: stem.Path, Label: stem.Name})
	}
	if len(stems) == 0 {
		return services.Wrap(services.ErrModel, s.Name(), s.sep.Engine(), "separation produced no stems", nil)
	}
	if !separator.HasVocals(stems) {
		return services.Wrap(services.ErrModel, s.Name(), s.sep.Engine(), "separation produced no vocal stem", nil)
	}

	logging.WithContext(ctx, s.logger).Debug("stems separated",
		logging.String("engine", s.sep.Engine()),
		logging.Int("stems", len(stems)),
	)
	return nil
}
