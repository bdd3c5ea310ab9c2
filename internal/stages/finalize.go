package stages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"stemsplit/internal/fileutil"
	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/services"
	"stemsplit/internal/stage"
	"stemsplit/internal/workunit"
)

// Finalize moves every kept artifact into <output_dir>/<item name>. Each run
// replaces the whole item directory so reruns do not mix old and new outputs.
type Finalize struct {
	outputDir string
	move      func(src, dst string) error
	logger    *slog.Logger
}

// NewFinalize constructs the finalize stage.
func NewFinalize(outputDir string, logger *slog.Logger) *Finalize {
	return &Finalize{
		outputDir: outputDir,
		move:      fileutil.MoveFile,
		logger:    logging.NewComponentLogger(logger, "finalize"),
	}
}

func (s *Finalize) Name() string            { return "finalize" }
func (s *Finalize) Status() workunit.Status { return workunit.StatusFinalizing }

// HealthCheck reports whether the output directory is usable.
func (s *Finalize) HealthCheck(context.Context) stage.Health {
	info, err := os.Stat(s.outputDir)
	if err != nil {
		return stage.Unhealthy(s.Name(), fmt.Sprintf("output dir: %v", err))
	}
	if !info.IsDir() {
		return stage.Unhealthy(s.Name(), "output dir is not a directory")
	}
	return stage.Healthy(s.Name())
}

// Execute implements stage.Handler. Artifacts are gathered in a hidden
// sibling directory that replaces the item directory only once every move has
// succeeded, so a failed rerun leaves the previous outputs in place.
func (s *Finalize) Execute(ctx context.Context, wu *workunit.WorkUnit) error {
	itemDir := filepath.Join(s.outputDir, wu.Item.Name)
	pending, err := os.MkdirTemp(s.outputDir, "."+wu.Item.Name+".pending-*")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, s.Name(), "create output dir", "could not create item output directory", err)
	}
	// The directory belongs to the guard until it has replaced itemDir.
	wu.Guard.Register(pending)

	var outputs []workunit.Artifact
	for _, artifact := range wu.Artifacts {
		if !artifact.Keep() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.Base(artifact.Path)
		wu.Guard.Release(artifact.Path)
		if err := s.move(artifact.Path, filepath.Join(pending, name)); err != nil {
			wu.Guard.Register(artifact.Path)
			return services.Wrap(services.ErrExternalTool, s.Name(), "move artifact",
				fmt.Sprintf("could not move %s into output directory", name), err)
		}
		outputs = append(outputs, workunit.Artifact{Kind: artifact.Kind, Path: filepath.Join(itemDir, name), Label: artifact.Label})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := swapDir(wu.Guard, pending, itemDir); err != nil {
		return services.Wrap(services.ErrExternalTool, s.Name(), "replace output dir", "could not replace previous outputs", err)
	}
	wu.OutputDir = itemDir
	wu.Outputs = outputs
	logging.WithContext(ctx, s.logger).Debug("outputs finalized",
		logging.String("output_dir", itemDir),
		logging.Int("outputs", len(outputs)),
	)
	return nil
}

// swapDir renames pending over target. An existing target is parked next to
// pending and handed to the guard; it is restored if the final rename fails.
func swapDir(g *guard.Guard, pending, target string) error {
	previous := ""
	if _, err := os.Lstat(target); err == nil {
		previous = pending + ".previous"
		if err := os.Rename(target, previous); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(pending, target); err != nil {
		if previous != "" {
			_ = os.Rename(previous, target)
		}
		return err
	}
	g.Release(pending)
	if previous != "" {
		g.Register(previous)
	}
	return nil
}
