package pipeline

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/services"
	"stemsplit/internal/stage"
	"stemsplit/internal/workunit"
)

// StatusFunc observes status changes of a work unit.
type StatusFunc func(item workunit.InputItem, status workunit.Status)

type statusKey struct{}

// WithStatusFunc returns a context whose pipeline runs report status changes to fn.
func WithStatusFunc(ctx context.Context, fn StatusFunc) context.Context {
	return context.WithValue(ctx, statusKey{}, fn)
}

func statusFuncFrom(ctx context.Context) StatusFunc {
	fn, _ := ctx.Value(statusKey{}).(StatusFunc)
	return fn
}

// Runner executes stages strictly in order for one item at a time. A Runner
// is safe for concurrent Run calls when its stages are.
type Runner struct {
	Stages     []stage.Handler
	StagingDir string
	// Clock stamps the stage timeline; time.Now when nil.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Run processes item and returns its terminal work unit. Failures are
// recorded on the unit rather than returned.
func (r *Runner) Run(ctx context.Context, item workunit.InputItem) *workunit.WorkUnit {
	ctx = services.WithItem(ctx, item.Name)
	ctx = services.WithRunID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.logger(), "pipeline"))

	g := guard.New(logger)
	wu := workunit.New(item, g)
	defer g.Dispose()

	workDir, err := os.MkdirTemp(r.StagingDir, "item-*")
	if err != nil {
		r.fail(ctx, logger, wu, "setup", services.Wrap(services.ErrConfiguration, "setup", "create work dir",
			"could not create item work directory in staging_dir", err))
		return wu
	}
	g.Register(workDir)
	wu.WorkDir = workDir

	for _, handler := range r.Stages {
		name := handler.Name()
		if err := ctx.Err(); err != nil {
			r.fail(ctx, logger, wu, name, err)
			return wu
		}
		if err := wu.Transition(handler.Status()); err != nil {
			r.fail(ctx, logger, wu, name, services.Wrap(services.ErrValidation, name, "transition", "stage order rejected", err))
			return wu
		}
		r.notify(ctx, wu)

		stageCtx := services.WithStage(ctx, name)
		stageLogger := logging.WithContext(stageCtx, logging.NewComponentLogger(r.logger(), "pipeline"))
		record := workunit.StageRecord{Stage: name, Started: r.now()}
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("source_file", item.Path),
		)

		execErr := handler.Execute(stageCtx, wu)
		// A killed child process reports its signal, not the cancellation.
		if execErr != nil && ctx.Err() != nil {
			execErr = ctx.Err()
		}
		record.Finished = r.now()
		record.Err = execErr
		wu.Timeline = append(wu.Timeline, record)

		if execErr != nil {
			r.fail(ctx, stageLogger, wu, name, execErr)
			return wu
		}
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Int("artifacts", len(wu.Artifacts)),
			logging.Duration("stage_duration", record.Duration()),
		)
	}

	if err := wu.Transition(workunit.StatusSucceeded); err != nil {
		r.fail(ctx, logger, wu, "complete", services.Wrap(services.ErrValidation, "complete", "transition", "item cannot complete", err))
		return wu
	}
	r.notify(ctx, wu)
	logger.Info("item succeeded",
		logging.String(logging.FieldEventType, "item_succeeded"),
		logging.Int("outputs", len(wu.Outputs)),
		logging.String("output_dir", wu.OutputDir),
	)
	return wu
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, wu *workunit.WorkUnit, stageName string, err error) {
	wu.Fail(stageName, err)
	r.notify(ctx, wu)

	details := services.Details(err)
	if details.Kind == services.KindCanceled {
		logger.Info("item canceled",
			logging.String(logging.FieldEventType, "stage_canceled"),
			logging.String("failed_stage", stageName),
		)
		return
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("failed_stage", stageName),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, hintFor(details.Kind)),
		logging.Error(err),
	)
}

func (r *Runner) notify(ctx context.Context, wu *workunit.WorkUnit) {
	if fn := statusFuncFrom(ctx); fn != nil {
		fn(wu.Item, wu.Status)
	}
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}

func hintFor(kind services.ErrorKind) string {
	switch kind {
	case services.KindExtraction:
		return "check the input has a readable audio track"
	case services.KindModel:
		return "run stemsplit doctor and check the separator model"
	case services.KindMux:
		return "check ffmpeg supports the configured video_container"
	case services.KindConfiguration:
		return "check staging_dir and output_dir in the config"
	default:
		return "check logs for details"
	}
}
