package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"stemsplit/internal/batch"
	"stemsplit/internal/config"
	"stemsplit/internal/logging"
	"stemsplit/internal/notifications"
	"stemsplit/internal/pipeline"
	"stemsplit/internal/preflight"
	"stemsplit/internal/records"
	"stemsplit/internal/sources"
	"stemsplit/internal/staging"
)

type processOptions struct {
	archive     string
	url         string
	manifest    string
	mode        string
	transcribe  bool
	gpu         bool
	concurrency int
	inputOrder  bool
	bundle      bool
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process [files...]",
		Short: "Separate stems for every video in a source",
		Long: `Process a batch of videos.

The source is either one or more files given as arguments, or exactly one of
--archive (a zip of videos), --url (a video or zip download) or --manifest (a
YAML list of inputs). Each item is extracted, separated, optionally
transcribed, recombined and written under output_dir/<item name>.

The command exits with status 1 when any item failed processing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			src, err := sources.FromArgs(args, opts.archive, opts.url, opts.manifest)
			if err != nil {
				return err
			}
			local, err := applyProcessOverrides(cmd, *cfg, opts)
			if err != nil {
				return err
			}
			return runProcess(cmd, ctx, &local, src)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.archive, "archive", "", "Zip archive of videos to process")
	flags.StringVar(&opts.url, "url", "", "URL of a video or zip archive to download")
	flags.StringVar(&opts.manifest, "manifest", "", "YAML manifest listing inputs")
	flags.StringVar(&opts.mode, "mode", "", "Output mode: silent_video, vocals_video or stems_only")
	flags.BoolVar(&opts.transcribe, "transcribe", false, "Transcribe the vocal stem")
	flags.BoolVar(&opts.gpu, "gpu", false, "Run separation and transcription on the GPU")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "Items processed at once")
	flags.BoolVar(&opts.inputOrder, "input-order", false, "Report items in input order instead of completion order")
	flags.BoolVar(&opts.bundle, "bundle", false, "Zip all outputs into output_dir/<batch id>.zip")

	return cmd
}

// applyProcessOverrides layers explicitly set flags over cfg.
func applyProcessOverrides(cmd *cobra.Command, cfg config.Config, opts processOptions) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Pipeline.Mode = strings.ToLower(strings.TrimSpace(opts.mode))
	}
	if flags.Changed("transcribe") {
		cfg.Pipeline.Transcribe = opts.transcribe
	}
	if flags.Changed("gpu") {
		cfg.Pipeline.UseGPU = opts.gpu
	}
	if flags.Changed("concurrency") {
		cfg.Workflow.Concurrency = opts.concurrency
	}
	if flags.Changed("input-order") {
		cfg.Workflow.PreserveInputOrder = opts.inputOrder
	}
	if flags.Changed("bundle") {
		cfg.Workflow.Bundle = opts.bundle
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

func runProcess(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, src sources.Source) error {
	logger := ctx.loggerFor(cfg)

	deps, err := ctx.buildDeps(cfg, logger)
	if err != nil {
		return fmt.Errorf("configure pipeline: %w", err)
	}

	var observers batch.Observers
	if !ctx.JSONMode() {
		observers = append(observers, newProgressObserver(cmd.ErrOrStderr()))
	}

	store, err := records.Open(cfg)
	switch {
	case errors.Is(err, records.ErrDisabled):
	case err != nil:
		logging.WarnWithContext(logger, "batch records unavailable", "records_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check records.driver and records.database_url"),
			logging.String(logging.FieldImpact, "this batch will not appear in stemsplit report"),
		)
	default:
		defer store.Close()
		observers = append(observers, records.NewRecorder(store, logger))
	}

	if svc := notifications.NewService(cfg); notifications.Enabled(svc) {
		observers = append(observers, notifications.NewObserver(svc, logger))
	}

	runner, err := newBatchRunner(cfg, deps, observers, logger)
	if err != nil {
		return err
	}

	if err := checkReadiness(cmd.Context(), cfg, runner, ctx.minFreeBytes); err != nil {
		return err
	}

	lock, err := staging.AcquireShared(cfg.Paths.StagingDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release staging lock", logging.Error(err))
		}
	}()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := runner.Run(runCtx, src)
	if report == nil {
		return runErr
	}

	if ctx.JSONMode() {
		if err := writeJSON(cmd, newReportView(report)); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if runErr != nil {
		return runErr
	}
	if summary := report.Summary(); summary.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", summary.Failed, summary.Total)
	}
	return nil
}

// checkReadiness runs preflight filesystem checks and every stage health check.
func checkReadiness(ctx context.Context, cfg *config.Config, runner *batch.Runner, minFree uint64) error {
	var problems []string
	for _, r := range preflight.Failed(preflight.RunAll(cfg, minFree)) {
		problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if p, ok := runner.Pipeline.(*pipeline.Runner); ok {
		for _, handler := range p.Stages {
			if health := handler.HealthCheck(ctx); !health.Ready {
				problems = append(problems, fmt.Sprintf("%s: %s", health.Name, health.Detail))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("not ready to process (run stemsplit doctor):\n  %s", strings.Join(problems, "\n  "))
}
