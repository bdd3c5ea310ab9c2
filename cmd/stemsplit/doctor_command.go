package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stemsplit/internal/config"
	"stemsplit/internal/preflight"
	"stemsplit/internal/records"
	"stemsplit/internal/stages"
	"stemsplit/internal/staging"
)

type doctorCheck struct {
	Section string `json:"section"`
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies, directories and stage readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checks := runDoctor(cmd.Context(), ctx, cfg)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, checks); err != nil {
					return err
				}
			} else {
				printDoctor(cmd.OutOrStdout(), cfg, checks)
			}

			failed := 0
			for _, c := range checks {
				if !c.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}
}

func runDoctor(ctx context.Context, cc *commandContext, cfg *config.Config) []doctorCheck {
	var checks []doctorCheck

	for _, s := range preflight.CheckSystemDeps(cfg) {
		detail := s.Path
		if !s.Available {
			detail = s.Detail
			if s.Optional {
				detail += " (optional)"
			}
		}
		checks = append(checks, doctorCheck{
			Section: "dependencies",
			Name:    fmt.Sprintf("%s (%s)", s.Name, s.Command),
			OK:      s.Available || s.Optional,
			Detail:  detail,
		})
	}

	for _, r := range preflight.RunAll(cfg, cc.minFreeBytes) {
		checks = append(checks, doctorCheck{Section: "filesystem", Name: r.Name, OK: r.Passed, Detail: r.Detail})
	}

	logger := cc.loggerFor(cfg)
	deps, err := cc.buildDeps(cfg, logger)
	if err != nil {
		checks = append(checks, doctorCheck{Section: "stages", Name: "pipeline", Detail: err.Error()})
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		for _, handler := range stages.Build(cfg, deps, logger) {
			h := handler.HealthCheck(checkCtx)
			checks = append(checks, doctorCheck{Section: "stages", Name: h.Name, OK: h.Ready, Detail: h.Detail})
		}
		cancel()
	}

	checks = append(checks, recordsCheck(cfg))
	return checks
}

func recordsCheck(cfg *config.Config) doctorCheck {
	check := doctorCheck{Section: "records", Name: cfg.Records.Driver}
	store, err := records.Open(cfg)
	switch {
	case errors.Is(err, records.ErrDisabled):
		check.OK = true
		check.Detail = "disabled"
	case err != nil:
		check.Detail = err.Error()
	default:
		check.OK = true
		check.Detail = store.Target()
		_ = store.Close()
	}
	return check
}

func printDoctor(out io.Writer, cfg *config.Config, checks []doctorCheck) {
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		rows = append(rows, []string{c.Section, c.Name, mark, truncate(c.Detail, 70)})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Section", "Check", "Result", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintln(out)

	if entries, err := staging.ListEntries(cfg.Paths.StagingDir); err == nil && len(entries) > 0 {
		var total int64
		for _, e := range entries {
			total += e.Size
		}
		fmt.Fprintf(out, "Staging holds %d leftover entries (%s); run stemsplit staging clean\n",
			len(entries), humanize.Bytes(uint64(total))) //nolint:gosec
	}
	fmt.Fprintf(out, "Mode: %s, transcription: %s, GPU: %s, sink: %s\n",
		cfg.Pipeline.Mode, yesNo(cfg.Pipeline.Transcribe), yesNo(cfg.Pipeline.UseGPU), cfg.Sink.Kind)
}
