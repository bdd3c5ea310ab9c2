package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stemsplit/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage leftovers in the staging directory",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List work directories and bundles left in staging",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stagingDir := strings.TrimSpace(cfg.Paths.StagingDir)
			entries, err := staging.ListEntries(stagingDir)
			if err != nil {
				return fmt.Errorf("list staging entries: %w", err)
			}

			var totalSize int64
			for _, e := range entries {
				totalSize += e.Size
			}

			if ctx.JSONMode() {
				if entries == nil {
					entries = []staging.EntryInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      stagingDir,
					"entries":          entries,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No staging entries found")
				return nil
			}

			fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Name, formatAge(time.Since(e.ModTime)), humanize.Bytes(uint64(e.Size))}) //nolint:gosec
			}
			fmt.Fprint(out, renderTable(
				[]string{"Entry", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d entries, %s\n", len(entries), humanize.Bytes(uint64(totalSize))) //nolint:gosec
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale work directories and bundles",
		Long: `Remove work directories and half-written bundles left in staging_dir by
interrupted batches.

Only entries older than --max-age are removed (default: workflow.stale_staging_hours).
Cleanup refuses to run while a batch holds the staging directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = time.Duration(cfg.Workflow.StaleStagingHours) * time.Hour
			}

			lock, err := staging.AcquireExclusive(cfg.Paths.StagingDir)
			if err != nil {
				return err
			}
			defer lock.Release()

			result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, ctx.loggerFor(cfg))
			if ctx.JSONMode() {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				if result.Removed == nil {
					result.Removed = []string{}
				}
				return writeJSON(cmd, map[string]any{"removed": result.Removed, "errors": errs})
			}

			out := cmd.OutOrStdout()
			switch {
			case len(result.Removed) == 0 && len(result.Errors) == 0:
				fmt.Fprintln(out, "No stale staging entries")
			case len(result.Errors) > 0:
				fmt.Fprintf(out, "Removed %d stale entries, %d errors\n", len(result.Removed), len(result.Errors))
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
				}
			default:
				fmt.Fprintf(out, "Removed %d stale entries\n", len(result.Removed))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove entries older than this (e.g. 12h)")
	return cmd
}

func formatAge(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
