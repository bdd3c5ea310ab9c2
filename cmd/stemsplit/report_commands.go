package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stemsplit/internal/records"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect recorded batches",
	}

	reportCmd.AddCommand(newReportListCommand(ctx))
	reportCmd.AddCommand(newReportShowCommand(ctx))

	return reportCmd
}

// withStore opens the records store for the duration of fn.
func (c *commandContext) withStore(fn func(*records.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := records.Open(cfg)
	if errors.Is(err, records.ErrDisabled) {
		return errors.New("batch records are disabled (records.driver = \"none\")")
	}
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newReportListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				batches, err := store.ListBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if batches == nil {
						batches = []records.BatchRecord{}
					}
					return writeJSON(cmd, batches)
				}

				out := cmd.OutOrStdout()
				if len(batches) == 0 {
					fmt.Fprintln(out, "No batches recorded")
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						shortID(b.ID),
						humanize.Time(b.Started),
						strconv.Itoa(b.Items),
						strconv.Itoa(b.Succeeded),
						strconv.Itoa(b.Failed),
						strconv.Itoa(b.NeedsUpload),
						truncate(b.Source, 40),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Batch", "Started", "Items", "OK", "Failed", "Upload", "Source"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of batches to show")
	return cmd
}

func newReportShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show the items of a recorded batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				b, items, err := store.GetBatch(cmd.Context(), args[0])
				if errors.Is(err, records.ErrNotFound) {
					return fmt.Errorf("no batch matches %q", args[0])
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if items == nil {
						items = []records.ItemRecord{}
					}
					return writeJSON(cmd, map[string]any{"batch": b, "items": items})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batch:    %s\n", b.ID)
				fmt.Fprintf(out, "Source:   %s\n", b.Source)
				fmt.Fprintf(out, "Started:  %s\n", b.Started.Local().Format(time.DateTime))
				if !b.Finished.IsZero() {
					fmt.Fprintf(out, "Duration: %s\n", b.Finished.Sub(b.Started).Round(time.Second))
				} else {
					fmt.Fprintln(out, "Duration: (did not finish)")
				}
				if b.Bundle != "" {
					fmt.Fprintf(out, "Bundle:   %s\n", b.Bundle)
				}
				fmt.Fprintf(out, "Result:   %d succeeded, %d failed, %d need upload\n\n", b.Succeeded, b.Failed, b.NeedsUpload)

				if len(items) == 0 {
					fmt.Fprintln(out, "No items recorded")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					detail := ""
					if it.ErrorMessage != "" {
						detail = fmt.Sprintf("%s: %s", stageLabel(it.FailedStage), it.ErrorMessage)
					} else if it.TranscriptDegraded {
						detail = "transcript degraded"
					}
					rows = append(rows, []string{
						strconv.Itoa(it.Seq + 1),
						it.Name,
						it.Status,
						strconv.Itoa(len(it.Outputs)),
						deliverySummary(it.Deliveries),
						dashIfEmpty(it.Remediation),
						truncate(detail, 60),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"#", "Item", "Status", "Outputs", "Published", "Action", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func deliverySummary(deliveries []records.DeliveryRecord) string {
	if len(deliveries) == 0 {
		return "-"
	}
	delivered := 0
	for _, d := range deliveries {
		if d.State == "delivered" {
			delivered++
		}
	}
	return fmt.Sprintf("%d/%d", delivered, len(deliveries))
}
