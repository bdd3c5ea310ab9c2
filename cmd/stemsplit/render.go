package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"stemsplit/internal/batch"
	"stemsplit/internal/services"
)

type reportView struct {
	BatchID  string      `json:"batch_id"`
	Source   string      `json:"source"`
	Started  time.Time   `json:"started"`
	Finished time.Time   `json:"finished"`
	Bundle   string      `json:"bundle,omitempty"`
	Summary  summaryView `json:"summary"`
	Items    []itemView  `json:"items"`
}

type summaryView struct {
	Total       int `json:"total"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	NeedsUpload int `json:"needs_upload"`
}

type itemView struct {
	Name               string         `json:"name"`
	Input              string         `json:"input"`
	Status             string         `json:"status"`
	FailedStage        string         `json:"failed_stage,omitempty"`
	ErrorKind          string         `json:"error_kind,omitempty"`
	Error              string         `json:"error,omitempty"`
	Remediation        string         `json:"remediation,omitempty"`
	OutputDir          string         `json:"output_dir,omitempty"`
	Outputs            []string       `json:"outputs"`
	TranscriptDegraded bool           `json:"transcript_degraded,omitempty"`
	Deliveries         []deliveryView `json:"deliveries,omitempty"`
}

type deliveryView struct {
	Destination string `json:"destination"`
	Attempts    int    `json:"attempts"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
}

func newReportView(report *batch.Report) reportView {
	s := report.Summary()
	view := reportView{
		BatchID:  report.BatchID(),
		Source:   report.Source(),
		Started:  report.Started(),
		Finished: report.Finished(),
		Bundle:   report.Bundle(),
		Summary:  summaryView{Total: s.Total, Succeeded: s.Succeeded, Failed: s.Failed, NeedsUpload: s.NeedsUpload},
		Items:    []itemView{},
	}
	for _, e := range report.Entries() {
		o := e.Outcome
		item := itemView{
			Name:        e.Item.Name,
			Input:       e.Item.Path,
			Status:      string(o.Status),
			FailedStage: o.FailedStage,
			Remediation: string(o.Remediation()),
			OutputDir:   o.OutputDir,
			Outputs:     append([]string{}, o.Outputs...),
		}
		if o.Err != nil {
			details := services.Details(o.Err)
			item.ErrorKind = string(details.Kind)
			item.Error = details.Message
		}
		if o.Transcript != nil {
			item.TranscriptDegraded = o.Transcript.Degraded
		}
		for _, d := range o.Deliveries {
			dv := deliveryView{Destination: d.Destination, Attempts: d.Attempts, State: d.State}
			if d.LastErr != nil {
				dv.Error = d.LastErr.Error()
			}
			item.Deliveries = append(item.Deliveries, dv)
		}
		view.Items = append(view.Items, item)
	}
	return view
}

func printReport(out io.Writer, report *batch.Report) {
	s := report.Summary()
	elapsed := report.Finished().Sub(report.Started()).Round(time.Second)
	fmt.Fprintf(out, "\nBatch %s (%s)\n", report.BatchID(), report.Source())
	fmt.Fprintf(out, "%d succeeded, %d failed, %d need upload in %s\n\n", s.Succeeded, s.Failed, s.NeedsUpload, elapsed)

	entries := report.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No items")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		o := e.Outcome
		detail := ""
		switch o.Remediation() {
		case batch.RemediationReprocess:
			detail = fmt.Sprintf("%s: %s", stageLabel(o.FailedStage), services.Details(o.Err).Message)
		case batch.RemediationReupload:
			detail = fmt.Sprintf("%d of %d outputs not published", o.UndeliveredCount(), len(o.Deliveries))
		default:
			if o.Transcript != nil && o.Transcript.Degraded {
				detail = "transcript degraded: " + o.Transcript.Reason
			}
		}
		rows = append(rows, []string{
			e.Item.Name,
			string(o.Status),
			strconv.Itoa(len(o.Outputs)),
			dashIfEmpty(string(o.Remediation())),
			truncate(detail, 60),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Item", "Status", "Outputs", "Action", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintln(out)
	if bundle := report.Bundle(); bundle != "" {
		fmt.Fprintf(out, "Bundle: %s\n", bundle)
	}
	for _, e := range entries {
		if e.Outcome.OutputDir != "" {
			fmt.Fprintf(out, "Outputs: %s\n", filepath.Dir(e.Outcome.OutputDir))
			break
		}
	}
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
