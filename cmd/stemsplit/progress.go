package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"stemsplit/internal/batch"
	"stemsplit/internal/workunit"
)

// progressObserver draws a progress bar on terminals and prints one line per
// finished item otherwise.
type progressObserver struct {
	out io.Writer
	tty bool
	bar *progressbar.ProgressBar
}

func newProgressObserver(out io.Writer) *progressObserver {
	return &progressObserver{out: out, tty: isTerminal(out)}
}

func (p *progressObserver) BatchStarted(info batch.BatchInfo) {
	if !p.tty {
		fmt.Fprintf(p.out, "Batch %s: %d items from %s\n", shortID(info.ID), len(info.Items), info.Source)
		return
	}
	p.bar = progressbar.NewOptions(len(info.Items),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *progressObserver) ItemStatus(item workunit.InputItem, status workunit.Status) {
	if p.bar != nil {
		p.bar.Describe(fmt.Sprintf("%s: %s", item.Name, status))
	}
}

func (p *progressObserver) ItemDone(entry batch.Entry) {
	if p.bar != nil {
		_ = p.bar.Add(1)
		return
	}
	outcome := entry.Outcome
	switch outcome.Remediation() {
	case batch.RemediationReprocess:
		fmt.Fprintf(p.out, "  failed     %s (%s)\n", entry.Item.Name, stageLabel(outcome.FailedStage))
	case batch.RemediationReupload:
		fmt.Fprintf(p.out, "  reupload   %s (%d outputs not published)\n", entry.Item.Name, outcome.UndeliveredCount())
	default:
		fmt.Fprintf(p.out, "  succeeded  %s\n", entry.Item.Name)
	}
}

func (p *progressObserver) BatchDone(*batch.Report) {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stageLabel(stage string) string {
	if stage == "" {
		return "not started"
	}
	return stage
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
