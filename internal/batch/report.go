package batch

import (
	"slices"
	"time"

	"stemsplit/internal/services"
	"stemsplit/internal/workunit"
)

// Remediation tells the operator what to do about an entry.
type Remediation string

const (
	RemediationNone      Remediation = ""
	RemediationReprocess Remediation = "reprocess"
	RemediationReupload  Remediation = "reupload"
)

// Outcome is the terminal result of one item.
type Outcome struct {
	Status      workunit.Status
	OutputDir   string
	Outputs     []string
	Deliveries  []workunit.DeliveryRecord
	Transcript  *workunit.Transcription
	Timeline    []workunit.StageRecord
	FailedStage string
	Err         error
}

// Succeeded reports whether the item was processed.
func (o Outcome) Succeeded() bool {
	return o.Status == workunit.StatusSucceeded
}

// ErrorKind classifies Err.
func (o Outcome) ErrorKind() services.ErrorKind {
	return services.KindOf(o.Err)
}

// UndeliveredCount returns how many outputs failed to publish.
func (o Outcome) UndeliveredCount() int {
	n := 0
	for _, d := range o.Deliveries {
		if !d.Delivered() {
			n++
		}
	}
	return n
}

// Remediation distinguishes items that must be processed again from items
// whose outputs only need to be published again.
func (o Outcome) Remediation() Remediation {
	switch {
	case !o.Succeeded():
		return RemediationReprocess
	case o.UndeliveredCount() > 0:
		return RemediationReupload
	default:
		return RemediationNone
	}
}

func (o Outcome) clone() Outcome {
	o.Outputs = slices.Clone(o.Outputs)
	o.Deliveries = slices.Clone(o.Deliveries)
	o.Timeline = slices.Clone(o.Timeline)
	if o.Transcript != nil {
		t := *o.Transcript
		o.Transcript = &t
	}
	return o
}

// Entry pairs an input item with its outcome.
type Entry struct {
	Item     workunit.InputItem
	Outcome  Outcome
	Started  time.Time
	Finished time.Time
}

// Summary counts entries by result.
type Summary struct {
	Total       int
	Succeeded   int
	Failed      int
	NeedsUpload int
}

// Report is the immutable result of a batch run.
type Report struct {
	batchID  string
	source   string
	started  time.Time
	finished time.Time
	entries  []Entry
	bundle   string
}

// NewReport builds a report, copying entries.
func NewReport(batchID, source string, started, finished time.Time, entries []Entry, bundle string) *Report {
	cloned := make([]Entry, len(entries))
	for i, e := range entries {
		e.Outcome = e.Outcome.clone()
		cloned[i] = e
	}
	return &Report{
		batchID:  batchID,
		source:   source,
		started:  started,
		finished: finished,
		entries:  cloned,
		bundle:   bundle,
	}
}

func (r *Report) BatchID() string     { return r.batchID }
func (r *Report) Source() string      { return r.source }
func (r *Report) Started() time.Time  { return r.started }
func (r *Report) Finished() time.Time { return r.finished }

// Bundle is the handed-off archive path, empty when no bundle was produced.
func (r *Report) Bundle() string { return r.bundle }

// Entries returns a copy of the entries.
func (r *Report) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.Outcome = e.Outcome.clone()
		out[i] = e
	}
	return out
}

// Summary counts the report's entries.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.entries)}
	for _, e := range r.entries {
		switch e.Outcome.Remediation() {
		case RemediationReprocess:
			s.Failed++
		case RemediationReupload:
			s.Succeeded++
			s.NeedsUpload++
		default:
			s.Succeeded++
		}
	}
	return s
}

// HasFailures reports whether any item failed processing.
func (r *Report) HasFailures() bool {
	return r.Summary().Failed > 0
}

func entryFromUnit(wu *workunit.WorkUnit, started, finished time.Time) Entry {
	return Entry{
		Item:     wu.Item,
		Started:  started,
		Finished: finished,
		Outcome: Outcome{
			Status:      wu.Status,
			OutputDir:   wu.OutputDir,
			Outputs:     wu.OutputPaths(),
			Deliveries:  slices.Clone(wu.Deliveries),
			Transcript:  wu.Transcript,
			Timeline:    wu.CloneTimeline(),
			FailedStage: wu.FailedStage,
			Err:         wu.Err,
		},
	}
}

func failedEntry(item workunit.InputItem, stage string, err error, at time.Time) Entry {
	return Entry{
		Item:     item,
		Started:  at,
		Finished: at,
		Outcome: Outcome{
			Status:      workunit.StatusFailed,
			FailedStage: stage,
			Err:         err,
		},
	}
}
