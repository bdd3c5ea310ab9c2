package records

import (
	"context"
	"log/slog"
	"time"

	"stemsplit/internal/batch"
	"stemsplit/internal/logging"
	"stemsplit/internal/workunit"
)

const writeTimeout = 10 * time.Second

// Recorder is a batch.Observer that writes history as the batch runs.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	batchID string
	// failed turns recording off for the rest of the batch after the batch row could not be written.
	failed bool
}

// NewRecorder wraps store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logging.NewComponentLogger(logger, "records")}
}

// BatchStarted implements batch.Observer.
func (r *Recorder) BatchStarted(info batch.BatchInfo) {
	r.batchID = info.ID
	r.failed = false
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.BeginBatch(ctx, info.ID, info.Source, len(info.Items), info.Started); err != nil {
		r.failed = true
		r.warn("batch history not recorded", err)
	}
}

// ItemStatus implements batch.Observer.
func (r *Recorder) ItemStatus(workunit.InputItem, workunit.Status) {}

// ItemDone implements batch.Observer.
func (r *Recorder) ItemDone(entry batch.Entry) {
	if r.failed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.RecordEntry(ctx, r.batchID, entry); err != nil {
		r.warn("item history not recorded", err, logging.String(logging.FieldItem, entry.Item.Name))
	}
}

// BatchDone implements batch.Observer.
func (r *Recorder) BatchDone(report *batch.Report) {
	if r.failed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.FinishBatch(ctx, report); err != nil {
		r.warn("batch summary not recorded", err)
	}
}

func (r *Recorder) warn(msg string, err error, attrs ...logging.Attr) {
	attrs = append(attrs,
		logging.String(logging.FieldBatchID, r.batchID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check records.driver and the database"),
		logging.String(logging.FieldImpact, "stemsplit report will not show this batch completely"),
	)
	logging.WarnWithContext(r.logger, msg, "records_write_failed", attrs...)
}
