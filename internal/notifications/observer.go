package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stemsplit/internal/batch"
	"stemsplit/internal/logging"
	"stemsplit/internal/textutil"
	"stemsplit/internal/workunit"
)

const sendTimeout = 15 * time.Second

// Observer forwards batch milestones to a Service. Send failures are logged.
type Observer struct {
	svc    Service
	logger *slog.Logger
}

// NewObserver wraps svc as a batch.Observer.
func NewObserver(svc Service, logger *slog.Logger) *Observer {
	return &Observer{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

// BatchStarted implements batch.Observer.
func (o *Observer) BatchStarted(info batch.BatchInfo) {
	o.send("batch started", func(ctx context.Context) error {
		return o.svc.NotifyBatchStarted(ctx, info.Source, len(info.Items))
	})
}

// ItemStatus implements batch.Observer.
func (o *Observer) ItemStatus(workunit.InputItem, workunit.Status) {}

// ItemDone implements batch.Observer.
func (o *Observer) ItemDone(entry batch.Entry) {
	title := textutil.DisplayTitle(entry.Item.Name)
	outcome := entry.Outcome
	switch outcome.Remediation() {
	case batch.RemediationReprocess:
		if errors.Is(outcome.Err, context.Canceled) {
			return
		}
		o.send("item failed", func(ctx context.Context) error {
			return o.svc.NotifyItemFailed(ctx, title, outcome.FailedStage, outcome.Err)
		})
	case batch.RemediationReupload:
		o.send("publish incomplete", func(ctx context.Context) error {
			return o.svc.NotifyPublishIncomplete(ctx, title, outcome.UndeliveredCount())
		})
	}
}

// BatchDone implements batch.Observer.
func (o *Observer) BatchDone(report *batch.Report) {
	summary := report.Summary()
	o.send("batch completed", func(ctx context.Context) error {
		return o.svc.NotifyBatchCompleted(ctx, summary.Succeeded, summary.Failed, summary.NeedsUpload,
			report.Finished().Sub(report.Started()))
	})
}

func (o *Observer) send(event string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logging.WarnWithContext(o.logger, "notification not sent", "notification_failed",
			logging.String("event", event),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "processing is unaffected"),
		)
	}
}
