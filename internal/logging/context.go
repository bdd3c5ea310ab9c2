package logging

import (
	"context"
	"log/slog"

	"stemsplit/internal/services"
)

// Structured field keys shared by every component.
const (
	FieldComponent = "component"
	FieldBatchID   = "batch_id"
	// FieldItem carries the item's output name, not its source path.
	FieldItem  = "item"
	FieldStage = "stage"
	FieldRunID = "run_id"
	// FieldEventType classifies a line for filtering (stage_start, guard_dispose_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries services.ErrorKind for failures.
	FieldErrorKind = "error_kind"
	// FieldImpact describes what the operator loses when a warning fires.
	FieldImpact = "impact"
)

var contextFields = []struct {
	key    string
	lookup func(context.Context) (string, bool)
}{
	{FieldBatchID, services.BatchIDFromContext},
	{FieldItem, services.ItemFromContext},
	{FieldStage, services.StageFromContext},
	{FieldRunID, services.RunIDFromContext},
}

// ContextFields extracts the batch, item, stage and run attributes carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, f := range contextFields {
		if v, ok := f.lookup(ctx); ok {
			fields = append(fields, slog.String(f.key, v))
		}
	}
	return fields
}

// WithContext returns logger augmented with the fields carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
