package services

import "context"

type contextKey string

const (
	batchIDKey contextKey = "batch_id"
	itemKey    contextKey = "item"
	stageKey   contextKey = "stage"
	runIDKey   contextKey = "run_id"
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithBatchID annotates ctx with the batch identifier.
func WithBatchID(ctx context.Context, id string) context.Context {
	return withValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, batchIDKey) }

// WithItem annotates ctx with the output name of the item being processed.
func WithItem(ctx context.Context, name string) context.Context {
	return withValue(ctx, itemKey, name)
}

// ItemFromContext returns the item name if present.
func ItemFromContext(ctx context.Context) (string, bool) { return lookup(ctx, itemKey) }

// WithStage annotates ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, stageKey) }

// WithRunID tags ctx with the identifier of a single item run. A retried item
// gets a new run id in the same batch.
func WithRunID(ctx context.Context, id string) context.Context {
	return withValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the item run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, runIDKey) }
