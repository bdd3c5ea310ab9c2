package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/pipeline"
	"stemsplit/internal/services"
	"stemsplit/internal/sources"
	"stemsplit/internal/workunit"
)

// Pipeline processes one item to a terminal work unit.
type Pipeline interface {
	Run(ctx context.Context, item workunit.InputItem) *workunit.WorkUnit
}

// Lister turns a source into input items.
type Lister interface {
	List(ctx context.Context, src sources.Source) ([]workunit.InputItem, error)
}

// Runner processes whole batches.
type Runner struct {
	Pipeline Pipeline
	// Sources lists items. When it is a *sources.Provider its temporary
	// directories are owned by the batch guard.
	Sources            Lister
	Concurrency        int
	PreserveInputOrder bool
	Bundle             bool
	// StagingDir holds the bundle while it is built; OutputDir receives it.
	StagingDir string
	OutputDir  string
	Observer   Observer
	Logger     *slog.Logger
	// Clock and NewID are injectable for tests.
	Clock func() time.Time
	NewID func() string
}

// Run processes every item of src. The report is returned even when ctx is
// canceled, together with the context error. A source that cannot be listed
// fails the batch before any item starts.
func (r *Runner) Run(ctx context.Context, src sources.Source) (*Report, error) {
	batchID := r.newID()
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.Logger, "batch"))
	started := r.now()

	g := guard.New(logger)
	defer g.Dispose()

	lister := r.Sources
	if provider, ok := lister.(*sources.Provider); ok {
		lister = provider.WithGuard(g)
	}
	items, err := lister.List(ctx, src)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to list input items", "source_failed",
			logging.String("source", src.Describe()),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.String(logging.FieldErrorHint, "check the input path, archive or URL"),
			logging.Error(err),
		)
		return nil, err
	}
	items = AssignNames(items)

	obs := &serialObserver{next: r.observer()}
	obs.BatchStarted(BatchInfo{ID: batchID, Source: src.Describe(), Started: started, Items: items})
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.String("source", src.Describe()),
		logging.Int("items", len(items)),
		logging.Int("concurrency", r.concurrency()),
	)

	entries := r.runItems(ctx, logger, items, obs)
	if r.PreserveInputOrder {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Item.Seq < entries[j].Item.Seq })
	}

	bundlePath := ""
	if r.Bundle && ctx.Err() == nil {
		path, err := r.bundle(ctx, batchID, entries, g)
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "bundle not created", "bundle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check output_dir free space"),
				logging.String(logging.FieldImpact, "per-item outputs are still available"),
			)
		default:
			bundlePath = path
		}
	}

	report := NewReport(batchID, src.Describe(), started, r.now(), entries, bundlePath)
	summary := report.Summary()
	logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("needs_upload", summary.NeedsUpload),
		logging.String("bundle", bundlePath),
	)
	obs.BatchDone(report)
	return report, ctx.Err()
}

func (r *Runner) runItems(ctx context.Context, logger *slog.Logger, items []workunit.InputItem, obs Observer) []Entry {
	jobs := make(chan workunit.InputItem)
	results := make(chan Entry)
	itemCtx := pipeline.WithStatusFunc(ctx, obs.ItemStatus)

	var wg sync.WaitGroup
	workers := min(r.concurrency(), max(len(items), 1))
	wg.Add(workers + 1)
	for range workers {
		go func() {
			defer wg.Done()
			for item := range jobs {
				if err := ctx.Err(); err != nil {
					results <- failedEntry(item, "", err, r.now())
					continue
				}
				results <- r.runOne(itemCtx, logger, item)
			}
		}()
	}
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- item:
			case <-ctx.Done():
				for _, rest := range items[i:] {
					results <- failedEntry(rest, "", ctx.Err(), r.now())
				}
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	entries := make([]Entry, 0, len(items))
	for entry := range results {
		entries = append(entries, entry)
		r.logEntry(logger, entry)
		obs.ItemDone(entry)
	}
	return entries
}

func (r *Runner) runOne(ctx context.Context, logger *slog.Logger, item workunit.InputItem) (entry Entry) {
	started := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic while processing %s: %v", item.Name, rec)
			logging.ErrorWithContext(logger, "item panicked", "item_panic",
				logging.String(logging.FieldItem, item.Name),
				logging.String("stack", string(debug.Stack())),
				logging.Error(err),
			)
			entry = failedEntry(item, "panic", err, r.now())
			entry.Started = started
		}
	}()
	wu := r.Pipeline.Run(ctx, item)
	return entryFromUnit(wu, started, r.now())
}

func (r *Runner) logEntry(logger *slog.Logger, entry Entry) {
	outcome := entry.Outcome
	if outcome.Succeeded() {
		logger.Debug("item finished",
			logging.String(logging.FieldItem, entry.Item.Name),
			logging.Int("outputs", len(outcome.Outputs)),
			logging.String("remediation", string(outcome.Remediation())),
		)
		return
	}
	if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
		logger.Info("item canceled", logging.String(logging.FieldItem, entry.Item.Name))
		return
	}
	logging.WarnWithContext(logger, "item failed", "item_failed",
		logging.String(logging.FieldItem, entry.Item.Name),
		logging.String("failed_stage", outcome.FailedStage),
		logging.String(logging.FieldErrorKind, string(outcome.ErrorKind())),
		logging.Error(outcome.Err),
		logging.String(logging.FieldErrorHint, "reprocess the item after fixing the cause"),
		logging.String(logging.FieldImpact, "item has no outputs; other items continue"),
	)
}

func (r *Runner) concurrency() int {
	if r.Concurrency < 1 {
		return 1
	}
	return r.Concurrency
}

func (r *Runner) observer() Observer {
	if r.Observer == nil {
		return NopObserver{}
	}
	return r.Observer
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// serialObserver serializes calls coming from worker goroutines.
type serialObserver struct {
	mu   sync.Mutex
	next Observer
}

func (s *serialObserver) BatchStarted(info BatchInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.BatchStarted(info)
}

func (s *serialObserver) ItemStatus(item workunit.InputItem, status workunit.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.ItemStatus(item, status)
}

func (s *serialObserver) ItemDone(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.ItemDone(entry)
}

func (s *serialObserver) BatchDone(report *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.BatchDone(report)
}
