package batch_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"stemsplit/internal/batch"
	"stemsplit/internal/config"
	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/media/ffmpeg"
	"stemsplit/internal/media/ffprobe"
	"stemsplit/internal/pipeline"
	"stemsplit/internal/services"
	"stemsplit/internal/sources"
	"stemsplit/internal/stages"
	"stemsplit/internal/testsupport"
	"stemsplit/internal/workunit"
)

// probeFailing reports no audio for inputs whose name contains marker.
func probeFailing(marker string) stages.ProbeFunc {
	ok := testsupport.ProbeWithAudio(1)
	none := testsupport.ProbeWithAudio(0)
	return func(ctx context.Context, path string) (ffprobe.Result, error) {
		if strings.Contains(filepath.Base(path), marker) {
			return none(ctx, path)
		}
		return ok(ctx, path)
	}
}

type fixture struct {
	cfg    *config.Config
	runner *batch.Runner
	inputs []string
}

func newFixture(t *testing.T, names []string, probe stages.ProbeFunc, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	writer := &testsupport.FFmpegWriter{}
	tool := ffmpeg.New("ffmpeg")
	tool.WithCommandRunner(writer.Run)

	handlers := stages.Build(cfg, stages.Dependencies{
		Separator: &testsupport.FakeSeparator{},
		FFmpeg:    tool,
		Probe:     probe,
	}, logging.NewNop())

	var inputs []string
	for _, name := range names {
		path := filepath.Join(testsupport.BaseDir(cfg), "input", name)
		testsupport.WriteFile(t, path, 32)
		inputs = append(inputs, path)
	}

	ids := 0
	return &fixture{
		cfg:    cfg,
		inputs: inputs,
		runner: &batch.Runner{
			Pipeline:    &pipeline.Runner{Stages: handlers, StagingDir: cfg.Paths.StagingDir, Logger: logging.NewNop()},
			Sources:     sources.NewProvider(cfg, logging.NewNop()),
			Concurrency: 1,
			StagingDir:  cfg.Paths.StagingDir,
			OutputDir:   cfg.Paths.OutputDir,
			Logger:      logging.NewNop(),
			NewID: func() string {
				ids++
				return "batch-" + string(rune('0'+ids))
			},
		},
	}
}

func TestRunIsolatesItemFailure(t *testing.T) {
	f := newFixture(t, []string{"one.mp4", "two.mp4", "three.mp4"}, probeFailing("two"))

	report, err := f.runner.Run(context.Background(), sources.Files{Paths: f.inputs})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries := report.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []bool{true, false, true} {
		if entries[i].Outcome.Succeeded() != want {
			t.Fatalf("entry %d (%s): succeeded=%v, want %v (%v)", i, entries[i].Item.Name, !want, want, entries[i].Outcome.Err)
		}
	}
	failed := entries[1].Outcome
	if !errors.Is(failed.Err, services.ErrExtraction) || failed.FailedStage != "extract" {
		t.Fatalf("unexpected failure %v at %q", failed.Err, failed.FailedStage)
	}
	if failed.Remediation() != batch.RemediationReprocess || !report.HasFailures() {
		t.Fatal("failed item should need reprocessing")
	}
	if s := report.Summary(); s.Succeeded != 2 || s.Failed != 1 || s.Total != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
	for _, name := range []string{"one", "three"} {
		want := []string{"accompaniment.wav", name + "_silent.webm", "vocals.wav"}
		if got := testsupport.ListFiles(t, filepath.Join(f.cfg.Paths.OutputDir, name)); !slices.Equal(got, want) {
			t.Fatalf("%s outputs = %v, want %v", name, got, want)
		}
	}
	if got := testsupport.ListFiles(t, filepath.Join(f.cfg.Paths.OutputDir, "two")); len(got) != 0 {
		t.Fatalf("failed item should leave no outputs, got %v", got)
	}
	testsupport.AssertEmptyDir(t, f.cfg.Paths.StagingDir)
}

func TestRunPreservesInputOrderWithWorkers(t *testing.T) {
	names := []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4"}
	f := newFixture(t, names, testsupport.ProbeWithAudio(1))
	f.runner.Concurrency = 3
	f.runner.PreserveInputOrder = true

	report, err := f.runner.Run(context.Background(), sources.Files{Paths: f.inputs})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got []string
	for _, e := range report.Entries() {
		got = append(got, e.Item.Name)
		if !e.Outcome.Succeeded() {
			t.Fatalf("%s failed: %v", e.Item.Name, e.Outcome.Err)
		}
	}
	if !slices.Equal(got, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("unexpected order %v", got)
	}
	testsupport.AssertEmptyDir(t, f.cfg.Paths.StagingDir)
}

func TestRunBundlesSucceededOutputs(t *testing.T) {
	f := newFixture(t, []string{"one.mp4", "two.mp4"}, probeFailing("two"), testsupport.WithMode(config.ModeStemsOnly))
	f.runner.Bundle = true

	report, err := f.runner.Run(context.Background(), sources.Files{Paths: f.inputs})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := filepath.Join(f.cfg.Paths.OutputDir, "batch-1.zip")
	if report.Bundle() != want {
		t.Fatalf("bundle = %q, want %q", report.Bundle(), want)
	}
	zr, err := zip.OpenReader(want)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"one/accompaniment.wav", "one/vocals.wav"}) {
		t.Fatalf("unexpected bundle contents %v", names)
	}
	testsupport.AssertEmptyDir(t, f.cfg.Paths.StagingDir)
}

func TestRunFailsWhenSourceUnavailable(t *testing.T) {
	f := newFixture(t, nil, testsupport.ProbeWithAudio(1))
	report, err := f.runner.Run(context.Background(), sources.SingleFile{Path: filepath.Join(t.TempDir(), "gone.mp4")})
	if report != nil || !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected source failure, got %v, %v", report, err)
	}
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type staticLister []workunit.InputItem

func (s staticLister) List(context.Context, sources.Source) ([]workunit.InputItem, error) {
	return s, nil
}

type funcPipeline func(ctx context.Context, item workunit.InputItem) *workunit.WorkUnit

func (f funcPipeline) Run(ctx context.Context, item workunit.InputItem) *workunit.WorkUnit {
	return f(ctx, item)
}

func succeeded(item workunit.InputItem) *workunit.WorkUnit {
	wu := workunit.New(item, guard.New(logging.NewNop()))
	wu.Status = workunit.StatusSucceeded
	return wu
}

func items(names ...string) staticLister {
	out := make(staticLister, len(names))
	for i, name := range names {
		out[i] = workunit.InputItem{Path: "/in/" + name + ".mp4", Name: name, Seq: i}
	}
	return out
}

func TestRunRecoversPanics(t *testing.T) {
	runner := &batch.Runner{
		Sources: items("a", "boom", "c"),
		Pipeline: funcPipeline(func(_ context.Context, item workunit.InputItem) *workunit.WorkUnit {
			if item.Name == "boom" {
				panic("separator crashed")
			}
			return succeeded(item)
		}),
	}
	report, err := runner.Run(context.Background(), sources.Files{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries := report.Entries()
	if len(entries) != 3 || entries[1].Outcome.Succeeded() || entries[1].Outcome.FailedStage != "panic" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !entries[0].Outcome.Succeeded() || !entries[2].Outcome.Succeeded() {
		t.Fatal("other items must still succeed")
	}
}

func TestRunCancellationFailsUnstartedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran []string
	runner := &batch.Runner{
		Sources:            items("a", "b", "c"),
		PreserveInputOrder: true,
		Pipeline: funcPipeline(func(_ context.Context, item workunit.InputItem) *workunit.WorkUnit {
			ran = append(ran, item.Name)
			cancel()
			return succeeded(item)
		}),
	}
	report, err := runner.Run(ctx, sources.Files{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !slices.Equal(ran, []string{"a"}) {
		t.Fatalf("only the first item should run, ran %v", ran)
	}
	entries := report.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected an entry per item, got %d", len(entries))
	}
	for _, e := range entries[1:] {
		if e.Outcome.Succeeded() || !errors.Is(e.Outcome.Err, context.Canceled) {
			t.Fatalf("unstarted item %s should fail with context.Canceled: %+v", e.Item.Name, e.Outcome)
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	statuses []workunit.Status
	done     []string
	report   *batch.Report
}

func (o *recordingObserver) BatchStarted(batch.BatchInfo) { o.started++ }
func (o *recordingObserver) ItemStatus(_ workunit.InputItem, s workunit.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}
func (o *recordingObserver) ItemDone(e batch.Entry)    { o.done = append(o.done, e.Item.Name) }
func (o *recordingObserver) BatchDone(r *batch.Report) { o.report = r }

func TestRunNotifiesObserver(t *testing.T) {
	f := newFixture(t, []string{"solo.mp4"}, testsupport.ProbeWithAudio(1), testsupport.WithMode(config.ModeStemsOnly))
	obs := &recordingObserver{}
	f.runner.Observer = batch.Observers{obs, batch.NopObserver{}}

	report, err := f.runner.Run(context.Background(), sources.SingleFile{Path: f.inputs[0]})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if obs.started != 1 || obs.report != report || !slices.Equal(obs.done, []string{"solo"}) {
		t.Fatalf("unexpected observer state %+v", obs)
	}
	want := []workunit.Status{
		workunit.StatusExtracting, workunit.StatusSeparating, workunit.StatusRecombining,
		workunit.StatusFinalizing, workunit.StatusSucceeded,
	}
	if !slices.Equal(obs.statuses, want) {
		t.Fatalf("statuses = %v, want %v", obs.statuses, want)
	}
}

func TestAssignNamesResolvesCollisions(t *testing.T) {
	got := batch.AssignNames([]workunit.InputItem{
		{Name: "My Song"}, {Name: "my song"}, {Name: "My Song"}, {Name: ""},
	})
	var names []string
	for _, item := range got {
		names = append(names, item.Name)
	}
	if !slices.Equal(names, []string{"My_Song", "my_song_2", "My_Song_3", "item"}) {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestReportIsImmutable(t *testing.T) {
	entries := []batch.Entry{{
		Item:    workunit.InputItem{Name: "a"},
		Outcome: batch.Outcome{Status: workunit.StatusSucceeded, Outputs: []string{"/out/a/vocals.wav"}},
	}}
	report := batch.NewReport("id", "files", fixedTime, fixedTime, entries, "")
	entries[0].Outcome.Outputs[0] = "mutated"

	copied := report.Entries()
	copied[0].Outcome.Outputs[0] = "mutated again"
	if got := report.Entries()[0].Outcome.Outputs[0]; got != "/out/a/vocals.wav" {
		t.Fatalf("report was mutated: %q", got)
	}
}

func TestRemediationReupload(t *testing.T) {
	outcome := batch.Outcome{
		Status: workunit.StatusSucceeded,
		Deliveries: []workunit.DeliveryRecord{
			{Destination: "b/a/vocals.wav", State: "delivered"},
			{Destination: "b/a/video.webm", State: "permanently_failed"},
		},
	}
	if outcome.Remediation() != batch.RemediationReupload || outcome.UndeliveredCount() != 1 {
		t.Fatalf("expected reupload, got %q", outcome.Remediation())
	}
	report := batch.NewReport("id", "files", fixedTime, fixedTime, []batch.Entry{{Outcome: outcome}}, "")
	if s := report.Summary(); s.Succeeded != 1 || s.NeedsUpload != 1 || report.HasFailures() {
		t.Fatalf("unexpected summary %+v", s)
	}
}
