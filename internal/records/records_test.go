package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"stemsplit/internal/batch"
	"stemsplit/internal/config"
	"stemsplit/internal/logging"
	"stemsplit/internal/services"
	"stemsplit/internal/testsupport"
	"stemsplit/internal/workunit"
)

func openTestStore(t *testing.T) (*Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithSQLiteRecords())
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, cfg
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func sampleReport(id string) *batch.Report {
	entries := []batch.Entry{
		{
			Item:     workunit.InputItem{Path: "/in/one.mp4", Name: "one", Seq: 0},
			Started:  t0,
			Finished: t0.Add(time.Minute),
			Outcome: batch.Outcome{
				Status:     workunit.StatusSucceeded,
				OutputDir:  "/out/one",
				Outputs:    []string{"/out/one/vocals.wav", "/out/one/transcript.txt"},
				Transcript: &workunit.Transcription{Degraded: true, Reason: "unclear audio"},
				Deliveries: []workunit.DeliveryRecord{
					{LocalPath: "/out/one/vocals.wav", Destination: id + "/one/vocals.wav", Attempts: 1, State: "delivered"},
					{LocalPath: "/out/one/transcript.txt", Destination: id + "/one/transcript.txt", Attempts: 3, State: "permanently_failed", LastErr: errors.New("503 slow down")},
				},
			},
		},
		{
			Item:     workunit.InputItem{Path: "/in/two.mp4", Name: "two", Seq: 1},
			Started:  t0,
			Finished: t0.Add(2 * time.Second),
			Outcome: batch.Outcome{
				Status:      workunit.StatusFailed,
				FailedStage: "extract",
				Err:         services.Wrap(services.ErrExtraction, "extract", "select audio", "no audio track", nil),
			},
		},
	}
	return batch.NewReport(id, "files:/in/one.mp4 (+1 more)", t0, t0.Add(2*time.Minute), entries, "/out/"+id+".zip")
}

func TestSaveAndLoadReport(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	if err := store.SaveReport(ctx, sampleReport("b1")); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	rec, items, err := store.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if rec.Items != 2 || rec.Succeeded != 1 || rec.Failed != 1 || rec.NeedsUpload != 1 || rec.Bundle != "/out/b1.zip" {
		t.Fatalf("unexpected batch record %+v", rec)
	}
	if !rec.Started.Equal(t0) || !rec.Finished.Equal(t0.Add(2*time.Minute)) {
		t.Fatalf("unexpected timestamps %v %v", rec.Started, rec.Finished)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	one, two := items[0], items[1]
	if one.Remediation != "reupload" || !one.TranscriptDegraded || len(one.Outputs) != 2 || len(one.Deliveries) != 2 {
		t.Fatalf("unexpected first item %+v", one)
	}
	if one.Deliveries[0].State != "permanently_failed" || one.Deliveries[0].LastError != "503 slow down" {
		t.Fatalf("unexpected delivery %+v", one.Deliveries[0])
	}
	if two.Status != "failed" || two.ErrorKind != "extraction" || two.Remediation != "reprocess" || two.FailedStage != "extract" {
		t.Fatalf("unexpected second item %+v", two)
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"old", "new"} {
		report := batch.NewReport(id, "file:x", t0.Add(time.Duration(i)*time.Hour), t0.Add(time.Duration(i)*time.Hour), nil, "")
		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}
	list, err := store.ListBatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestGetBatchByPrefix(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"abc123", "abd456", "abc"} {
		if err := store.SaveReport(ctx, batch.NewReport(id, "file:x", t0, t0, nil, "")); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	if rec, _, err := store.GetBatch(ctx, "abd"); err != nil || rec.ID != "abd456" {
		t.Fatalf("unique prefix: got %+v, %v", rec, err)
	}
	if rec, _, err := store.GetBatch(ctx, "abc"); err != nil || rec.ID != "abc" {
		t.Fatalf("exact id should win: got %+v, %v", rec, err)
	}
	if _, _, err := store.GetBatch(ctx, "ab"); err == nil {
		t.Fatal("expected ambiguity error")
	}
	if _, _, err := store.GetBatch(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecorderWritesIncrementally(t *testing.T) {
	store, _ := openTestStore(t)
	report := sampleReport("live")
	rec := NewRecorder(store, logging.NewNop())

	var obs batch.Observer = rec
	obs.BatchStarted(batch.BatchInfo{ID: "live", Source: report.Source(), Started: t0})
	for _, entry := range report.Entries() {
		obs.ItemDone(entry)
	}

	inFlight, items, err := store.GetBatch(context.Background(), "live")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !inFlight.Finished.IsZero() || len(items) != 2 {
		t.Fatalf("unexpected in-flight state %+v with %d items", inFlight, len(items))
	}

	obs.BatchDone(report)
	done, _, err := store.GetBatch(context.Background(), "live")
	if err != nil || done.Finished.IsZero() || done.Failed != 1 {
		t.Fatalf("unexpected finished state %+v: %v", done, err)
	}
}

func TestRecorderSkipsAfterBatchInsertFailure(t *testing.T) {
	store, _ := openTestStore(t)
	rec := NewRecorder(store, logging.NewNop())
	rec.BatchStarted(batch.BatchInfo{ID: "dup", Source: "file:x", Started: t0})
	rec.BatchStarted(batch.BatchInfo{ID: "dup", Source: "file:x", Started: t0})
	if !rec.failed {
		t.Fatal("duplicate batch id should disable recording")
	}
	rec.ItemDone(sampleReport("dup").Entries()[0])
	_, items, err := store.GetBatch(context.Background(), "dup")
	if err != nil || len(items) != 0 {
		t.Fatalf("no items should be written after failure: %d, %v", len(items), err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	store, cfg := openTestStore(t)
	if err := store.exec(context.Background(), "UPDATE schema_version SET version = ?", 99); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = store.Close()

	if _, err := Open(cfg); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	store, cfg := openTestStore(t)
	if err := store.SaveReport(context.Background(), sampleReport("keep")); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, _, err := reopened.GetBatch(context.Background(), "keep"); err != nil {
		t.Fatalf("GetBatch after reopen: %v", err)
	}
}

func TestOpenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := Open(cfg); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar("SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = '?' AND c = $2"
	if got != want {
		t.Fatalf("rebindDollar = %q, want %q", got, want)
	}
}
