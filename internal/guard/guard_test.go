package guard

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"stemsplit/internal/logging"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDisposeRemovesInReverseOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "item")
	audio := filepath.Join(dir, "audio.wav")
	stem := filepath.Join(dir, "stems", "vocals.wav")
	writeFile(t, audio)
	writeFile(t, stem)

	g := New(logging.NewNop())
	g.Register(dir)
	g.Register(audio)
	g.Register(stem)

	result := g.Dispose()
	want := []string{stem, audio, dir}
	if !slices.Equal(result.Removed, want) {
		t.Fatalf("unexpected removal order: got %v want %v", result.Removed, want)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected work dir removed, stat err=%v", err)
	}
}

func TestDisposeToleratesMissingPaths(t *testing.T) {
	g := New(logging.NewNop())
	missing := filepath.Join(t.TempDir(), "gone.wav")
	g.Register(missing)

	result := g.Dispose()
	if len(result.Errors) != 0 {
		t.Fatalf("missing path should not be an error: %v", result.Errors)
	}
	if !slices.Equal(result.Removed, []string{missing}) {
		t.Fatalf("missing path should count as removed: %v", result.Removed)
	}
}

func TestDisposeContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.wav")
	second := filepath.Join(dir, "second.wav")
	writeFile(t, first)
	writeFile(t, second)

	g := New(logging.NewNop())
	g.remove = func(path string) error {
		if path == second {
			return errors.New("device busy")
		}
		return os.RemoveAll(path)
	}
	g.Register(first)
	g.Register(second)

	result := g.Dispose()
	if len(result.Errors) != 1 || result.Errors[0].Path != second {
		t.Fatalf("expected one error for %s, got %+v", second, result.Errors)
	}
	if !slices.Equal(result.Removed, []string{first}) {
		t.Fatalf("expected first to still be removed, got %v", result.Removed)
	}
}

func TestReleasedPathsSurviveDispose(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "vocals.wav")
	scratch := filepath.Join(dir, "audio.wav")
	writeFile(t, kept)
	writeFile(t, scratch)

	g := New(logging.NewNop())
	g.Register(kept)
	g.Register(scratch)
	if !g.Release(kept) {
		t.Fatal("expected release of tracked path to succeed")
	}
	if g.Release(kept) {
		t.Fatal("second release should report untracked")
	}

	g.Dispose()
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("released artifact should survive: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Fatalf("tracked artifact should be removed, stat err=%v", err)
	}
}

func TestDisposeRunsOnce(t *testing.T) {
	g := New(logging.NewNop())
	path := filepath.Join(t.TempDir(), "a.wav")
	writeFile(t, path)
	g.Register(path)

	if got := g.Dispose(); len(got.Removed) != 1 {
		t.Fatalf("expected first dispose to remove one path, got %+v", got)
	}
	if got := g.Dispose(); len(got.Removed) != 0 || len(got.Errors) != 0 {
		t.Fatalf("expected second dispose to be a no-op, got %+v", got)
	}
	if !g.Disposed() {
		t.Fatal("expected guard to report disposed")
	}
}

func TestRegisterAfterDisposeDeletesImmediately(t *testing.T) {
	g := New(logging.NewNop())
	g.Dispose()

	late := filepath.Join(t.TempDir(), "late.wav")
	writeFile(t, late)
	g.Register(late)

	if _, err := os.Stat(late); !os.IsNotExist(err) {
		t.Fatalf("late artifact should be deleted, stat err=%v", err)
	}
	if len(g.Tracked()) != 0 {
		t.Fatalf("disposed guard should track nothing, got %v", g.Tracked())
	}
}

func TestRegisterIgnoresDuplicatesAndBlank(t *testing.T) {
	g := New(nil)
	g.Register("")
	g.Register("/tmp/x/../x/a.wav")
	g.Register("/tmp/x/a.wav")
	if got := g.Tracked(); !slices.Equal(got, []string{"/tmp/x/a.wav"}) {
		t.Fatalf("unexpected tracked paths: %v", got)
	}
}

func TestConcurrentRegister(t *testing.T) {
	dir := t.TempDir()
	g := New(logging.NewNop())
	paths := make([]string, 16)
	for i := range paths {
		paths[i] = filepath.Join(dir, "stem-"+string(rune('a'+i))+".wav")
		writeFile(t, paths[i])
	}
	var wg sync.WaitGroup
	for _, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Register(path)
		}()
	}
	wg.Wait()
	if got := len(g.Tracked()); got != 16 {
		t.Fatalf("expected 16 tracked paths, got %d", got)
	}
	if result := g.Dispose(); len(result.Removed) != 16 {
		t.Fatalf("expected 16 removals, got %d", len(result.Removed))
	}
}
