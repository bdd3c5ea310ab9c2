package sources

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/retry"
	"stemsplit/internal/services"
	"stemsplit/internal/testsupport"
	"stemsplit/internal/workunit"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestProvider(t *testing.T) (*Provider, *guard.Guard) {
	t.Helper()
	g := guard.New(logging.NewNop())
	p := &Provider{
		Extensions: []string{".mp4", ".mkv"},
		WorkDir:    t.TempDir(),
		Retry:      retry.Policy{MaxAttempts: 3, Classify: classifyDownload, Sleep: noSleep},
		Logger:     logging.NewNop(),
	}
	return p.WithGuard(g), g
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(entries[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.zip")
	if err := os.WriteFile(path, zipBytes(t, entries), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseNames(items []workunit.InputItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, filepath.Base(item.Path))
	}
	return out
}

func TestListLocalFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "b-side.mp4")
	b := filepath.Join(dir, "a-side.mkv")
	testsupport.WriteFile(t, a, 8)
	testsupport.WriteFile(t, b, 8)
	p, _ := newTestProvider(t)

	items, err := p.List(context.Background(), Files{Paths: []string{a, b}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].Path != a || items[1].Seq != 1 || items[0].Name != "b-side" {
		t.Fatalf("unexpected items %+v", items)
	}

	single, err := p.List(context.Background(), SingleFile{Path: b})
	if err != nil || len(single) != 1 || single[0].Name != "a-side" {
		t.Fatalf("unexpected single item %+v: %v", single, err)
	}
}

func TestListMissingFile(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.List(context.Background(), SingleFile{Path: filepath.Join(t.TempDir(), "nope.mp4")})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	_, err = p.List(context.Background(), Files{})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable for empty list, got %v", err)
	}
}

func TestListArchiveFiltersAndCleansUp(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"one.mp4":            "video-one",
		"notes.txt":          "ignore me",
		"nested/two.MKV":     "video-two",
		"__MACOSX/._one.mp4": "resource fork",
	})
	p, g := newTestProvider(t)

	items, err := p.List(context.Background(), Archive{Path: archive})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := baseNames(items); !slices.Equal(got, []string{"two.MKV", "one.mp4"}) {
		t.Fatalf("unexpected entries %v", got)
	}
	data, err := os.ReadFile(items[1].Path)
	if err != nil || string(data) != "video-one" {
		t.Fatalf("unexpected extracted content %q: %v", data, err)
	}

	g.Dispose()
	testsupport.AssertEmptyDir(t, p.WorkDir)
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("source archive must be untouched: %v", err)
	}
}

func TestListArchiveCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(path, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, _ := newTestProvider(t)
	_, err := p.List(context.Background(), Archive{Path: path})
	if !errors.Is(err, services.ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
}

func TestListArchiveRejectsEscapingEntries(t *testing.T) {
	archive := writeZip(t, map[string]string{"../escape.mp4": "evil"})
	p, _ := newTestProvider(t)
	_, err := p.List(context.Background(), Archive{Path: archive})
	if !errors.Is(err, services.ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(p.WorkDir, "escape.mp4")); !os.IsNotExist(statErr) {
		t.Fatal("escaping entry must not be written")
	}
}

func TestListArchiveHonorsMaxBytes(t *testing.T) {
	archive := writeZip(t, map[string]string{"a.mp4": "0123456789", "b.mp4": "0123456789"})
	p, _ := newTestProvider(t)
	p.MaxBytes = 15
	_, err := p.List(context.Background(), Archive{Path: archive})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestListRemoteZipRetriesTransientFailures(t *testing.T) {
	payload := zipBytes(t, map[string]string{"clip.mp4": "video"})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	p, g := newTestProvider(t)
	p.Client = srv.Client()
	items, err := p.List(context.Background(), RemoteURL{URL: srv.URL + "/videos.zip"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", hits.Load())
	}
	if got := baseNames(items); !slices.Equal(got, []string{"clip.mp4"}) {
		t.Fatalf("unexpected items %v", got)
	}
	g.Dispose()
	testsupport.AssertEmptyDir(t, p.WorkDir)
}

func TestListRemoteNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p, _ := newTestProvider(t)
	p.Client = srv.Client()
	_, err := p.List(context.Background(), RemoteURL{URL: srv.URL + "/missing.zip"})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("404 should not be retried, got %d requests", hits.Load())
	}
}

func TestListRemoteSingleVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a zip, just frames"))
	}))
	defer srv.Close()

	p, _ := newTestProvider(t)
	p.Client = srv.Client()
	items, err := p.List(context.Background(), RemoteURL{URL: srv.URL + "/show/episode.mkv"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Name != "episode" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestListRemoteRejectsOversizedDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	p, _ := newTestProvider(t)
	p.Client = srv.Client()
	p.MaxBytes = 16
	_, err := p.List(context.Background(), RemoteURL{URL: srv.URL + "/big.mp4"})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestListRemoteRejectsBadURL(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.List(context.Background(), RemoteURL{URL: "ftp://example.com/a.zip"})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestListManifest(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "clips", "intro.mp4"), 4)
	if err := os.WriteFile(filepath.Join(dir, "more.zip"), zipBytes(t, map[string]string{"outro.mkv": "v"}), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := filepath.Join(dir, "inputs.yaml")
	doc := "inputs:\n  - path: clips/intro.mp4\n  - archive: more.zip\n"
	if err := os.WriteFile(manifest, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	p, _ := newTestProvider(t)
	items, err := p.List(context.Background(), Manifest{Path: manifest})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := baseNames(items); !slices.Equal(got, []string{"intro.mp4", "outro.mkv"}) {
		t.Fatalf("unexpected items %v", got)
	}
	if items[1].Seq != 1 {
		t.Fatalf("items should be numbered across entries: %+v", items)
	}
}

func TestParseManifestValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no inputs", "inputs: []\n"},
		{"unknown key", "inputs:\n  - file: a.mp4\n"},
		{"two kinds", "inputs:\n  - path: a.mp4\n    url: https://example.com/a.mp4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFromArgs(t *testing.T) {
	src, err := FromArgs([]string{"a.mp4"}, "", "", "")
	if err != nil || src != (SingleFile{Path: "a.mp4"}) {
		t.Fatalf("unexpected source %#v: %v", src, err)
	}
	src, err = FromArgs(nil, "", "https://example.com/v.zip", "")
	if err != nil || src.Describe() != "url:https://example.com/v.zip" {
		t.Fatalf("unexpected source %#v: %v", src, err)
	}
	if _, err := FromArgs([]string{"a.mp4"}, "b.zip", "", ""); err == nil {
		t.Fatal("expected error for mixed inputs")
	}
	if _, err := FromArgs(nil, "", "", ""); err == nil {
		t.Fatal("expected error for no inputs")
	}
}

func TestListHonorsCanceledContext(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.List(ctx, SingleFile{Path: "whatever.mp4"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
