package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"stemsplit/internal/services"
)

func writeJSONRunner(payload string) CommandRunner {
	return func(_ context.Context, _ string, args ...string) error {
		var source, outDir string
		for i, arg := range args {
			if arg == "--output_dir" {
				outDir = args[i+1]
			}
			if strings.HasSuffix(arg, ".wav") && source == "" {
				source = arg
			}
		}
		base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		return os.WriteFile(filepath.Join(outDir, base+".json"), []byte(payload), 0o644)
	}
}

func TestTranscribeJoinsSegments(t *testing.T) {
	dir := t.TempDir()
	w := NewWhisperX(Config{Language: "eng"})
	var gotArgs []string
	inner := writeJSONRunner(`{"segments":[{"text":" hello "},{"text":""},{"text":"world"}]}`)
	w.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		return inner(ctx, name, args...)
	})

	result, err := w.Transcribe(context.Background(), filepath.Join(dir, "vocals.wav"), dir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello world" || result.Degraded {
		t.Fatalf("unexpected result: %+v", result)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--language en") || !strings.Contains(joined, "--device cpu") {
		t.Fatalf("unexpected args: %q", joined)
	}
	if slices.Contains(gotArgs, "whisperx") {
		t.Fatalf("direct binary should not repeat the tool name: %v", gotArgs)
	}
}

func TestTranscribeEmptyIsDegraded(t *testing.T) {
	dir := t.TempDir()
	w := NewWhisperX(Config{})
	w.WithCommandRunner(writeJSONRunner(`{"segments":[]}`))

	result, err := w.Transcribe(context.Background(), filepath.Join(dir, "vocals.wav"), dir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !result.Degraded || result.Reason != ReasonUnclearAudio {
		t.Fatalf("expected degraded result, got %+v", result)
	}
}

func TestTranscribeFailureIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	w := NewWhisperX(Config{})
	w.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("CUDA out of memory")
	})

	_, err := w.Transcribe(context.Background(), filepath.Join(dir, "vocals.wav"), dir)
	if !errors.Is(err, services.ErrTranscriptionUnavailable) {
		t.Fatalf("expected ErrTranscriptionUnavailable, got %v", err)
	}
}

func TestUVXArgs(t *testing.T) {
	w := NewWhisperX(Config{Binary: "uvx", CUDA: true})
	args := w.buildArgs("/tmp/vocals.wav", "/tmp/out")
	if args[0] != "--index-url" || args[1] != CUDAIndexURL {
		t.Fatalf("expected CUDA index url first, got %v", args)
	}
	if !slices.Contains(args, "whisperx") || !slices.Contains(args, CUDADevice) {
		t.Fatalf("unexpected uvx args: %v", args)
	}
}

func TestISO2(t *testing.T) {
	for code, want := range map[string]string{"eng": "en", "en": "en", "deu": "de", "": "", "???": ""} {
		if got := iso2(code); got != want {
			t.Errorf("iso2(%q) = %q want %q", code, got, want)
		}
	}
}
