package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"stemsplit/internal/media/ffprobe"
	"stemsplit/internal/separator"
	"stemsplit/internal/transcriber"
)

// FFmpegWriter is an ffmpeg command runner that writes a small file at the
// destination (the last argument) instead of running ffmpeg. Fail, when set,
// decides per source input whether the call errors.
type FFmpegWriter struct {
	mu    sync.Mutex
	Calls [][]string
	Fail  func(args []string) error
}

// Run satisfies ffmpeg.CommandRunner.
func (f *FFmpegWriter) Run(_ context.Context, _ string, args ...string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, append([]string(nil), args...))
	fail := f.Fail
	f.mu.Unlock()
	if fail != nil {
		if err := fail(args); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return errors.New("no arguments")
	}
	return os.WriteFile(args[len(args)-1], []byte("media"), 0o644)
}

// CallCount returns the number of recorded invocations.
func (f *FFmpegWriter) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// ProbeWithAudio returns a probe reporting one video and audioStreams audio streams.
func ProbeWithAudio(audioStreams int) func(context.Context, string) (ffprobe.Result, error) {
	return func(context.Context, string) (ffprobe.Result, error) {
		result := ffprobe.Result{Streams: []ffprobe.Stream{{Index: 0, CodecType: "video"}}}
		for i := range audioStreams {
			result.Streams = append(result.Streams, ffprobe.Stream{Index: i + 1, CodecType: "audio", Channels: 2})
		}
		return result, nil
	}
}

// FakeSeparator writes one WAV per stem name into outDir.
type FakeSeparator struct {
	Stems []string
	Err   error
}

// Separate implements separator.Separator.
func (f *FakeSeparator) Separate(_ context.Context, _ string, outDir string) ([]separator.Stem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	names := f.Stems
	if names == nil {
		names = []string{separator.StemVocals, separator.StemAccompaniment}
	}
	stems := make([]separator.Stem, 0, len(names))
	for _, name := range names {
		path := filepath.Join(outDir, name+".wav")
		if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
			return nil, err
		}
		stems = append(stems, separator.Stem{Name: name, Path: path})
	}
	return stems, nil
}

// Engine implements separator.Separator.
func (f *FakeSeparator) Engine() string { return "fake" }

// Commands implements separator.Separator.
func (f *FakeSeparator) Commands() []string { return nil }

// FakeTranscriber returns a fixed result or error.
type FakeTranscriber struct {
	Result transcriber.Result
	Err    error
}

// Transcribe implements transcriber.Transcriber.
func (f *FakeTranscriber) Transcribe(context.Context, string, string) (transcriber.Result, error) {
	return f.Result, f.Err
}

// Commands implements transcriber.Transcriber.
func (f *FakeTranscriber) Commands() []string { return nil }
