package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"stemsplit/internal/config"
	"stemsplit/internal/guard"
	"stemsplit/internal/logging"
	"stemsplit/internal/media/ffmpeg"
	"stemsplit/internal/media/ffprobe"
	"stemsplit/internal/retry"
	"stemsplit/internal/services"
	"stemsplit/internal/sink"
	"stemsplit/internal/testsupport"
	"stemsplit/internal/transcriber"
	"stemsplit/internal/workunit"
)

func newUnit(t *testing.T, name string) *workunit.WorkUnit {
	t.Helper()
	base := t.TempDir()
	source := filepath.Join(base, name+".mp4")
	testsupport.WriteFile(t, source, 64)
	workDir := filepath.Join(base, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}
	g := guard.New(logging.NewNop())
	g.Register(workDir)
	wu := workunit.New(workunit.InputItem{Path: source, Name: name}, g)
	wu.WorkDir = workDir
	return wu
}

func fakeTool(w *testsupport.FFmpegWriter) *ffmpeg.Tool {
	tool := ffmpeg.New("ffmpeg")
	tool.WithCommandRunner(w.Run)
	return tool
}

func TestExtractRegistersAudio(t *testing.T) {
	writer := &testsupport.FFmpegWriter{}
	wu := newUnit(t, "clip")
	e := NewExtract(fakeTool(writer), "ffprobe", config.ModeSilentVideo, "", logging.NewNop())
	e.WithProbe(testsupport.ProbeWithAudio(1))

	if err := e.Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	raw, ok := wu.Artifact(workunit.KindRawAudio, "")
	if !ok || raw.Path != filepath.Join(wu.WorkDir, "audio.wav") {
		t.Fatalf("unexpected raw audio artifact: %+v", wu.Artifacts)
	}
	if !slices.Contains(wu.Guard.Tracked(), raw.Path) {
		t.Fatal("raw audio should be tracked by the guard")
	}
	args := strings.Join(writer.Calls[0], " ")
	if !strings.Contains(args, "-ac 1 -ar 16000") {
		t.Fatalf("expected speech profile, got %q", args)
	}
}

func TestExtractUsesFidelityForVocalsVideo(t *testing.T) {
	writer := &testsupport.FFmpegWriter{}
	wu := newUnit(t, "clip")
	e := NewExtract(fakeTool(writer), "ffprobe", config.ModeVocalsVideo, "", logging.NewNop())
	e.WithProbe(testsupport.ProbeWithAudio(1))
	if err := e.Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if args := strings.Join(writer.Calls[0], " "); !strings.Contains(args, "-ac 2 -ar 44100") {
		t.Fatalf("expected fidelity profile, got %q", args)
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name  string
		probe ProbeFunc
		fail  func([]string) error
	}{
		{"no audio track", testsupport.ProbeWithAudio(0), nil},
		{"probe error", func(context.Context, string) (ffprobe.Result, error) {
			return ffprobe.Result{}, errors.New("invalid data found")
		}, nil},
		{"ffmpeg error", testsupport.ProbeWithAudio(1), func([]string) error { return errors.New("exit status 1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wu := newUnit(t, "clip")
			e := NewExtract(fakeTool(&testsupport.FFmpegWriter{Fail: tt.fail}), "ffprobe", config.ModeSilentVideo, "", logging.NewNop())
			e.WithProbe(tt.probe)
			err := e.Execute(context.Background(), wu)
			if !errors.Is(err, services.ErrExtraction) {
				t.Fatalf("expected ErrExtraction, got %v", err)
			}
		})
	}
}

func TestSeparateRegistersStems(t *testing.T) {
	wu := newUnit(t, "clip")
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindRawAudio, Path: filepath.Join(wu.WorkDir, "audio.wav")})
	s := NewSeparate(&testsupport.FakeSeparator{}, logging.NewNop())

	if err := s.Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	stems := wu.ArtifactsOf(workunit.KindStem)
	if len(stems) != 2 || stems[0].Label != "vocals" {
		t.Fatalf("unexpected stems: %+v", stems)
	}
	tracked := wu.Guard.Tracked()
	for _, stem := range stems {
		if !slices.Contains(tracked, stem.Path) {
			t.Fatalf("stem %s not tracked", stem.Path)
		}
	}
}

func TestSeparateFailures(t *testing.T) {
	tests := []struct {
		name string
		sep  *testsupport.FakeSeparator
	}{
		{"engine error", &testsupport.FakeSeparator{Err: errors.New("model weights missing")}},
		{"no stems", &testsupport.FakeSeparator{Stems: []string{}}},
		{"no vocals", &testsupport.FakeSeparator{Stems: []string{"drums"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wu := newUnit(t, "clip")
			wu.AddArtifact(workunit.Artifact{Kind: workunit.KindRawAudio, Path: filepath.Join(wu.WorkDir, "audio.wav")})
			err := NewSeparate(tt.sep, logging.NewNop()).Execute(context.Background(), wu)
			if !errors.Is(err, services.ErrModel) {
				t.Fatalf("expected ErrModel, got %v", err)
			}
		})
	}
}

func withVocals(t *testing.T, wu *workunit.WorkUnit) {
	t.Helper()
	path := filepath.Join(wu.WorkDir, "stems", "vocals.wav")
	testsupport.WriteFile(t, path, 16)
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindStem, Path: path, Label: "vocals"})
}

func TestTranscribeWritesTranscript(t *testing.T) {
	wu := newUnit(t, "clip")
	withVocals(t, wu)
	s := NewTranscribe(&testsupport.FakeTranscriber{Result: transcriber.Result{Text: "hello there"}}, logging.NewNop())

	if err := s.Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	artifact, ok := wu.Artifact(workunit.KindTranscript, "")
	if !ok {
		t.Fatal("expected transcript artifact")
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil || strings.TrimSpace(string(data)) != "hello there" {
		t.Fatalf("unexpected transcript: %q %v", data, err)
	}
	if wu.Transcript == nil || wu.Transcript.Degraded {
		t.Fatalf("unexpected transcription state: %+v", wu.Transcript)
	}
}

func TestTranscribeDegradesOnUnavailableService(t *testing.T) {
	wu := newUnit(t, "clip")
	withVocals(t, wu)
	unavailable := services.Wrap(services.ErrTranscriptionUnavailable, "transcribe", "run whisperx", "timed out", nil)
	s := NewTranscribe(&testsupport.FakeTranscriber{Err: unavailable}, logging.NewNop())

	if err := s.Execute(context.Background(), wu); err != nil {
		t.Fatalf("degraded transcription must not fail the item: %v", err)
	}
	if wu.Transcript == nil || !wu.Transcript.Degraded || !strings.HasPrefix(wu.Transcript.Reason, "service unavailable") {
		t.Fatalf("expected degraded transcript, got %+v", wu.Transcript)
	}
	artifact, _ := wu.Artifact(workunit.KindTranscript, "")
	data, _ := os.ReadFile(artifact.Path)
	if !strings.Contains(string(data), "transcription degraded") {
		t.Fatalf("expected diagnostic text, got %q", data)
	}
}

func TestTranscribeDegradesOnUnclearAudio(t *testing.T) {
	wu := newUnit(t, "clip")
	withVocals(t, wu)
	fake := &testsupport.FakeTranscriber{Result: transcriber.Result{Degraded: true, Reason: transcriber.ReasonUnclearAudio}}
	if err := NewTranscribe(fake, logging.NewNop()).Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if wu.Transcript.Reason != transcriber.ReasonUnclearAudio {
		t.Fatalf("unexpected reason %q", wu.Transcript.Reason)
	}
}

func TestRecombineModes(t *testing.T) {
	tests := []struct {
		mode     string
		kind     workunit.ArtifactKind
		wantFile string
		calls    int
	}{
		{config.ModeVocalsVideo, workunit.KindVocalsVideo, "clip_vocals.mp4", 1},
		{config.ModeSilentVideo, workunit.KindSilentVideo, "clip_silent.webm", 1},
		{config.ModeStemsOnly, "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			writer := &testsupport.FFmpegWriter{}
			wu := newUnit(t, "clip")
			withVocals(t, wu)
			s := NewRecombine(fakeTool(writer), tt.mode, "webm", logging.NewNop())
			if err := s.Execute(context.Background(), wu); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if writer.CallCount() != tt.calls {
				t.Fatalf("expected %d ffmpeg calls, got %d", tt.calls, writer.CallCount())
			}
			if tt.kind == "" {
				return
			}
			artifact, ok := wu.Artifact(tt.kind, "")
			if !ok || filepath.Base(artifact.Path) != tt.wantFile {
				t.Fatalf("unexpected artifact %+v", artifact)
			}
		})
	}
}

func TestRecombineFailureIsMux(t *testing.T) {
	writer := &testsupport.FFmpegWriter{Fail: func([]string) error { return errors.New("codec not found") }}
	wu := newUnit(t, "clip")
	withVocals(t, wu)
	err := NewRecombine(fakeTool(writer), config.ModeSilentVideo, "webm", logging.NewNop()).Execute(context.Background(), wu)
	if !errors.Is(err, services.ErrMux) {
		t.Fatalf("expected ErrMux, got %v", err)
	}
	if _, ok := wu.Artifact(workunit.KindSilentVideo, ""); !ok {
		t.Fatal("partial output should still be registered for cleanup")
	}
}

func TestFinalizeMovesKeptArtifacts(t *testing.T) {
	outputDir := t.TempDir()
	wu := newUnit(t, "clip")
	raw := filepath.Join(wu.WorkDir, "audio.wav")
	testsupport.WriteFile(t, raw, 8)
	wu.AddArtifact(workunit.Artifact{Kind: workunit.KindRawAudio, Path: raw})
	withVocals(t, wu)

	stale := filepath.Join(outputDir, "clip", "old.wav")
	testsupport.WriteFile(t, stale, 4)

	s := NewFinalize(outputDir, logging.NewNop())
	if err := s.Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := testsupport.ListFiles(t, filepath.Join(outputDir, "clip")); !slices.Equal(got, []string{"vocals.wav"}) {
		t.Fatalf("unexpected outputs: %v", got)
	}
	tracked := wu.Guard.Tracked()
	if !slices.Contains(tracked, raw) {
		t.Fatal("raw audio should remain tracked for disposal")
	}
	if slices.Contains(tracked, filepath.Join(outputDir, "clip")) {
		t.Fatal("item output dir should be released after finalize")
	}
	if len(wu.Outputs) != 1 || wu.OutputDir != filepath.Join(outputDir, "clip") {
		t.Fatalf("unexpected outputs %+v in %s", wu.Outputs, wu.OutputDir)
	}
}

func TestFinalizeReRegistersOnMoveFailure(t *testing.T) {
	outputDir := t.TempDir()
	previous := filepath.Join(outputDir, "clip", "vocals.wav")
	testsupport.WriteFile(t, previous, 4)

	wu := newUnit(t, "clip")
	withVocals(t, wu)
	s := NewFinalize(outputDir, logging.NewNop())
	s.move = func(string, string) error { return errors.New("disk full") }

	if err := s.Execute(context.Background(), wu); err == nil {
		t.Fatal("expected finalize error")
	}
	vocals, _ := wu.Artifact(workunit.KindStem, "vocals")
	tracked := wu.Guard.Tracked()
	if !slices.Contains(tracked, vocals.Path) {
		t.Fatal("artifact should be re-registered after a failed move")
	}
	if slices.Contains(tracked, filepath.Join(outputDir, "clip")) {
		t.Fatal("previous item output dir must not be handed to the guard")
	}

	wu.Guard.Dispose()
	if got := testsupport.ListFiles(t, outputDir); !slices.Equal(got, []string{filepath.Join("clip", "vocals.wav")}) {
		t.Fatalf("previous outputs should survive a failed rerun, got %v", got)
	}
}

func TestFinalizeReplacesPreviousOutputsAfterDispose(t *testing.T) {
	outputDir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(outputDir, "clip", "old.wav"), 4)

	wu := newUnit(t, "clip")
	withVocals(t, wu)
	if err := NewFinalize(outputDir, logging.NewNop()).Execute(context.Background(), wu); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wu.Guard.Dispose()
	if got := testsupport.ListFiles(t, outputDir); !slices.Equal(got, []string{filepath.Join("clip", "vocals.wav")}) {
		t.Fatalf("output dir should hold only the new item outputs, got %v", got)
	}
	if wu.Outputs[0].Path != filepath.Join(outputDir, "clip", "vocals.wav") {
		t.Fatalf("unexpected output path %s", wu.Outputs[0].Path)
	}
}

type countingRemote struct {
	fail  error
	calls int
}

func (r *countingRemote) Publish(context.Context, string, string) error {
	r.calls++
	return r.fail
}

func TestPublishRecordsDeliveries(t *testing.T) {
	wu := newUnit(t, "clip")
	out := filepath.Join(t.TempDir(), "vocals.wav")
	testsupport.WriteFile(t, out, 4)
	wu.Outputs = []workunit.Artifact{{Kind: workunit.KindStem, Path: out, Label: "vocals"}}

	remote := &countingRemote{fail: services.Wrap(services.ErrSinkPermanent, "publish", "upload", "denied", nil)}
	policy := retry.Policy{MaxAttempts: 3, Sleep: func(context.Context, time.Duration) error { return nil }}
	p := NewPublish(sink.NewRetrying(remote, policy, logging.NewNop()), logging.NewNop())

	ctx := services.WithBatchID(context.Background(), "batch-1")
	if err := p.Execute(ctx, wu); err != nil {
		t.Fatalf("publish failures must not fail the item: %v", err)
	}
	if len(wu.Deliveries) != 1 {
		t.Fatalf("expected one delivery, got %+v", wu.Deliveries)
	}
	d := wu.Deliveries[0]
	if d.Delivered() || d.Attempts != 1 || d.Destination != "batch-1/clip/vocals.wav" {
		t.Fatalf("unexpected delivery %+v", d)
	}
}

func TestBuildSelectsStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	deps := Dependencies{Separator: &testsupport.FakeSeparator{}, Transcriber: &testsupport.FakeTranscriber{}}

	names := func(cfg *config.Config, deps Dependencies) []string {
		var out []string
		for _, h := range Build(cfg, deps, logging.NewNop()) {
			out = append(out, h.Name())
		}
		return out
	}

	if got := names(cfg, deps); !slices.Equal(got, []string{"extract", "separate", "recombine", "finalize"}) {
		t.Fatalf("unexpected default stages: %v", got)
	}
	cfg.Pipeline.Transcribe = true
	deps.Sink = sink.NewRetrying(&countingRemote{}, retry.DefaultPolicy(), logging.NewNop())
	if got := names(cfg, deps); !slices.Equal(got, []string{"extract", "separate", "transcribe", "recombine", "finalize", "publish"}) {
		t.Fatalf("unexpected full stages: %v", got)
	}
}
