package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"stemsplit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The directories exist on return. Records are disabled unless an option
// enables them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Records.Driver = config.RecordsNone
	cfgVal.Sink.BackoffInitialMS = 0
	cfgVal.Sink.BackoffMaxMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMode sets the pipeline output mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Mode = mode
	}
}

// WithTranscription enables the transcription stage.
func WithTranscription() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Transcribe = true
	}
}

// WithDirSink publishes into a directory under the test base dir.
func WithDirSink() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sink.Kind = config.SinkDir
		b.cfg.Sink.Dir = filepath.Join(b.baseDir, "published")
	}
}

// WithSQLiteRecords enables the SQLite records store under the log dir.
func WithSQLiteRecords() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Records.Driver = config.RecordsSQLite
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "spleeter"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
