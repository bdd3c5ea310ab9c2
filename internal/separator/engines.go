package separator

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Spleeter runs the spleeter CLI.
type Spleeter struct {
	opts Options
	run  CommandRunner
}

// NewSpleeter constructs a Spleeter engine.
func NewSpleeter(opts Options) *Spleeter {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "spleeter"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "spleeter:2stems"
	}
	return &Spleeter{opts: opts, run: defaultRunner}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Spleeter) WithCommandRunner(r CommandRunner) {
	if r != nil {
		s.run = r
	}
}

// Engine implements Separator.
func (s *Spleeter) Engine() string { return "spleeter" }

// Commands implements Separator.
func (s *Spleeter) Commands() []string { return []string{s.opts.Binary} }

// Separate implements Separator.
func (s *Spleeter) Separate(ctx context.Context, audioPath, outDir string) ([]Stem, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("spleeter: ensure output dir: %w", err)
	}
	args := []string{"separate", "-p", s.opts.Model, "-o", outDir, audioPath}
	var env []string
	if !s.opts.UseGPU {
		env = append(env, "CUDA_VISIBLE_DEVICES=")
	}
	if err := s.run(ctx, env, s.opts.Binary, args...); err != nil {
		return nil, fmt.Errorf("spleeter: %w", err)
	}
	return finish(outDir)
}

// Demucs runs the demucs CLI in two-stem mode.
type Demucs struct {
	opts Options
	run  CommandRunner
}

// NewDemucs constructs a Demucs engine.
func NewDemucs(opts Options) *Demucs {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "demucs"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "htdemucs"
	}
	return &Demucs{opts: opts, run: defaultRunner}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *Demucs) WithCommandRunner(r CommandRunner) {
	if r != nil {
		d.run = r
	}
}

// Engine implements Separator.
func (d *Demucs) Engine() string { return "demucs" }

// Commands implements Separator.
func (d *Demucs) Commands() []string { return []string{d.opts.Binary} }

// Separate implements Separator.
func (d *Demucs) Separate(ctx context.Context, audioPath, outDir string) ([]Stem, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("demucs: ensure output dir: %w", err)
	}
	device := "cpu"
	if d.opts.UseGPU {
		device = "cuda"
	}
	args := []string{"--two-stems=vocals", "-n", d.opts.Model, "-d", device, "-o", outDir, audioPath}
	if err := d.run(ctx, nil, d.opts.Binary, args...); err != nil {
		return nil, fmt.Errorf("demucs: %w", err)
	}
	return finish(outDir)
}

func finish(outDir string) ([]Stem, error) {
	stems, err := collectStems(outDir)
	if err != nil {
		return nil, err
	}
	if len(stems) == 0 {
		return nil, ErrNoStems
	}
	return stems, nil
}

// New constructs the engine named by engine.
func New(engine string, opts Options) (Separator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", "spleeter":
		return NewSpleeter(opts), nil
	case "demucs":
		return NewDemucs(opts), nil
	default:
		return nil, fmt.Errorf("unsupported separator engine %q", engine)
	}
}
