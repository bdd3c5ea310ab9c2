package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"stemsplit/internal/services"
)

// WhisperX configuration constants.
const (
	UVXCommand     = "uvx"
	DefaultModel   = "small"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"
	BatchSize      = "4"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "float32"
)

// Config captures runtime settings for WhisperX.
type Config struct {
	// Binary is "whisperx" or "uvx"; uvx runs whisperx from a package index.
	Binary   string
	Model    string
	Language string
	CUDA     bool
}

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// WhisperX transcribes audio with the WhisperX CLI.
type WhisperX struct {
	cfg Config
	run CommandRunner
}

// NewWhisperX creates a WhisperX transcriber.
func NewWhisperX(cfg Config) *WhisperX {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "whisperx"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	return &WhisperX{cfg: cfg, run: defaultRunner}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperX) WithCommandRunner(r CommandRunner) {
	if r != nil {
		w.run = r
	}
}

// Commands implements Transcriber.
func (w *WhisperX) Commands() []string {
	return []string{w.cfg.Binary}
}

// Transcribe implements Transcriber.
func (w *WhisperX) Transcribe(ctx context.Context, audioPath, outDir string) (Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "transcribe", "validate input", "Audio path required", nil)
	}
	if outDir == "" {
		outDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if err := w.run(ctx, w.cfg.Binary, w.buildArgs(audioPath, outDir)...); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, services.Wrap(services.ErrTranscriptionUnavailable, "transcribe", "run whisperx", "WhisperX invocation failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	text, err := loadTranscriptText(filepath.Join(outDir, base+".json"))
	if err != nil {
		return Result{}, services.Wrap(services.ErrTranscriptionUnavailable, "transcribe", "read transcript", "WhisperX output missing or unreadable", err)
	}
	if text == "" {
		return Result{Degraded: true, Reason: ReasonUnclearAudio}, nil
	}
	return Result{Text: text}, nil
}

// buildArgs constructs the WhisperX command arguments.
func (w *WhisperX) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 24)
	if filepath.Base(w.cfg.Binary) == UVXCommand {
		if w.cfg.CUDA {
			args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
		} else {
			args = append(args, "--index-url", PypiIndexURL)
		}
		args = append(args, "whisperx")
	}
	args = append(args,
		source,
		"--model", w.cfg.Model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
	)
	if lang := iso2(w.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if w.cfg.CUDA {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

func defaultRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []segment `json:"segments"`
}

// loadTranscriptText loads and concatenates text from a WhisperX JSON file.
func loadTranscriptText(jsonPath string) (string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parse whisperx json: %w", err)
	}
	var parts []string
	for _, seg := range payload.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
