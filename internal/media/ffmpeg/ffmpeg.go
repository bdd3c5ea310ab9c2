package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// AudioProfile describes the PCM layout of an extracted audio file.
type AudioProfile struct {
	SampleRate int
	Channels   int
}

var (
	// SpeechProfile suits separation and transcription models.
	SpeechProfile = AudioProfile{SampleRate: 16000, Channels: 1}
	// FidelityProfile keeps the source fidelity for stems that are muxed back onto video.
	FidelityProfile = AudioProfile{SampleRate: 44100, Channels: 2}
)

// Tool wraps an ffmpeg binary.
type Tool struct {
	binary string
	run    CommandRunner
}

// New constructs a Tool for binary, defaulting to "ffmpeg".
func New(binary string) *Tool {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Tool{binary: binary, run: defaultRunner}
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *Tool) WithCommandRunner(r CommandRunner) {
	if t != nil && r != nil {
		t.run = r
	}
}

// Binary returns the configured ffmpeg command.
func (t *Tool) Binary() string {
	return t.binary
}

// ExtractAudio writes the selected audio stream of src to dest as PCM WAV.
func (t *Tool) ExtractAudio(ctx context.Context, src, mapSpec, dest string, profile AudioProfile) error {
	if err := t.run(ctx, t.binary, ExtractArgs(src, mapSpec, dest, profile)...); err != nil {
		return fmt.Errorf("ffmpeg extract: %w", err)
	}
	return nil
}

// MuxVocals copies the video frames of video and pairs them with audio.
func (t *Tool) MuxVocals(ctx context.Context, video, audio, dest string) error {
	if err := t.run(ctx, t.binary, MuxArgs(video, audio, dest)...); err != nil {
		return fmt.Errorf("ffmpeg mux: %w", err)
	}
	return nil
}

// StripAudio writes video without any audio streams into the given container.
func (t *Tool) StripAudio(ctx context.Context, video, dest, container string) error {
	if err := t.run(ctx, t.binary, StripArgs(video, dest, container)...); err != nil {
		return fmt.Errorf("ffmpeg strip audio: %w", err)
	}
	return nil
}

// ExtractArgs builds the ffmpeg arguments for audio extraction.
func ExtractArgs(src, mapSpec, dest string, profile AudioProfile) []string {
	if strings.TrimSpace(mapSpec) == "" {
		mapSpec = "0:a:0"
	}
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-map", mapSpec,
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(profile.Channels),
		"-ar", strconv.Itoa(profile.SampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}

// MuxArgs builds the ffmpeg arguments that replace a video's audio with audio.
func MuxArgs(video, audio, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		dest,
	}
}

// StripArgs builds the ffmpeg arguments that drop every audio stream.
func StripArgs(video, dest, container string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-map", "0:v:0",
		"-an",
		"-c:v", VideoCodec(container),
		dest,
	}
}

// VideoCodec returns the video encoder for a container. Matroska accepts any
// source codec so frames are copied.
func VideoCodec(container string) string {
	switch strings.ToLower(strings.TrimPrefix(container, ".")) {
	case "webm":
		return "libvpx-vp9"
	case "mp4":
		return "libx264"
	default:
		return "copy"
	}
}

func defaultRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
