package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
}

// Pipeline selects what the per-item pipeline produces.
type Pipeline struct {
	// Mode is one of "silent_video", "vocals_video", or "stems_only".
	Mode string `toml:"mode"`
	// VideoContainer is the container for the stripped video (webm, mp4, mkv).
	VideoContainer  string   `toml:"video_container"`
	Transcribe      bool     `toml:"transcribe"`
	UseGPU          bool     `toml:"use_gpu"`
	VideoExtensions []string `toml:"video_extensions"`
	FFmpegBinary    string   `toml:"ffmpeg_binary"`
	FFprobeBinary   string   `toml:"ffprobe_binary"`
}

// Separator configures the external stem separation engine.
type Separator struct {
	Engine string `toml:"engine"`
	Model  string `toml:"model"`
	Binary string `toml:"binary"`
}

// Transcription configures the external speech-to-text command.
type Transcription struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Workflow contains batch scheduling knobs.
type Workflow struct {
	Concurrency        int  `toml:"concurrency"`
	PreserveInputOrder bool `toml:"preserve_input_order"`
	Bundle             bool `toml:"bundle"`
	StaleStagingHours  int  `toml:"stale_staging_hours"`
}

// Sink configures where finalized outputs are published and how delivery is retried.
type Sink struct {
	// Kind is one of "none", "s3", or "dir".
	Kind             string `toml:"kind"`
	MaxAttempts      int    `toml:"max_attempts"`
	Backoff          string `toml:"backoff"`
	BackoffInitialMS int    `toml:"backoff_initial_ms"`
	BackoffMaxMS     int    `toml:"backoff_max_ms"`
	Dir              string `toml:"dir"`
}

// S3 contains connection settings for an S3-compatible object store.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Records configures the batch history store.
type Records struct {
	// Driver is one of "sqlite", "postgres", or "none".
	Driver      string `toml:"driver"`
	DatabaseURL string `toml:"database_url"`
}

// Download contains limits for remote URL sources.
type Download struct {
	TimeoutSeconds int   `toml:"timeout_seconds"`
	MaxBytes       int64 `toml:"max_bytes"`
	MaxAttempts    int   `toml:"max_attempts"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stemsplit.
//
// Configuration sections by subsystem:
//   - Paths: staging, output, and log directories
//   - Pipeline: output mode, container, transcription toggle, device
//   - Separator / Transcription: external model commands
//   - Workflow: batch concurrency, report ordering, bundling
//   - Sink / S3: publishing destination and retry policy
//   - Records: batch history database
//   - Download: remote source limits
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Separator     Separator     `toml:"separator"`
	Transcription Transcription `toml:"transcription"`
	Workflow      Workflow      `toml:"workflow"`
	Sink          Sink          `toml:"sink"`
	S3            S3            `toml:"s3"`
	Records       Records       `toml:"records"`
	Download      Download      `toml:"download"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stemsplit.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the staging, output, and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir}
	if c.Sink.Kind == SinkDir {
		dirs = append(dirs, c.Sink.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RecordsPath returns the SQLite database path used when records.driver is sqlite.
func (c *Config) RecordsPath() string {
	return filepath.Join(c.Paths.LogDir, "records.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
