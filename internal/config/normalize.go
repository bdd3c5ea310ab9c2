package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeSeparator()
	c.normalizeTranscription()
	if err := c.normalizeSink(); err != nil {
		return err
	}
	c.normalizeRecords()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Mode = strings.ToLower(strings.TrimSpace(c.Pipeline.Mode))
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = ModeSilentVideo
	}
	c.Pipeline.VideoContainer = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Pipeline.VideoContainer)), ".")
	if c.Pipeline.VideoContainer == "" {
		c.Pipeline.VideoContainer = defaultVideoContainer
	}
	exts := make([]string, 0, len(c.Pipeline.VideoExtensions))
	for _, ext := range c.Pipeline.VideoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.Pipeline.VideoExtensions = exts
	if strings.TrimSpace(c.Pipeline.FFmpegBinary) == "" {
		c.Pipeline.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Pipeline.FFprobeBinary) == "" {
		c.Pipeline.FFprobeBinary = "ffprobe"
	}
}

func (c *Config) normalizeSeparator() {
	c.Separator.Engine = strings.ToLower(strings.TrimSpace(c.Separator.Engine))
	if c.Separator.Engine == "" {
		c.Separator.Engine = EngineSpleeter
	}
	c.Separator.Model = strings.TrimSpace(c.Separator.Model)
	if c.Separator.Model == "" {
		switch c.Separator.Engine {
		case EngineDemucs:
			c.Separator.Model = defaultDemucsModel
		default:
			c.Separator.Model = defaultSpleeterModel
		}
	}
	c.Separator.Binary = strings.TrimSpace(c.Separator.Binary)
	if c.Separator.Binary == "" {
		c.Separator.Binary = c.Separator.Engine
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Binary = strings.TrimSpace(c.Transcription.Binary)
	if c.Transcription.Binary == "" {
		c.Transcription.Binary = defaultTranscriptionBin
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
}

func (c *Config) normalizeSink() error {
	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkNone
	}
	c.Sink.Backoff = strings.ToLower(strings.TrimSpace(c.Sink.Backoff))
	if c.Sink.Backoff == "" {
		c.Sink.Backoff = defaultBackoff
	}
	if strings.TrimSpace(c.Sink.Dir) != "" {
		dir, err := expandPath(c.Sink.Dir)
		if err != nil {
			return fmt.Errorf("sink.dir: %w", err)
		}
		c.Sink.Dir = dir
	}

	if c.S3.AccessKey == "" {
		if value, ok := os.LookupEnv("STEMSPLIT_S3_ACCESS_KEY"); ok {
			c.S3.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.S3.SecretKey == "" {
		if value, ok := os.LookupEnv("STEMSPLIT_S3_SECRET_KEY"); ok {
			c.S3.SecretKey = strings.TrimSpace(value)
		}
	}
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
	c.S3.Prefix = strings.Trim(strings.TrimSpace(c.S3.Prefix), "/")
	if strings.TrimSpace(c.S3.Region) == "" {
		c.S3.Region = defaultS3Region
	}
	return nil
}

func (c *Config) normalizeRecords() {
	c.Records.Driver = strings.ToLower(strings.TrimSpace(c.Records.Driver))
	if c.Records.Driver == "" {
		c.Records.Driver = RecordsSQLite
	}
	c.Records.DatabaseURL = strings.TrimSpace(c.Records.DatabaseURL)
	if c.Records.DatabaseURL == "" {
		if value, ok := os.LookupEnv("STEMSPLIT_DATABASE_URL"); ok {
			c.Records.DatabaseURL = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
