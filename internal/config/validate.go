package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSeparator(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	if err := c.validateRecords(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.StagingDir == c.Paths.OutputDir {
		return errors.New("paths.staging_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Mode {
	case ModeSilentVideo, ModeVocalsVideo, ModeStemsOnly:
	default:
		return fmt.Errorf("pipeline.mode: unsupported value %q (want %s, %s, or %s)", c.Pipeline.Mode, ModeSilentVideo, ModeVocalsVideo, ModeStemsOnly)
	}
	switch c.Pipeline.VideoContainer {
	case "webm", "mp4", "mkv":
	default:
		return fmt.Errorf("pipeline.video_container: unsupported value %q", c.Pipeline.VideoContainer)
	}
	if len(c.Pipeline.VideoExtensions) == 0 {
		return errors.New("pipeline.video_extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateSeparator() error {
	switch c.Separator.Engine {
	case EngineSpleeter, EngineDemucs:
		return nil
	default:
		return fmt.Errorf("separator.engine: unsupported value %q", c.Separator.Engine)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Concurrency < 1 {
		return errors.New("workflow.concurrency must be at least 1")
	}
	if c.Workflow.StaleStagingHours < 0 {
		return errors.New("workflow.stale_staging_hours must be non-negative")
	}
	return nil
}

func (c *Config) validateSink() error {
	if c.Sink.MaxAttempts < 1 {
		return errors.New("sink.max_attempts must be at least 1")
	}
	switch c.Sink.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("sink.backoff: unsupported value %q", c.Sink.Backoff)
	}
	if c.Sink.BackoffInitialMS < 0 || c.Sink.BackoffMaxMS < 0 {
		return errors.New("sink backoff durations must be non-negative")
	}
	switch c.Sink.Kind {
	case SinkNone:
		return nil
	case SinkDir:
		if strings.TrimSpace(c.Sink.Dir) == "" {
			return errors.New("sink.dir must be set when sink.kind is dir")
		}
		return nil
	case SinkS3:
		if c.S3.Endpoint == "" {
			return errors.New("s3.endpoint must be set when sink.kind is s3")
		}
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket must be set when sink.kind is s3")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return errors.New("s3 credentials missing; set s3.access_key/s3.secret_key or STEMSPLIT_S3_ACCESS_KEY/STEMSPLIT_S3_SECRET_KEY")
		}
		return nil
	default:
		return fmt.Errorf("sink.kind: unsupported value %q", c.Sink.Kind)
	}
}

func (c *Config) validateRecords() error {
	switch c.Records.Driver {
	case RecordsSQLite, RecordsNone:
		return nil
	case RecordsPostgres:
		if c.Records.DatabaseURL == "" {
			return errors.New("records.database_url must be set when records.driver is postgres")
		}
		return nil
	default:
		return fmt.Errorf("records.driver: unsupported value %q", c.Records.Driver)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
