package sink

import (
	"fmt"
	"log/slog"
	"time"

	"stemsplit/internal/config"
	"stemsplit/internal/retry"
)

// PolicyFor builds the delivery retry policy described by the [sink] section.
func PolicyFor(cfg config.Sink) retry.Policy {
	initial := time.Duration(cfg.BackoffInitialMS) * time.Millisecond
	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Classify:    Classify,
	}
	if cfg.Backoff == "fixed" {
		policy.Backoff = retry.Fixed(initial)
	} else {
		policy.Backoff = retry.Exponential(initial, time.Duration(cfg.BackoffMaxMS)*time.Millisecond)
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = retry.DefaultMaxAttempts
	}
	return policy
}

// FromConfig builds the configured remote wrapped in a retrying sink.
// It returns nil when no sink is configured.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Retrying, error) {
	var remote Remote
	switch cfg.Sink.Kind {
	case config.SinkNone, "":
		return nil, nil
	case config.SinkDir:
		remote = NewDirRemote(cfg.Sink.Dir)
	case config.SinkS3:
		m, err := NewMinioRemote(MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 sink: %w", err)
		}
		remote = m
	default:
		return nil, fmt.Errorf("unsupported sink kind %q", cfg.Sink.Kind)
	}
	return NewRetrying(remote, PolicyFor(cfg.Sink), logger), nil
}
