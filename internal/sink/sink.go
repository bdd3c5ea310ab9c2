package sink

import (
	"context"
	"log/slog"
	"strings"

	"stemsplit/internal/logging"
	"stemsplit/internal/retry"
)

// Remote uploads one local file to destination.
type Remote interface {
	Publish(ctx context.Context, localPath, destination string) error
}

// State is the terminal state of a delivery.
type State string

const (
	StateDelivered         State = "delivered"
	StatePermanentlyFailed State = "permanently_failed"
)

// Delivery describes the outcome of publishing one artifact.
type Delivery struct {
	LocalPath   string
	Destination string
	Attempts    int
	State       State
	LastErr     error
}

// Delivered reports whether the artifact reached the remote.
func (d Delivery) Delivered() bool {
	return d.State == StateDelivered
}

// Retrying publishes through a Remote under a retry policy.
type Retrying struct {
	remote Remote
	policy retry.Policy
	logger *slog.Logger
}

// NewRetrying wraps remote with policy. A nil Classify on policy defaults to Classify.
func NewRetrying(remote Remote, policy retry.Policy, logger *slog.Logger) *Retrying {
	if policy.Classify == nil {
		policy.Classify = Classify
	}
	return &Retrying{
		remote: remote,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "sink"),
	}
}

// Publish uploads localPath to destination, retrying transient failures.
// The result is always a terminal Delivery.
func (r *Retrying) Publish(ctx context.Context, localPath, destination string) Delivery {
	destination = strings.TrimLeft(destination, "/")
	delivery := Delivery{LocalPath: localPath, Destination: destination}
	logger := logging.WithContext(ctx, r.logger)

	outcome := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := r.remote.Publish(ctx, localPath, destination)
		if err != nil {
			logger.Debug("publish attempt failed",
				logging.String("destination", destination),
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
		}
		return err
	})

	delivery.Attempts = outcome.Attempts
	if outcome.Err == nil {
		delivery.State = StateDelivered
		logger.Info("artifact published",
			logging.String("destination", destination),
			logging.Int("attempts", outcome.Attempts),
			logging.String(logging.FieldEventType, "sink_delivered"),
		)
		return delivery
	}

	delivery.State = StatePermanentlyFailed
	delivery.LastErr = outcome.Err
	logging.WarnWithContext(logger, "artifact publish failed", "sink_failed",
		logging.String("destination", destination),
		logging.Int("attempts", outcome.Attempts),
		logging.String("class", outcome.Class.String()),
		logging.Error(outcome.Err),
		logging.String(logging.FieldErrorHint, "rerun with stemsplit process to reupload"),
		logging.String(logging.FieldImpact, "output kept locally but not published"),
	)
	return delivery
}

// Checker is implemented by remotes that can verify connectivity up front.
type Checker interface {
	Check(ctx context.Context) error
}

// Check probes the remote when it implements Checker.
func (r *Retrying) Check(ctx context.Context) error {
	if checker, ok := r.remote.(Checker); ok {
		return checker.Check(ctx)
	}
	return nil
}
