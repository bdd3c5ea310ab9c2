package stages

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"

	"stemsplit/internal/logging"
	"stemsplit/internal/services"
	"stemsplit/internal/sink"
	"stemsplit/internal/stage"
	"stemsplit/internal/workunit"
)

// Publish delivers finalized outputs through the retrying sink. Delivery
// failures are recorded on the work unit and never fail the item.
type Publish struct {
	sink   *sink.Retrying
	logger *slog.Logger
}

// NewPublish constructs the publish stage.
func NewPublish(s *sink.Retrying, logger *slog.Logger) *Publish {
	return &Publish{sink: s, logger: logging.NewComponentLogger(logger, "publish")}
}

func (s *Publish) Name() string            { return "publish" }
func (s *Publish) Status() workunit.Status { return workunit.StatusPublishing }

// HealthCheck reports whether the remote is reachable when it can be probed.
func (s *Publish) HealthCheck(ctx context.Context) stage.Health {
	if err := s.sink.Check(ctx); err != nil {
		return stage.Unhealthy(s.Name(), err.Error())
	}
	return stage.Healthy(s.Name())
}

// Execute implements stage.Handler.
func (s *Publish) Execute(ctx context.Context, wu *workunit.WorkUnit) error {
	batchID, _ := services.BatchIDFromContext(ctx)
	if batchID == "" {
		batchID = "adhoc"
	}
	failed := 0
	for _, out := range wu.Outputs {
		destination := Destination(batchID, wu.Item.Name, out.Path)
		d := s.sink.Publish(ctx, out.Path, destination)
		if !d.Delivered() {
			failed++
		}
		wu.Deliveries = append(wu.Deliveries, workunit.DeliveryRecord{
			LocalPath:   d.LocalPath,
			Destination: d.Destination,
			Attempts:    d.Attempts,
			State:       string(d.State),
			LastErr:     d.LastErr,
		})
	}
	if failed > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "outputs not published", "publish_incomplete",
			logging.Int("failed", failed),
			logging.Int("outputs", len(wu.Outputs)),
			logging.String(logging.FieldErrorHint, "reupload the item"),
		)
	}
	return nil
}

// Destination builds the remote path "<batch id>/<item name>/<file>".
func Destination(batchID, itemName, localPath string) string {
	return path.Join(batchID, itemName, filepath.Base(localPath))
}
