package stage

import (
	"context"

	"stemsplit/internal/workunit"
)

// Handler describes the contract the pipeline runner needs from each stage.
type Handler interface {
	// Name is the short stage identifier used in logs and failure records.
	Name() string
	// Status is the work unit status the runner enters before Execute.
	Status() workunit.Status
	Execute(context.Context, *workunit.WorkUnit) error
	HealthCheck(context.Context) Health
}
