package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rollcall-app/rollcall/internal/jobs"
	"github.com/rollcall-app/rollcall/internal/shared"
)

// idempotencyRetention is how long processed request keys are kept before
// the nightly cleanup removes them.
const idempotencyRetention = 48 * time.Hour

// MaintenanceJob handles housekeeping tasks.
type MaintenanceJob struct {
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	metrics     *jobmetrics.Metrics
}

// NewMaintenanceJob constructs the job.
func NewMaintenanceJob(idempotency *shared.IdempotencyStore, logger *slog.Logger) *MaintenanceJob {
	return &MaintenanceJob{idempotency: idempotency, logger: logger, metrics: jobmetrics.NewMetrics(nil)}
}

// HandleIdempotencyCleanup prunes idempotency keys past retention.
func (j *MaintenanceJob) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) (resultErr error) {
	tracker := j.metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.idempotency.Cleanup(ctx, idempotencyRetention); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("idempotency keys cleaned")
	}
	return nil
}
