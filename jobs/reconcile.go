package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/paydesk/paydesk/internal/jobs"
)

// AutoReconcileJob runs the matching engine, typically from the nightly cron.
type AutoReconcileJob struct {
	Engine  reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAutoReconcileJob wires dependencies for the reconcile handler.
func NewAutoReconcileJob(engine reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *AutoReconcileJob {
	return &AutoReconcileJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeAutoReconcile tasks.
func (j *AutoReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("auto reconcile: handler not configured")
	}
	var payload AutoReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeAutoReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Engine.AutoReconcile(ctx, payload.TransactionIDs)
	if err != nil {
		resultErr = err
		return resultErr
	}
	j.logger().Info("auto reconcile run finished",
		slog.Int("processed", report.Processed),
		slog.Int("reconciled", report.Reconciled),
		slog.Int("cheque_matches", report.ChequeMatches),
		slog.Int("transfer_matches", report.TransferMatches),
		slog.Int("amount_matches", report.AmountMatches))
	return nil
}

func (j *AutoReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
