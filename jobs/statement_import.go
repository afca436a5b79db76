package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/paydesk/paydesk/internal/jobs"
	"github.com/paydesk/paydesk/internal/ledger"
	"github.com/paydesk/paydesk/internal/shared"
	"github.com/paydesk/paydesk/internal/statement"
)

type transactionAdder interface {
	Add(ctx context.Context, input ledger.AddBankTransactionInput) (ledger.BankTransaction, error)
}

type reconciler interface {
	AutoReconcile(ctx context.Context, transactionIDs []int64) (ledger.ReconciliationReport, error)
}

type idempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "statement_import"

// StatementImportJob normalizes a statement batch, stores the resulting
// transactions and runs the matching engine over them.
type StatementImportJob struct {
	Transactions transactionAdder
	Cheques      statement.ChequeLookup
	Engine       reconciler
	Idempotency  idempotencyGuard
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

// NewStatementImportJob wires dependencies for the import handler.
func NewStatementImportJob(transactions transactionAdder, cheques statement.ChequeLookup, engine reconciler, idempotency *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatementImportJob {
	job := &StatementImportJob{
		Transactions: transactions,
		Cheques:      cheques,
		Engine:       engine,
		Logger:       logger,
		Metrics:      metrics,
	}
	if idempotency != nil {
		job.Idempotency = idempotency
	}
	return job
}

// Handle processes TaskTypeStatementImport tasks.
func (j *StatementImportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Transactions == nil || j.Engine == nil {
		return errors.New("statement import: handler not configured")
	}
	var payload StatementImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.logger().With(slog.String("batch_id", payload.BatchID), slog.String("profile", payload.Profile))

	profile, ok := statement.ProfileByName(payload.Profile)
	if !ok {
		logger.Error("unknown statement profile")
		return asynq.SkipRetry
	}

	if j.Idempotency != nil && payload.BatchID != "" {
		if err := j.Idempotency.CheckAndInsert(ctx, payload.BatchID, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.Info("batch already imported, skipping")
				return nil
			}
			return err
		}
	}

	tracker := j.metrics().Track(TaskTypeStatementImport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	resultErr = j.run(ctx, logger, profile, payload)
	if resultErr != nil && j.Idempotency != nil && payload.BatchID != "" {
		// Release the key so a retry can process the batch again.
		if err := j.Idempotency.Delete(ctx, payload.BatchID); err != nil {
			logger.Warn("release idempotency key", slog.Any("error", err))
		}
	}
	return resultErr
}

func (j *StatementImportJob) run(ctx context.Context, logger *slog.Logger, profile statement.Profile, payload StatementImportPayload) error {
	result, err := statement.Normalize(ctx, profile, payload.Rows, j.Cheques)
	if err != nil {
		return err
	}
	for _, skipped := range result.Skipped {
		logger.Warn("statement row skipped", slog.Int("row", skipped.Index), slog.String("reason", skipped.Reason))
	}
	j.Metrics.AddImportedRows("skipped", len(result.Skipped))

	ids := make([]int64, 0, len(result.Candidates))
	for _, candidate := range result.Candidates {
		stored, err := j.Transactions.Add(ctx, candidate.Input())
		if err != nil {
			return err
		}
		ids = append(ids, stored.ID)
	}
	j.Metrics.AddImportedRows("imported", len(ids))

	if len(ids) == 0 {
		logger.Info("statement batch empty after normalization")
		return nil
	}

	report, err := j.Engine.AutoReconcile(ctx, ids)
	if err != nil {
		return err
	}
	logger.Info("statement batch imported",
		slog.Int("rows", len(payload.Rows)),
		slog.Int("stored", len(ids)),
		slog.Int("reconciled", report.Reconciled),
		slog.Int("skipped_rows", len(result.Skipped)))
	return nil
}

func (j *StatementImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *StatementImportJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
