package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/paydesk/paydesk/internal/statement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedger carries tasks that mutate the reconciliation ledger. The
	// worker processes it with a single slot so batches never interleave.
	QueueLedger = "ledger"

	// TaskTypeStatementImport is the task type for importing a bank statement.
	TaskTypeStatementImport = "statement:import"
	// TaskTypeAutoReconcile is the task type for an auto-reconcile run.
	TaskTypeAutoReconcile = "reconcile:auto"
)

// StatementImportPayload carries one parsed statement batch. BatchID doubles
// as the idempotency key: re-delivering the same batch is a no-op.
type StatementImportPayload struct {
	BatchID string          `json:"batch_id"`
	Profile string          `json:"profile"`
	Rows    []statement.Row `json:"rows"`
}

// NewStatementImportTask constructs an Asynq task for a statement batch.
func NewStatementImportTask(payload StatementImportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStatementImport, data), nil
}

// AutoReconcilePayload scopes an auto-reconcile run. Empty IDs means every
// unreconciled debit transaction.
type AutoReconcilePayload struct {
	TransactionIDs []int64 `json:"transaction_ids,omitempty"`
}

// NewAutoReconcileTask constructs an Asynq task for a reconcile run.
func NewAutoReconcileTask(payload AutoReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAutoReconcile, data), nil
}
