package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrPaymentNotFound indicates the obligation does not exist.
	ErrPaymentNotFound = errors.New("ledger: payment not found")
	// ErrChequeNotFound indicates the cheque does not exist.
	ErrChequeNotFound = errors.New("ledger: cheque not found")
	// ErrTransactionNotFound indicates the bank transaction does not exist.
	ErrTransactionNotFound = errors.New("ledger: bank transaction not found")
	// ErrEntryNotFound indicates no reconciliation entry exists for the link.
	ErrEntryNotFound = errors.New("ledger: reconciliation entry not found")
)

// Repository is the single persistence boundary for the three entity
// collections. Every public ledger operation commits through one WithTx call
// so a failure leaves no partial cross-entity mutation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	GetCheque(ctx context.Context, id int64) (Cheque, error)
	FindChequeByNumber(ctx context.Context, number string) (Cheque, error)
	FindChequeByPayment(ctx context.Context, paymentID int64) (Cheque, error)
	ListCheques(ctx context.Context, filter ChequeFilter) ([]Cheque, error)

	GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error)
	ListBankTransactions(ctx context.Context, filter BankTransactionFilter) ([]BankTransaction, error)
	FindBankTransactionByCheque(ctx context.Context, chequeID int64) (BankTransaction, error)

	FindActiveEntryByTransaction(ctx context.Context, transactionID int64) (ReconciliationEntry, error)
}

// TxRepository exposes the mutations available inside a transaction.
type TxRepository interface {
	GetPayment(ctx context.Context, id int64) (Payment, error)
	CreatePayment(ctx context.Context, input CreatePaymentInput, state PaymentState) (int64, error)
	UpdatePaymentState(ctx context.Context, id int64, state PaymentState, paidDate *time.Time) error
	UpdatePaymentMethod(ctx context.Context, id int64, method PaymentMethod) error
	SetPaymentChequeRef(ctx context.Context, id int64, chequeID *int64) error
	SetPaymentBankTransactionRef(ctx context.Context, id int64, transactionID *int64) error

	CreatePartialPayment(ctx context.Context, pp PartialPayment) error
	DeletePartialPayment(ctx context.Context, id string) error

	GetCheque(ctx context.Context, id int64) (Cheque, error)
	FindChequeByNumber(ctx context.Context, number string) (Cheque, error)
	FindChequeByPayment(ctx context.Context, paymentID int64) (Cheque, error)
	CreateCheque(ctx context.Context, ch Cheque) (int64, error)
	UpdateChequeState(ctx context.Context, id int64, state ChequeState, clearDate *time.Time) error
	ClearChequePaymentRef(ctx context.Context, id int64) error

	GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error)
	FindBankTransactionByCheque(ctx context.Context, chequeID int64) (BankTransaction, error)
	CreateBankTransaction(ctx context.Context, input AddBankTransactionInput) (int64, error)
	LinkBankTransaction(ctx context.Context, id, paymentID int64) error
	UnlinkBankTransaction(ctx context.Context, id int64) error
	DeleteBankTransaction(ctx context.Context, id int64) error

	CreateReconciliationEntry(ctx context.Context, entry ReconciliationEntry) (int64, error)
	FindActiveEntryByTransaction(ctx context.Context, transactionID int64) (ReconciliationEntry, error)
	MarkEntryReversed(ctx context.Context, id int64, at time.Time) error
}

// Ensure implementation
var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	if err := fn(ctx, &pgTxRepository{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit tx: %w", err)
	}
	return nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const paymentColumns = `id, supplier_id, reference, type, amount, due_date, state, method,
paid_date, cheque_id, petty_cash_movement_id, bank_transaction_id, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.SupplierID, &p.Reference, &p.Type, &p.Amount, &p.DueDate,
		&p.State, &p.Method, &p.PaidDate, &p.ChequeID, &p.PettyCashMovementID,
		&p.BankTransactionID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func getPayment(ctx context.Context, q querier, id int64) (Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if err != nil {
		return Payment{}, err
	}
	partials, err := listPartials(ctx, q, id)
	if err != nil {
		return Payment{}, err
	}
	p.Partials = partials
	return p, nil
}

func listPartials(ctx context.Context, q querier, paymentID int64) ([]PartialPayment, error) {
	rows, err := q.Query(ctx, `SELECT id, payment_id, amount, paid_on, method, reference, recorded_by, created_at
FROM partial_payments WHERE payment_id=$1 ORDER BY created_at, id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PartialPayment
	for rows.Next() {
		var pp PartialPayment
		if err := rows.Scan(&pp.ID, &pp.PaymentID, &pp.Amount, &pp.Date, &pp.Method,
			&pp.Reference, &pp.RecordedBy, &pp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

func (r *pgRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return getPayment(ctx, r.pool, id)
}

func (r *pgRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		conds = append(conds, "state = ANY("+arg(states)+")")
	}
	if filter.SupplierID != 0 {
		conds = append(conds, "supplier_id = "+arg(filter.SupplierID))
	}
	if filter.Method != "" {
		conds = append(conds, "method = "+arg(filter.Method))
	}
	if !filter.DueBefore.IsZero() {
		conds = append(conds, "due_date <= "+arg(filter.DueBefore))
	}
	if !filter.DueAfter.IsZero() {
		conds = append(conds, "due_date >= "+arg(filter.DueAfter))
	}
	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY due_date, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range payments {
		partials, err := listPartials(ctx, r.pool, payments[i].ID)
		if err != nil {
			return nil, err
		}
		payments[i].Partials = partials
	}
	return payments, nil
}

const chequeColumns = `id, number, amount, payee, issue_date, clear_date, state, payment_id, created_at, updated_at`

func scanCheque(row pgx.Row) (Cheque, error) {
	var c Cheque
	err := row.Scan(&c.ID, &c.Number, &c.Amount, &c.Payee, &c.IssueDate, &c.ClearDate,
		&c.State, &c.PaymentID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cheque{}, ErrChequeNotFound
	}
	return c, err
}

func getCheque(ctx context.Context, q querier, id int64) (Cheque, error) {
	return scanCheque(q.QueryRow(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE id=$1`, id))
}

func findChequeByNumber(ctx context.Context, q querier, number string) (Cheque, error) {
	return scanCheque(q.QueryRow(ctx,
		`SELECT `+chequeColumns+` FROM cheques WHERE number=$1 AND state <> $2 ORDER BY id DESC LIMIT 1`,
		number, ChequeCancelled))
}

func findChequeByPayment(ctx context.Context, q querier, paymentID int64) (Cheque, error) {
	return scanCheque(q.QueryRow(ctx,
		`SELECT `+chequeColumns+` FROM cheques WHERE payment_id=$1 AND state <> $2 ORDER BY id DESC LIMIT 1`,
		paymentID, ChequeCancelled))
}

func (r *pgRepository) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	return getCheque(ctx, r.pool, id)
}

func (r *pgRepository) FindChequeByNumber(ctx context.Context, number string) (Cheque, error) {
	return findChequeByNumber(ctx, r.pool, number)
}

func (r *pgRepository) FindChequeByPayment(ctx context.Context, paymentID int64) (Cheque, error) {
	return findChequeByPayment(ctx, r.pool, paymentID)
}

func (r *pgRepository) ListCheques(ctx context.Context, filter ChequeFilter) ([]Cheque, error) {
	query := `SELECT ` + chequeColumns + ` FROM cheques`
	var args []any
	if filter.State != "" {
		args = append(args, filter.State)
		query += " WHERE state = $1"
	}
	query += " ORDER BY issue_date, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cheques []Cheque
	for rows.Next() {
		c, err := scanCheque(rows)
		if err != nil {
			return nil, err
		}
		cheques = append(cheques, c)
	}
	return cheques, rows.Err()
}

const txColumns = `id, occurred_on, description, amount, direction, reconciled, payment_id,
cheque_id, method, origin, reference, created_at, updated_at`

func scanBankTransaction(row pgx.Row) (BankTransaction, error) {
	var t BankTransaction
	err := row.Scan(&t.ID, &t.Date, &t.Description, &t.Amount, &t.Direction, &t.Reconciled,
		&t.PaymentID, &t.ChequeID, &t.Method, &t.Origin, &t.Reference, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankTransaction{}, ErrTransactionNotFound
	}
	return t, err
}

func getBankTransaction(ctx context.Context, q querier, id int64) (BankTransaction, error) {
	return scanBankTransaction(q.QueryRow(ctx,
		`SELECT `+txColumns+` FROM bank_transactions WHERE id=$1`, id))
}

func findBankTransactionByCheque(ctx context.Context, q querier, chequeID int64) (BankTransaction, error) {
	return scanBankTransaction(q.QueryRow(ctx,
		`SELECT `+txColumns+` FROM bank_transactions WHERE cheque_id=$1 ORDER BY id LIMIT 1`, chequeID))
}

func (r *pgRepository) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	return getBankTransaction(ctx, r.pool, id)
}

func (r *pgRepository) FindBankTransactionByCheque(ctx context.Context, chequeID int64) (BankTransaction, error) {
	return findBankTransactionByCheque(ctx, r.pool, chequeID)
}

func (r *pgRepository) ListBankTransactions(ctx context.Context, filter BankTransactionFilter) ([]BankTransaction, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Reconciled != nil {
		conds = append(conds, "reconciled = "+arg(*filter.Reconciled))
	}
	if filter.Direction != "" {
		conds = append(conds, "direction = "+arg(filter.Direction))
	}
	if filter.Origin != "" {
		conds = append(conds, "origin = "+arg(filter.Origin))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "occurred_on >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "occurred_on <= "+arg(filter.To))
	}
	query := `SELECT ` + txColumns + ` FROM bank_transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_on, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []BankTransaction
	for rows.Next() {
		t, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const entryColumns = `id, transaction_id, payment_id, cheque_id, partial_payment_id, rule, matched_at, reversed_at`

func findActiveEntryByTransaction(ctx context.Context, q querier, transactionID int64) (ReconciliationEntry, error) {
	var e ReconciliationEntry
	err := q.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM reconciliation_entries WHERE transaction_id=$1 AND reversed_at IS NULL ORDER BY id DESC LIMIT 1`,
		transactionID).Scan(&e.ID, &e.TransactionID, &e.PaymentID, &e.ChequeID,
		&e.PartialPaymentID, &e.Rule, &e.MatchedAt, &e.ReversedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReconciliationEntry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *pgRepository) FindActiveEntryByTransaction(ctx context.Context, transactionID int64) (ReconciliationEntry, error) {
	return findActiveEntryByTransaction(ctx, r.pool, transactionID)
}

// Transaction repository implementation

type pgTxRepository struct {
	q pgx.Tx
}

func (tx *pgTxRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return getPayment(ctx, tx.q, id)
}

func (tx *pgTxRepository) CreatePayment(ctx context.Context, input CreatePaymentInput, state PaymentState) (int64, error) {
	var id int64
	err := tx.q.QueryRow(ctx, `INSERT INTO payments (supplier_id, reference, type, amount, due_date, state, method, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		input.SupplierID, input.Reference, input.Type, input.Amount, input.DueDate, state, input.Method).Scan(&id)
	return id, err
}

func (tx *pgTxRepository) UpdatePaymentState(ctx context.Context, id int64, state PaymentState, paidDate *time.Time) error {
	_, err := tx.q.Exec(ctx, `UPDATE payments SET state=$1, paid_date=$2, updated_at=NOW() WHERE id=$3`, state, paidDate, id)
	return err
}

func (tx *pgTxRepository) UpdatePaymentMethod(ctx context.Context, id int64, method PaymentMethod) error {
	_, err := tx.q.Exec(ctx, `UPDATE payments SET method=$1, updated_at=NOW() WHERE id=$2`, method, id)
	return err
}

func (tx *pgTxRepository) SetPaymentChequeRef(ctx context.Context, id int64, chequeID *int64) error {
	_, err := tx.q.Exec(ctx, `UPDATE payments SET cheque_id=$1, updated_at=NOW() WHERE id=$2`, chequeID, id)
	return err
}

func (tx *pgTxRepository) SetPaymentBankTransactionRef(ctx context.Context, id int64, transactionID *int64) error {
	_, err := tx.q.Exec(ctx, `UPDATE payments SET bank_transaction_id=$1, updated_at=NOW() WHERE id=$2`, transactionID, id)
	return err
}

func (tx *pgTxRepository) CreatePartialPayment(ctx context.Context, pp PartialPayment) error {
	_, err := tx.q.Exec(ctx, `INSERT INTO partial_payments (id, payment_id, amount, paid_on, method, reference, recorded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		pp.ID, pp.PaymentID, pp.Amount, pp.Date, pp.Method, pp.Reference, pp.RecordedBy)
	return err
}

func (tx *pgTxRepository) DeletePartialPayment(ctx context.Context, id string) error {
	_, err := tx.q.Exec(ctx, `DELETE FROM partial_payments WHERE id=$1`, id)
	return err
}

func (tx *pgTxRepository) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	return getCheque(ctx, tx.q, id)
}

func (tx *pgTxRepository) FindChequeByNumber(ctx context.Context, number string) (Cheque, error) {
	return findChequeByNumber(ctx, tx.q, number)
}

func (tx *pgTxRepository) FindChequeByPayment(ctx context.Context, paymentID int64) (Cheque, error) {
	return findChequeByPayment(ctx, tx.q, paymentID)
}

func (tx *pgTxRepository) CreateCheque(ctx context.Context, ch Cheque) (int64, error) {
	var id int64
	err := tx.q.QueryRow(ctx, `INSERT INTO cheques (number, amount, payee, issue_date, state, payment_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		ch.Number, ch.Amount, ch.Payee, ch.IssueDate, ch.State, ch.PaymentID).Scan(&id)
	return id, err
}

func (tx *pgTxRepository) UpdateChequeState(ctx context.Context, id int64, state ChequeState, clearDate *time.Time) error {
	_, err := tx.q.Exec(ctx, `UPDATE cheques SET state=$1, clear_date=$2, updated_at=NOW() WHERE id=$3`, state, clearDate, id)
	return err
}

func (tx *pgTxRepository) ClearChequePaymentRef(ctx context.Context, id int64) error {
	_, err := tx.q.Exec(ctx, `UPDATE cheques SET payment_id=NULL, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (tx *pgTxRepository) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	return getBankTransaction(ctx, tx.q, id)
}

func (tx *pgTxRepository) FindBankTransactionByCheque(ctx context.Context, chequeID int64) (BankTransaction, error) {
	return findBankTransactionByCheque(ctx, tx.q, chequeID)
}

func (tx *pgTxRepository) CreateBankTransaction(ctx context.Context, input AddBankTransactionInput) (int64, error) {
	var id int64
	err := tx.q.QueryRow(ctx, `INSERT INTO bank_transactions (occurred_on, description, amount, direction, reconciled, payment_id, cheque_id, method, origin, reference, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING id`,
		input.Date, input.Description, input.Amount, input.Direction, input.Reconciled,
		input.PaymentID, input.ChequeID, input.Method, input.Origin, input.Reference).Scan(&id)
	return id, err
}

func (tx *pgTxRepository) LinkBankTransaction(ctx context.Context, id, paymentID int64) error {
	_, err := tx.q.Exec(ctx, `UPDATE bank_transactions SET reconciled=TRUE, payment_id=$1, updated_at=NOW() WHERE id=$2`, paymentID, id)
	return err
}

func (tx *pgTxRepository) UnlinkBankTransaction(ctx context.Context, id int64) error {
	_, err := tx.q.Exec(ctx, `UPDATE bank_transactions SET reconciled=FALSE, payment_id=NULL, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (tx *pgTxRepository) DeleteBankTransaction(ctx context.Context, id int64) error {
	_, err := tx.q.Exec(ctx, `DELETE FROM bank_transactions WHERE id=$1`, id)
	return err
}

func (tx *pgTxRepository) CreateReconciliationEntry(ctx context.Context, entry ReconciliationEntry) (int64, error) {
	var id int64
	err := tx.q.QueryRow(ctx, `INSERT INTO reconciliation_entries (transaction_id, payment_id, cheque_id, partial_payment_id, rule, matched_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		entry.TransactionID, entry.PaymentID, entry.ChequeID, entry.PartialPaymentID,
		entry.Rule, entry.MatchedAt).Scan(&id)
	return id, err
}

func (tx *pgTxRepository) FindActiveEntryByTransaction(ctx context.Context, transactionID int64) (ReconciliationEntry, error) {
	return findActiveEntryByTransaction(ctx, tx.q, transactionID)
}

func (tx *pgTxRepository) MarkEntryReversed(ctx context.Context, id int64, at time.Time) error {
	_, err := tx.q.Exec(ctx, `UPDATE reconciliation_entries SET reversed_at=$1 WHERE id=$2`, at, id)
	return err
}
