package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/paydesk/paydesk/internal/shared"
)

var (
	// ErrAlreadyReconciled indicates the transaction or payment already carries a link.
	ErrAlreadyReconciled = errors.New("ledger: already reconciled")
	// ErrNotReconciled indicates the transaction has no link to undo.
	ErrNotReconciled = errors.New("ledger: transaction is not reconciled")
)

// MatchingEngine is the only component that links and unlinks bank
// transactions, payments and cheques. Each operation commits its mutations to
// the three collections in a single transaction.
type MatchingEngine struct {
	repo   Repository
	audit  *shared.AuditLogger
	cache  *OutstandingCache
	logger *slog.Logger
}

// NewMatchingEngine constructs the engine. Audit logger and cache may be nil.
func NewMatchingEngine(repo Repository, audit *shared.AuditLogger, cache *OutstandingCache, logger *slog.Logger) *MatchingEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchingEngine{repo: repo, audit: audit, cache: cache, logger: logger}
}

// AutoReconcile runs the matching heuristic over the given transactions in
// input order; with no IDs it runs over every unreconciled transaction.
// Priority per transaction: cheque number match, then transfer amount match,
// then amount-only fallback with earliest-due-date tie-break. A matched
// obligation is claimed for the remainder of the batch. Already-reconciled
// transactions are skipped, so re-running a batch changes nothing.
func (e *MatchingEngine) AutoReconcile(ctx context.Context, transactionIDs []int64) (ReconciliationReport, error) {
	txs, err := e.loadBatch(ctx, transactionIDs)
	if err != nil {
		return ReconciliationReport{}, err
	}

	outstanding, err := e.repo.ListPayments(ctx, PaymentFilter{States: OutstandingStates})
	if err != nil {
		return ReconciliationReport{}, err
	}

	report := ReconciliationReport{}
	claimed := make(map[int64]bool)

	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, t := range txs {
			if t.Reconciled || t.Direction != DirectionDebit {
				report.Skipped++
				continue
			}
			report.Processed++

			match, err := e.matchOne(ctx, tx, t, outstanding, claimed)
			if err != nil {
				return err
			}
			if match == nil {
				continue
			}
			claimed[match.PaymentID] = true
			report.Reconciled++
			switch match.Rule {
			case RuleCheque:
				report.ChequeMatches++
			case RuleTransfer:
				report.TransferMatches++
			case RuleAmount:
				report.AmountMatches++
			}
			report.Matches = append(report.Matches, *match)
		}
		return nil
	})
	if err != nil {
		return ReconciliationReport{}, err
	}

	if report.Reconciled > 0 {
		e.invalidate(ctx)
		e.auditRecord(ctx, "reconcile.auto", 0, map[string]any{
			"processed":  report.Processed,
			"reconciled": report.Reconciled,
		})
	}
	return report, nil
}

func (e *MatchingEngine) loadBatch(ctx context.Context, transactionIDs []int64) ([]BankTransaction, error) {
	if len(transactionIDs) == 0 {
		unreconciled := false
		return e.repo.ListBankTransactions(ctx, BankTransactionFilter{
			Reconciled: &unreconciled,
			Direction:  DirectionDebit,
		})
	}
	txs := make([]BankTransaction, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		t, err := e.repo.GetBankTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// matchOne applies the rule cascade for a single transaction inside the batch
// transaction. It returns nil without error when nothing matches.
func (e *MatchingEngine) matchOne(ctx context.Context, tx TxRepository, t BankTransaction, outstanding []Payment, claimed map[int64]bool) (*Match, error) {
	// Rule 1: cheque number.
	if t.Method == TxMethodCheque {
		cheque, err := e.resolveCheque(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		if cheque != nil && cheque.PaymentID != nil && !claimed[*cheque.PaymentID] {
			p, err := tx.GetPayment(ctx, *cheque.PaymentID)
			if err != nil && !errors.Is(err, ErrPaymentNotFound) {
				return nil, err
			}
			if err == nil && isOutstanding(p) && p.Method == MethodCheque &&
				p.BankTransactionID == nil && t.Amount <= p.Outstanding() {
				return e.applyMatch(ctx, tx, t, p, cheque, RuleCheque)
			}
		}
	}

	// Rule 2: transfer with matching obligation amount.
	if t.Method == TxMethodTransfer {
		if p, ok := pickByAmount(outstanding, claimed, t.Amount, func(p Payment) bool {
			return p.Method == MethodTransfer && AmountsMatch(p.Amount, t.Amount)
		}); ok {
			return e.applyMatch(ctx, tx, t, p, nil, RuleTransfer)
		}
	}

	// Rule 3: amount-only fallback on the outstanding balance.
	if p, ok := pickByAmount(outstanding, claimed, t.Amount, func(p Payment) bool {
		return AmountsMatch(p.Outstanding(), t.Amount)
	}); ok {
		return e.applyMatch(ctx, tx, t, p, nil, RuleAmount)
	}
	return nil, nil
}

// resolveCheque resolves the cheque for a transaction either through its
// direct link or through the number carried in its reference.
func (e *MatchingEngine) resolveCheque(ctx context.Context, tx TxRepository, t BankTransaction) (*Cheque, error) {
	if t.ChequeID != nil {
		ch, err := tx.GetCheque(ctx, *t.ChequeID)
		if errors.Is(err, ErrChequeNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if ch.State == ChequeCancelled {
			return nil, nil
		}
		return &ch, nil
	}
	if t.Reference == "" {
		return nil, nil
	}
	ch, err := tx.FindChequeByNumber(ctx, t.Reference)
	if errors.Is(err, ErrChequeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// pickByAmount selects the unclaimed candidate accepted by the predicate,
// preferring the earliest due date for determinism.
func pickByAmount(outstanding []Payment, claimed map[int64]bool, amount int64, accept func(Payment) bool) (Payment, bool) {
	var candidates []Payment
	for _, p := range outstanding {
		if claimed[p.ID] || p.BankTransactionID != nil || !isOutstanding(p) {
			continue
		}
		if amount > p.Outstanding() {
			continue
		}
		if accept(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Payment{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DueDate.Equal(candidates[j].DueDate) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].DueDate.Before(candidates[j].DueDate)
	})
	return candidates[0], true
}

func isOutstanding(p Payment) bool {
	switch p.State {
	case PaymentPending, PaymentPartiallyPaid, PaymentOverdue:
		return true
	default:
		return false
	}
}

// applyMatch records the settlement increment, links transaction and payment,
// clears the cheque when one carried the match, and writes the audit entry.
func (e *MatchingEngine) applyMatch(ctx context.Context, tx TxRepository, t BankTransaction, p Payment, cheque *Cheque, rule MatchRule) (*Match, error) {
	pp, err := recordPartialTx(ctx, tx, p, RecordPartialPaymentInput{
		PaymentID: p.ID,
		Amount:    t.Amount,
		Method:    settleMethod(rule, t, p),
		Date:      t.Date,
		Reference: t.Reference,
	}, false)
	if err != nil {
		return nil, err
	}
	if err := tx.LinkBankTransaction(ctx, t.ID, p.ID); err != nil {
		return nil, err
	}
	if err := tx.SetPaymentBankTransactionRef(ctx, p.ID, &t.ID); err != nil {
		return nil, err
	}

	var chequeID *int64
	if cheque != nil {
		id := cheque.ID
		chequeID = &id
		if cheque.State == ChequePending {
			clearDate := t.Date
			if err := tx.UpdateChequeState(ctx, cheque.ID, ChequeCleared, &clearDate); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.CreateReconciliationEntry(ctx, ReconciliationEntry{
		TransactionID:    t.ID,
		PaymentID:        p.ID,
		ChequeID:         chequeID,
		PartialPaymentID: pp.ID,
		Rule:             rule,
		MatchedAt:        time.Now(),
	}); err != nil {
		return nil, err
	}

	return &Match{
		TransactionID: t.ID,
		PaymentID:     p.ID,
		ChequeID:      chequeID,
		Rule:          rule,
		Amount:        t.Amount,
	}, nil
}

// settleMethod maps the transaction's inferred method onto the partial
// payment channel. Cheque only carries through when the obligation actually
// owns a cheque.
func settleMethod(rule MatchRule, t BankTransaction, p Payment) PaymentMethod {
	switch {
	case rule == RuleCheque:
		return MethodCheque
	case t.Method == TxMethodTransfer:
		return MethodTransfer
	case t.Method == TxMethodCheque && p.ChequeID != nil:
		return MethodCheque
	default:
		return MethodOther
	}
}

// ReconcileManually links one transaction to one payment, settling the
// payment by the transaction amount exactly as a recorded partial would. A
// cheque carried by the transaction is cleared.
func (e *MatchingEngine) ReconcileManually(ctx context.Context, transactionID, paymentID int64) error {
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetBankTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Reconciled {
			return ErrAlreadyReconciled
		}
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.BankTransactionID != nil {
			return ErrAlreadyReconciled
		}

		var cheque *Cheque
		if t.ChequeID != nil {
			ch, err := tx.GetCheque(ctx, *t.ChequeID)
			if err != nil {
				return err
			}
			if ch.State != ChequeCancelled {
				cheque = &ch
			}
		}
		_, err = e.applyMatch(ctx, tx, t, p, cheque, RuleManual)
		return err
	})
	if err != nil {
		return err
	}
	e.invalidate(ctx)
	e.auditRecord(ctx, "reconcile.manual", transactionID, map[string]any{"payment_id": paymentID})
	return nil
}

// Unreconcile undoes the link on a transaction: the settlement increment the
// link recorded is removed, the payment state is rederived, and the
// transaction becomes available for matching again. A cheque cleared by the
// link stays cleared: the bank-side fact is not unwound.
func (e *MatchingEngine) Unreconcile(ctx context.Context, transactionID int64) error {
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetBankTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if !t.Reconciled || t.PaymentID == nil {
			return ErrNotReconciled
		}
		p, err := tx.GetPayment(ctx, *t.PaymentID)
		if err != nil {
			return err
		}
		return reverseLink(ctx, tx, p, transactionID)
	})
	if err != nil {
		return err
	}
	e.invalidate(ctx)
	e.auditRecord(ctx, "reconcile.undo", transactionID, nil)
	return nil
}

func (e *MatchingEngine) invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn("outstanding cache invalidate", slog.Any("error", err))
	}
}

func (e *MatchingEngine) auditRecord(ctx context.Context, action string, id int64, meta map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "bank_transaction",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       time.Now(),
	}); err != nil {
		e.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
