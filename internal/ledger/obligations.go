package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/paydesk/paydesk/internal/shared"
)

var (
	// ErrInvalidAmount indicates a non-positive settlement amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrOverpayment indicates the partial would push the paid total past the obligation amount.
	ErrOverpayment = errors.New("ledger: partial payment exceeds outstanding amount")
	// ErrMethodChangeRejected indicates a method change on a fully settled obligation.
	ErrMethodChangeRejected = errors.New("ledger: cannot change method of a paid obligation")
	// ErrChequeRequired indicates a cheque-method partial without a linked cheque.
	ErrChequeRequired = errors.New("ledger: cheque-method settlement requires an issued cheque")
	// ErrPaymentCancelled indicates an operation on a cancelled obligation.
	ErrPaymentCancelled = errors.New("ledger: obligation is cancelled")
)

// ObligationService owns Payment records and their partial-payment sub-ledger.
// It is the single writer of Payment.State.
type ObligationService struct {
	repo   Repository
	audit  *shared.AuditLogger
	cache  *OutstandingCache
	logger *slog.Logger
}

// NewObligationService constructs the service. Audit logger and cache may be nil.
func NewObligationService(repo Repository, audit *shared.AuditLogger, cache *OutstandingCache, logger *slog.Logger) *ObligationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObligationService{repo: repo, audit: audit, cache: cache, logger: logger}
}

// CreatePayment registers a new obligation on behalf of the supplier registry.
func (s *ObligationService) CreatePayment(ctx context.Context, input CreatePaymentInput) (Payment, error) {
	if input.Amount <= 0 {
		return Payment{}, ErrInvalidAmount
	}
	if input.Method == "" {
		input.Method = MethodOther
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		state := DeriveState(input.Amount, nil, input.DueDate, time.Now())
		created, err := tx.CreatePayment(ctx, input, state)
		if err != nil {
			return err
		}
		id = created
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetPayment(ctx, id)
}

// CancelPayment marks an obligation cancelled. Obligations linked to a
// reconciled transaction must be unreconciled first.
func (s *ObligationService) CancelPayment(ctx context.Context, paymentID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.State == PaymentCancelled {
			return nil
		}
		if p.BankTransactionID != nil {
			return ErrAlreadyReconciled
		}
		if p.ChequeID != nil {
			if err := cancelChequeForPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		return tx.UpdatePaymentState(ctx, paymentID, PaymentCancelled, nil)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.auditRecord(ctx, 0, "payment.cancel", paymentID, nil)
	return nil
}

// RecordPartialPayment records one settlement increment and recomputes the
// obligation state. A transfer-method partial also emits a pending bank
// transaction for later reconciliation, in the same commit.
func (s *ObligationService) RecordPartialPayment(ctx context.Context, input RecordPartialPaymentInput) (PartialPayment, error) {
	var recorded PartialPayment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, input.PaymentID)
		if err != nil {
			return err
		}
		pp, err := recordPartialTx(ctx, tx, p, input, true)
		if err != nil {
			return err
		}
		recorded = pp
		return nil
	})
	if err != nil {
		return PartialPayment{}, err
	}
	s.invalidate(ctx)
	s.auditRecord(ctx, input.RecordedBy, "payment.partial", input.PaymentID, map[string]any{
		"amount": input.Amount,
		"method": string(input.Method),
	})
	return recorded, nil
}

// recordPartialTx applies one settlement increment inside an open transaction.
// emitBankTx controls the transfer-method side effect; the matching engine
// passes false because the bank transaction already exists there.
func recordPartialTx(ctx context.Context, tx TxRepository, p Payment, input RecordPartialPaymentInput, emitBankTx bool) (PartialPayment, error) {
	if input.Amount <= 0 {
		return PartialPayment{}, ErrInvalidAmount
	}
	if p.State == PaymentCancelled {
		return PartialPayment{}, ErrPaymentCancelled
	}
	if p.PaidTotal()+input.Amount > p.Amount {
		return PartialPayment{}, ErrOverpayment
	}
	if input.Method == MethodCheque && p.ChequeID == nil {
		return PartialPayment{}, ErrChequeRequired
	}

	pp := PartialPayment{
		ID:         uuid.NewString(),
		PaymentID:  p.ID,
		Amount:     input.Amount,
		Date:       input.Date,
		Method:     input.Method,
		Reference:  input.Reference,
		RecordedBy: input.RecordedBy,
	}
	if err := tx.CreatePartialPayment(ctx, pp); err != nil {
		return PartialPayment{}, err
	}

	partials := append(append([]PartialPayment(nil), p.Partials...), pp)
	state := DeriveState(p.Amount, partials, p.DueDate, time.Now())
	var paidDate *time.Time
	if state == PaymentPaid {
		d := input.Date
		paidDate = &d
	}
	if err := tx.UpdatePaymentState(ctx, p.ID, state, paidDate); err != nil {
		return PartialPayment{}, err
	}

	if emitBankTx && input.Method == MethodTransfer {
		_, err := tx.CreateBankTransaction(ctx, AddBankTransactionInput{
			Date:        input.Date,
			Description: fmt.Sprintf("Transfer to supplier for %s", p.Reference),
			Amount:      input.Amount,
			Direction:   DirectionDebit,
			Method:      TxMethodTransfer,
			Origin:      OriginManual,
			Reference:   input.Reference,
		})
		if err != nil {
			return PartialPayment{}, err
		}
	}
	return pp, nil
}

// ReverseToPending unwinds the reconciliation attached to an obligation: the
// settlement increment the link recorded is removed, the transaction is
// unlinked, and the state is recomputed from the remaining partials.
func (s *ObligationService) ReverseToPending(ctx context.Context, paymentID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.BankTransactionID != nil {
			return reverseLink(ctx, tx, p, *p.BankTransactionID)
		}
		// No linked transaction: just clear paidDate and rederive.
		state := DeriveState(p.Amount, p.Partials, p.DueDate, time.Now())
		var paidDate *time.Time
		if state == PaymentPaid {
			paidDate = p.PaidDate
		}
		return tx.UpdatePaymentState(ctx, paymentID, state, paidDate)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.auditRecord(ctx, 0, "payment.reverse", paymentID, nil)
	return nil
}

// reverseLink removes the reconciliation-recorded partial, unlinks the bank
// transaction and rederives the obligation state. The cheque, if one was
// cleared by the link, stays cleared: bank clearing is an external fact.
func reverseLink(ctx context.Context, tx TxRepository, p Payment, transactionID int64) error {
	entry, err := tx.FindActiveEntryByTransaction(ctx, transactionID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return err
	}
	remaining := p.Partials
	if err == nil {
		if entry.PartialPaymentID != "" {
			if err := tx.DeletePartialPayment(ctx, entry.PartialPaymentID); err != nil {
				return err
			}
			remaining = remaining[:0:0]
			for _, pp := range p.Partials {
				if pp.ID != entry.PartialPaymentID {
					remaining = append(remaining, pp)
				}
			}
		}
		if err := tx.MarkEntryReversed(ctx, entry.ID, time.Now()); err != nil {
			return err
		}
	}
	if err := tx.UnlinkBankTransaction(ctx, transactionID); err != nil {
		return err
	}
	if err := tx.SetPaymentBankTransactionRef(ctx, p.ID, nil); err != nil {
		return err
	}
	state := DeriveState(p.Amount, remaining, p.DueDate, time.Now())
	var paidDate *time.Time
	if state == PaymentPaid {
		paidDate = p.PaidDate
	}
	return tx.UpdatePaymentState(ctx, p.ID, state, paidDate)
}

// ChangeMethod switches the intended settlement channel. Leaving the cheque
// method cancels the owned cheque; entering it requires the caller to issue
// one through the cheque tracker afterwards.
func (s *ObligationService) ChangeMethod(ctx context.Context, paymentID int64, newMethod PaymentMethod) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.State == PaymentPaid {
			return ErrMethodChangeRejected
		}
		if p.State == PaymentCancelled {
			return ErrPaymentCancelled
		}
		if p.Method == newMethod {
			return nil
		}
		if p.Method == MethodCheque {
			if err := cancelChequeForPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		return tx.UpdatePaymentMethod(ctx, paymentID, newMethod)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.auditRecord(ctx, 0, "payment.method", paymentID, map[string]any{"method": string(newMethod)})
	return nil
}

// Get returns one obligation with its sub-ledger.
func (s *ObligationService) Get(ctx context.Context, paymentID int64) (Payment, error) {
	return s.repo.GetPayment(ctx, paymentID)
}

// List returns obligations matching the filter.
func (s *ObligationService) List(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	return s.repo.ListPayments(ctx, filter)
}

// OutstandingStates are the states with a non-zero unsettled remainder.
var OutstandingStates = []PaymentState{PaymentPending, PaymentPartiallyPaid, PaymentOverdue}

// ListOutstanding returns obligations that still carry an unsettled balance.
// Results are served through the read-side cache when one is configured.
func (s *ObligationService) ListOutstanding(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	filter.States = OutstandingStates
	if s.cache == nil {
		return s.repo.ListPayments(ctx, filter)
	}
	var payments []Payment
	err := s.cache.Fetch(ctx, outstandingKey(filter), &payments, func(ctx context.Context) (any, error) {
		return s.repo.ListPayments(ctx, filter)
	})
	if err != nil {
		s.logger.Warn("outstanding cache fetch", slog.Any("error", err))
		return s.repo.ListPayments(ctx, filter)
	}
	return payments, nil
}

// Aging buckets the outstanding balances by days overdue as of the given date.
func (s *ObligationService) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	payments, err := s.repo.ListPayments(ctx, PaymentFilter{States: OutstandingStates})
	if err != nil {
		return AgingBucket{}, err
	}
	bucket := AgingBucket{}
	for _, p := range payments {
		balance := p.Outstanding()
		if balance <= 0 {
			continue
		}
		daysOverdue := int(asOf.Sub(p.DueDate).Hours() / 24)
		switch {
		case daysOverdue <= 0:
			bucket.Current += balance
		case daysOverdue <= 30:
			bucket.Bucket30 += balance
		case daysOverdue <= 60:
			bucket.Bucket60 += balance
		case daysOverdue <= 90:
			bucket.Bucket90 += balance
		default:
			bucket.Bucket120 += balance
		}
	}
	return bucket, nil
}

func (s *ObligationService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("outstanding cache invalidate", slog.Any("error", err))
	}
}

func (s *ObligationService) auditRecord(ctx context.Context, actor int64, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     meta,
		At:       time.Now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func outstandingKey(filter PaymentFilter) string {
	return fmt.Sprintf("outstanding:%d:%s:%d:%d:%s:%s",
		filter.SupplierID, filter.Method, filter.Limit, filter.Offset,
		filter.DueAfter.Format("20060102"), filter.DueBefore.Format("20060102"))
}
