package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/paydesk/paydesk/internal/shared"
)

var (
	// ErrDuplicateChequeNumber indicates the number is already in use by a non-cancelled cheque.
	ErrDuplicateChequeNumber = errors.New("ledger: cheque number already exists")
	// ErrInvalidTransition indicates a transition out of a terminal cheque state.
	ErrInvalidTransition = errors.New("ledger: invalid cheque state transition")
	// ErrChequeAlreadyIssued indicates the payment already owns a live cheque.
	ErrChequeAlreadyIssued = errors.New("ledger: payment already has an issued cheque")
	// ErrPaymentNotCheque indicates the payment's method is not cheque.
	ErrPaymentNotCheque = errors.New("ledger: payment method is not cheque")
)

// ChequeService owns cheque records and their lifecycle:
// pending -> cleared, pending -> cancelled, no exit from a terminal state.
type ChequeService struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewChequeService constructs the service. Audit logger may be nil.
func NewChequeService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *ChequeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChequeService{repo: repo, audit: audit, logger: logger}
}

// Issue creates a pending cheque against a cheque-method payment and links
// both sides.
func (s *ChequeService) Issue(ctx context.Context, input IssueChequeInput) (Cheque, error) {
	if input.Amount <= 0 {
		return Cheque{}, ErrInvalidAmount
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, input.PaymentID)
		if err != nil {
			return err
		}
		if p.State == PaymentCancelled {
			return ErrPaymentCancelled
		}
		if p.Method != MethodCheque {
			return ErrPaymentNotCheque
		}
		if p.ChequeID != nil {
			return ErrChequeAlreadyIssued
		}
		if _, err := tx.FindChequeByNumber(ctx, input.Number); err == nil {
			return ErrDuplicateChequeNumber
		} else if !errors.Is(err, ErrChequeNotFound) {
			return err
		}
		created, err := tx.CreateCheque(ctx, Cheque{
			Number:    input.Number,
			Amount:    input.Amount,
			Payee:     input.Payee,
			IssueDate: input.IssueDate,
			State:     ChequePending,
			PaymentID: &input.PaymentID,
		})
		if err != nil {
			return err
		}
		id = created
		return tx.SetPaymentChequeRef(ctx, input.PaymentID, &id)
	})
	if err != nil {
		return Cheque{}, err
	}
	s.auditRecord(ctx, "cheque.issue", id, map[string]any{"number": input.Number})
	return s.repo.GetCheque(ctx, id)
}

// MarkCleared transitions a pending cheque to cleared and derives the
// corresponding bank transaction when none exists for the cheque yet. The
// derived transaction stays unreconciled; linking it to the owning payment is
// the matching engine's job.
func (s *ChequeService) MarkCleared(ctx context.Context, chequeID int64, clearDate time.Time) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ch, err := tx.GetCheque(ctx, chequeID)
		if err != nil {
			return err
		}
		if ch.State != ChequePending {
			return ErrInvalidTransition
		}
		if err := tx.UpdateChequeState(ctx, chequeID, ChequeCleared, &clearDate); err != nil {
			return err
		}
		if _, err := tx.FindBankTransactionByCheque(ctx, chequeID); err == nil {
			return nil // already derived or imported, dedupe by cheque
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		_, err = tx.CreateBankTransaction(ctx, AddBankTransactionInput{
			Date:        clearDate,
			Description: fmt.Sprintf("Cheque %s cleared", ch.Number),
			Amount:      ch.Amount,
			Direction:   DirectionDebit,
			Method:      TxMethodCheque,
			Origin:      OriginChequeDerived,
			Reference:   ch.Number,
			ChequeID:    &chequeID,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.auditRecord(ctx, "cheque.clear", chequeID, nil)
	return nil
}

// CancelForPayment cancels the cheque linked to a payment. Idempotent when no
// cheque is linked; the cheque record persists for audit.
func (s *ChequeService) CancelForPayment(ctx context.Context, paymentID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		return cancelChequeForPayment(ctx, tx, p)
	})
	if err != nil {
		return err
	}
	s.auditRecord(ctx, "cheque.cancel", paymentID, nil)
	return nil
}

// cancelChequeForPayment transitions the payment's cheque to cancelled and
// severs the references on both sides. A cleared cheque cannot be cancelled.
func cancelChequeForPayment(ctx context.Context, tx TxRepository, p Payment) error {
	ch, err := tx.FindChequeByPayment(ctx, p.ID)
	if errors.Is(err, ErrChequeNotFound) {
		if p.ChequeID != nil {
			return tx.SetPaymentChequeRef(ctx, p.ID, nil)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if ch.State == ChequeCleared {
		return ErrInvalidTransition
	}
	if ch.State == ChequePending {
		if err := tx.UpdateChequeState(ctx, ch.ID, ChequeCancelled, nil); err != nil {
			return err
		}
	}
	if err := tx.ClearChequePaymentRef(ctx, ch.ID); err != nil {
		return err
	}
	return tx.SetPaymentChequeRef(ctx, p.ID, nil)
}

// FindByNumber returns the live (non-cancelled) cheque with the given number.
func (s *ChequeService) FindByNumber(ctx context.Context, number string) (Cheque, error) {
	return s.repo.FindChequeByNumber(ctx, number)
}

// Get returns one cheque.
func (s *ChequeService) Get(ctx context.Context, id int64) (Cheque, error) {
	return s.repo.GetCheque(ctx, id)
}

// List returns cheques matching the filter.
func (s *ChequeService) List(ctx context.Context, filter ChequeFilter) ([]Cheque, error) {
	return s.repo.ListCheques(ctx, filter)
}

func (s *ChequeService) auditRecord(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "cheque",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       time.Now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
