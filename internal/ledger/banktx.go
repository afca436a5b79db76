package ledger

import (
	"context"
	"errors"
	"log/slog"
)

// ErrTransactionReconciled indicates removal of a still-linked transaction.
var ErrTransactionReconciled = errors.New("ledger: transaction is reconciled, unreconcile first")

// BankTransactionService owns imported and manually entered bank
// transactions. Amount, date and origin are immutable after creation.
type BankTransactionService struct {
	repo   Repository
	logger *slog.Logger
}

// NewBankTransactionService constructs the service.
func NewBankTransactionService(repo Repository, logger *slog.Logger) *BankTransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BankTransactionService{repo: repo, logger: logger}
}

// Add stores a transaction. Candidates carrying a cheque reference are deduped
// by cheque: a second import of the same statement row is dropped, and the
// existing transaction is returned instead.
func (s *BankTransactionService) Add(ctx context.Context, input AddBankTransactionInput) (BankTransaction, error) {
	if input.Amount <= 0 {
		return BankTransaction{}, ErrInvalidAmount
	}
	if input.Method == "" {
		input.Method = TxMethodOther
	}
	if input.Origin == "" {
		input.Origin = OriginManual
	}
	// The reconciled flag travels with a payment link or not at all.
	if input.PaymentID == nil {
		input.Reconciled = false
	}

	var id int64
	var existing *BankTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ChequeID != nil {
			found, err := tx.FindBankTransactionByCheque(ctx, *input.ChequeID)
			if err == nil {
				existing = &found
				return nil
			}
			if !errors.Is(err, ErrTransactionNotFound) {
				return err
			}
		}
		created, err := tx.CreateBankTransaction(ctx, input)
		if err != nil {
			return err
		}
		id = created
		if input.PaymentID != nil && input.Reconciled {
			if err := tx.SetPaymentBankTransactionRef(ctx, *input.PaymentID, &id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	if existing != nil {
		s.logger.Debug("duplicate cheque transaction dropped", slog.Int64("cheque_id", *input.ChequeID))
		return *existing, nil
	}
	return s.repo.GetBankTransaction(ctx, id)
}

// Remove deletes an unreconciled transaction.
func (s *BankTransactionService) Remove(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetBankTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.Reconciled {
			return ErrTransactionReconciled
		}
		return tx.DeleteBankTransaction(ctx, id)
	})
}

// Get returns one transaction.
func (s *BankTransactionService) Get(ctx context.Context, id int64) (BankTransaction, error) {
	return s.repo.GetBankTransaction(ctx, id)
}

// List returns transactions matching the filter.
func (s *BankTransactionService) List(ctx context.Context, filter BankTransactionFilter) ([]BankTransaction, error) {
	return s.repo.ListBankTransactions(ctx, filter)
}
