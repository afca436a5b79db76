package ledger

import (
	"context"
	"sort"
	"time"
)

// memoryRepo backs the service tests with map-based storage. It mirrors the
// ordering guarantees of the SQL implementation: payments by due date then id,
// transactions by date then id.
type memoryRepo struct {
	payments map[int64]Payment
	partials map[int64][]PartialPayment
	cheques  map[int64]Cheque
	txs      map[int64]BankTransaction
	entries  map[int64]ReconciliationEntry

	nextPaymentID int64
	nextChequeID  int64
	nextTxID      int64
	nextEntryID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

var _ Repository = (*memoryRepo)(nil)
var _ TxRepository = (*memoryTx)(nil)

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		payments: make(map[int64]Payment),
		partials: make(map[int64][]PartialPayment),
		cheques:  make(map[int64]Cheque),
		txs:      make(map[int64]BankTransaction),
		entries:  make(map[int64]ReconciliationEntry),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) getPayment(id int64) (Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	p.Partials = append([]PartialPayment(nil), r.partials[id]...)
	return p, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return r.getPayment(id)
}

func (r *memoryRepo) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	var out []Payment
	for id := range r.payments {
		p, _ := r.getPayment(id)
		if len(filter.States) > 0 {
			matched := false
			for _, s := range filter.States {
				if p.State == s {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if filter.SupplierID != 0 && p.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Method != "" && p.Method != filter.Method {
			continue
		}
		if !filter.DueBefore.IsZero() && p.DueDate.After(filter.DueBefore) {
			continue
		}
		if !filter.DueAfter.IsZero() && p.DueDate.Before(filter.DueAfter) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *memoryRepo) getCheque(id int64) (Cheque, error) {
	c, ok := r.cheques[id]
	if !ok {
		return Cheque{}, ErrChequeNotFound
	}
	return c, nil
}

func (r *memoryRepo) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	return r.getCheque(id)
}

func (r *memoryRepo) findChequeByNumber(number string) (Cheque, error) {
	var found Cheque
	ok := false
	for _, c := range r.cheques {
		if c.Number != number || c.State == ChequeCancelled {
			continue
		}
		if !ok || c.ID > found.ID {
			found = c
			ok = true
		}
	}
	if !ok {
		return Cheque{}, ErrChequeNotFound
	}
	return found, nil
}

func (r *memoryRepo) FindChequeByNumber(ctx context.Context, number string) (Cheque, error) {
	return r.findChequeByNumber(number)
}

func (r *memoryRepo) findChequeByPayment(paymentID int64) (Cheque, error) {
	var found Cheque
	ok := false
	for _, c := range r.cheques {
		if c.PaymentID == nil || *c.PaymentID != paymentID || c.State == ChequeCancelled {
			continue
		}
		if !ok || c.ID > found.ID {
			found = c
			ok = true
		}
	}
	if !ok {
		return Cheque{}, ErrChequeNotFound
	}
	return found, nil
}

func (r *memoryRepo) FindChequeByPayment(ctx context.Context, paymentID int64) (Cheque, error) {
	return r.findChequeByPayment(paymentID)
}

func (r *memoryRepo) ListCheques(ctx context.Context, filter ChequeFilter) ([]Cheque, error) {
	var out []Cheque
	for _, c := range r.cheques {
		if filter.State != "" && c.State != filter.State {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssueDate.Before(out[j].IssueDate)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *memoryRepo) getBankTransaction(id int64) (BankTransaction, error) {
	t, ok := r.txs[id]
	if !ok {
		return BankTransaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (r *memoryRepo) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	return r.getBankTransaction(id)
}

func (r *memoryRepo) ListBankTransactions(ctx context.Context, filter BankTransactionFilter) ([]BankTransaction, error) {
	var out []BankTransaction
	for _, t := range r.txs {
		if filter.Reconciled != nil && t.Reconciled != *filter.Reconciled {
			continue
		}
		if filter.Direction != "" && t.Direction != filter.Direction {
			continue
		}
		if filter.Origin != "" && t.Origin != filter.Origin {
			continue
		}
		if !filter.From.IsZero() && t.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && t.Date.After(filter.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *memoryRepo) findBankTransactionByCheque(chequeID int64) (BankTransaction, error) {
	var found BankTransaction
	ok := false
	for _, t := range r.txs {
		if t.ChequeID == nil || *t.ChequeID != chequeID {
			continue
		}
		if !ok || t.ID < found.ID {
			found = t
			ok = true
		}
	}
	if !ok {
		return BankTransaction{}, ErrTransactionNotFound
	}
	return found, nil
}

func (r *memoryRepo) FindBankTransactionByCheque(ctx context.Context, chequeID int64) (BankTransaction, error) {
	return r.findBankTransactionByCheque(chequeID)
}

func (r *memoryRepo) findActiveEntryByTransaction(transactionID int64) (ReconciliationEntry, error) {
	var found ReconciliationEntry
	ok := false
	for _, e := range r.entries {
		if e.TransactionID != transactionID || e.ReversedAt != nil {
			continue
		}
		if !ok || e.ID > found.ID {
			found = e
			ok = true
		}
	}
	if !ok {
		return ReconciliationEntry{}, ErrEntryNotFound
	}
	return found, nil
}

func (r *memoryRepo) FindActiveEntryByTransaction(ctx context.Context, transactionID int64) (ReconciliationEntry, error) {
	return r.findActiveEntryByTransaction(transactionID)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Transaction side

func (tx *memoryTx) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return tx.repo.getPayment(id)
}

func (tx *memoryTx) CreatePayment(ctx context.Context, input CreatePaymentInput, state PaymentState) (int64, error) {
	tx.repo.nextPaymentID++
	id := tx.repo.nextPaymentID
	now := time.Now()
	tx.repo.payments[id] = Payment{
		ID:         id,
		SupplierID: input.SupplierID,
		Reference:  input.Reference,
		Type:       input.Type,
		Amount:     input.Amount,
		DueDate:    input.DueDate,
		State:      state,
		Method:     input.Method,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

func (tx *memoryTx) UpdatePaymentState(ctx context.Context, id int64, state PaymentState, paidDate *time.Time) error {
	p, ok := tx.repo.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.State = state
	p.PaidDate = paidDate
	tx.repo.payments[id] = p
	return nil
}

func (tx *memoryTx) UpdatePaymentMethod(ctx context.Context, id int64, method PaymentMethod) error {
	p, ok := tx.repo.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Method = method
	tx.repo.payments[id] = p
	return nil
}

func (tx *memoryTx) SetPaymentChequeRef(ctx context.Context, id int64, chequeID *int64) error {
	p, ok := tx.repo.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.ChequeID = chequeID
	tx.repo.payments[id] = p
	return nil
}

func (tx *memoryTx) SetPaymentBankTransactionRef(ctx context.Context, id int64, transactionID *int64) error {
	p, ok := tx.repo.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.BankTransactionID = transactionID
	tx.repo.payments[id] = p
	return nil
}

func (tx *memoryTx) CreatePartialPayment(ctx context.Context, pp PartialPayment) error {
	pp.CreatedAt = time.Now()
	tx.repo.partials[pp.PaymentID] = append(tx.repo.partials[pp.PaymentID], pp)
	return nil
}

func (tx *memoryTx) DeletePartialPayment(ctx context.Context, id string) error {
	for paymentID, list := range tx.repo.partials {
		for i, pp := range list {
			if pp.ID == id {
				tx.repo.partials[paymentID] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (tx *memoryTx) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	return tx.repo.getCheque(id)
}

func (tx *memoryTx) FindChequeByNumber(ctx context.Context, number string) (Cheque, error) {
	return tx.repo.findChequeByNumber(number)
}

func (tx *memoryTx) FindChequeByPayment(ctx context.Context, paymentID int64) (Cheque, error) {
	return tx.repo.findChequeByPayment(paymentID)
}

func (tx *memoryTx) CreateCheque(ctx context.Context, ch Cheque) (int64, error) {
	tx.repo.nextChequeID++
	ch.ID = tx.repo.nextChequeID
	now := time.Now()
	ch.CreatedAt = now
	ch.UpdatedAt = now
	tx.repo.cheques[ch.ID] = ch
	return ch.ID, nil
}

func (tx *memoryTx) UpdateChequeState(ctx context.Context, id int64, state ChequeState, clearDate *time.Time) error {
	c, ok := tx.repo.cheques[id]
	if !ok {
		return ErrChequeNotFound
	}
	c.State = state
	c.ClearDate = clearDate
	tx.repo.cheques[id] = c
	return nil
}

func (tx *memoryTx) ClearChequePaymentRef(ctx context.Context, id int64) error {
	c, ok := tx.repo.cheques[id]
	if !ok {
		return ErrChequeNotFound
	}
	c.PaymentID = nil
	tx.repo.cheques[id] = c
	return nil
}

func (tx *memoryTx) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	return tx.repo.getBankTransaction(id)
}

func (tx *memoryTx) FindBankTransactionByCheque(ctx context.Context, chequeID int64) (BankTransaction, error) {
	return tx.repo.findBankTransactionByCheque(chequeID)
}

func (tx *memoryTx) CreateBankTransaction(ctx context.Context, input AddBankTransactionInput) (int64, error) {
	tx.repo.nextTxID++
	id := tx.repo.nextTxID
	now := time.Now()
	tx.repo.txs[id] = BankTransaction{
		ID:          id,
		Date:        input.Date,
		Description: input.Description,
		Amount:      input.Amount,
		Direction:   input.Direction,
		Reconciled:  input.Reconciled,
		PaymentID:   input.PaymentID,
		ChequeID:    input.ChequeID,
		Method:      input.Method,
		Origin:      input.Origin,
		Reference:   input.Reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return id, nil
}

func (tx *memoryTx) LinkBankTransaction(ctx context.Context, id, paymentID int64) error {
	t, ok := tx.repo.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	t.Reconciled = true
	t.PaymentID = &paymentID
	tx.repo.txs[id] = t
	return nil
}

func (tx *memoryTx) UnlinkBankTransaction(ctx context.Context, id int64) error {
	t, ok := tx.repo.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	t.Reconciled = false
	t.PaymentID = nil
	tx.repo.txs[id] = t
	return nil
}

func (tx *memoryTx) DeleteBankTransaction(ctx context.Context, id int64) error {
	delete(tx.repo.txs, id)
	return nil
}

func (tx *memoryTx) CreateReconciliationEntry(ctx context.Context, entry ReconciliationEntry) (int64, error) {
	tx.repo.nextEntryID++
	entry.ID = tx.repo.nextEntryID
	tx.repo.entries[entry.ID] = entry
	return entry.ID, nil
}

func (tx *memoryTx) FindActiveEntryByTransaction(ctx context.Context, transactionID int64) (ReconciliationEntry, error) {
	return tx.repo.findActiveEntryByTransaction(transactionID)
}

func (tx *memoryTx) MarkEntryReversed(ctx context.Context, id int64, at time.Time) error {
	e, ok := tx.repo.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.ReversedAt = &at
	tx.repo.entries[id] = e
	return nil
}
