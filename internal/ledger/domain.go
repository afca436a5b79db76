package ledger

import (
	"time"
)

// PaymentState enumerates obligation settlement states. It is derived from the
// partial-payment sub-ledger and never set directly by callers.
type PaymentState string

const (
	PaymentPending       PaymentState = "PENDING"
	PaymentPartiallyPaid PaymentState = "PARTIALLY_PAID"
	PaymentPaid          PaymentState = "PAID"
	PaymentOverdue       PaymentState = "OVERDUE"
	PaymentCancelled     PaymentState = "CANCELLED"
)

// PaymentType enumerates the source document of an obligation.
type PaymentType string

const (
	TypeInvoice   PaymentType = "INVOICE"
	TypeQuotation PaymentType = "QUOTATION"
	TypeCashSale  PaymentType = "CASH_SALE"
)

// PaymentMethod is the intended settlement channel. It may change while the
// obligation is not fully settled.
type PaymentMethod string

const (
	MethodTransfer    PaymentMethod = "TRANSFER"
	MethodCheque      PaymentMethod = "CHEQUE"
	MethodDirectDebit PaymentMethod = "DIRECT_DEBIT"
	MethodPettyCash   PaymentMethod = "PETTY_CASH"
	MethodOther       PaymentMethod = "OTHER"
)

// ChequeState enumerates cheque lifecycle states. CLEARED and CANCELLED are
// terminal.
type ChequeState string

const (
	ChequePending   ChequeState = "PENDING"
	ChequeCleared   ChequeState = "CLEARED"
	ChequeCancelled ChequeState = "CANCELLED"
)

// Direction of a bank transaction relative to the account.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// TxMethod classifies how a bank transaction was settled, as inferred from
// its description.
type TxMethod string

const (
	TxMethodCheque   TxMethod = "CHEQUE"
	TxMethodTransfer TxMethod = "TRANSFER"
	TxMethodDeposit  TxMethod = "DEPOSIT"
	TxMethodOther    TxMethod = "OTHER"
)

// TxOrigin records how a bank transaction entered the repository.
type TxOrigin string

const (
	OriginManual        TxOrigin = "MANUAL"
	OriginImported      TxOrigin = "IMPORTED"
	OriginChequeDerived TxOrigin = "CHEQUE_DERIVED"
)

// Amounts are integer minor units (cents). MatchEpsilon is the tolerance used
// when comparing a bank transaction amount against an obligation.
const MatchEpsilon int64 = 1

// Payment is a supplier obligation: an amount due on a date through some
// settlement channel, tracked against its partial-payment sub-ledger.
type Payment struct {
	ID                  int64
	SupplierID          int64
	Reference           string
	Type                PaymentType
	Amount              int64
	DueDate             time.Time
	State               PaymentState
	Method              PaymentMethod
	PaidDate            *time.Time
	ChequeID            *int64
	PettyCashMovementID *int64
	BankTransactionID   *int64
	Partials            []PartialPayment
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PaidTotal sums the recorded partial payments.
func (p Payment) PaidTotal() int64 {
	var total int64
	for _, pp := range p.Partials {
		total += pp.Amount
	}
	return total
}

// Outstanding is the unsettled remainder of the obligation.
func (p Payment) Outstanding() int64 {
	rem := p.Amount - p.PaidTotal()
	if rem < 0 {
		return 0
	}
	return rem
}

// PartialPayment is one settlement increment against an obligation. It is
// immutable once created, except for removal by a full reversal.
type PartialPayment struct {
	ID         string
	PaymentID  int64
	Amount     int64
	Date       time.Time
	Method     PaymentMethod
	Reference  string
	RecordedBy int64
	CreatedAt  time.Time
}

// Cheque model. A cheque links to at most one payment; the record persists
// for audit even after cancellation.
type Cheque struct {
	ID        int64
	Number    string
	Amount    int64
	Payee     string
	IssueDate time.Time
	ClearDate *time.Time
	State     ChequeState
	PaymentID *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BankTransaction is an externally observed account movement. Amount, date
// and origin are immutable after creation; only linkage and the reconciled
// flag change, and only through the matching engine.
type BankTransaction struct {
	ID          int64
	Date        time.Time
	Description string
	Amount      int64
	Direction   Direction
	Reconciled  bool
	PaymentID   *int64
	ChequeID    *int64
	Method      TxMethod
	Origin      TxOrigin
	Reference   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MatchRule identifies which heuristic linked a transaction.
type MatchRule string

const (
	RuleCheque   MatchRule = "CHEQUE"
	RuleTransfer MatchRule = "TRANSFER"
	RuleAmount   MatchRule = "AMOUNT"
	RuleManual   MatchRule = "MANUAL"
)

// ReconciliationEntry is the persisted audit record of one link between a
// bank transaction and a payment. PartialPaymentID references the settlement
// increment the link recorded, so unreconcile can remove exactly that one.
type ReconciliationEntry struct {
	ID               int64
	TransactionID    int64
	PaymentID        int64
	ChequeID         *int64
	PartialPaymentID string
	Rule             MatchRule
	MatchedAt        time.Time
	ReversedAt       *time.Time
}

// Match describes one successful link produced by an auto-reconcile batch.
type Match struct {
	TransactionID int64
	PaymentID     int64
	ChequeID      *int64
	Rule          MatchRule
	Amount        int64
}

// ReconciliationReport summarises one auto-reconcile batch.
type ReconciliationReport struct {
	Processed       int
	Reconciled      int
	Skipped         int
	ChequeMatches   int
	TransferMatches int
	AmountMatches   int
	Matches         []Match
}

// AgingBucket summarises outstanding balances by days overdue.
type AgingBucket struct {
	Current   int64
	Bucket30  int64
	Bucket60  int64
	Bucket90  int64
	Bucket120 int64
}

// Total sums every bucket.
func (b AgingBucket) Total() int64 {
	return b.Current + b.Bucket30 + b.Bucket60 + b.Bucket90 + b.Bucket120
}

// --- Input DTOs ---

// CreatePaymentInput registers a new obligation on behalf of the supplier
// registry. Obligations are created PENDING.
type CreatePaymentInput struct {
	SupplierID int64
	Reference  string
	Type       PaymentType
	Amount     int64
	DueDate    time.Time
	Method     PaymentMethod
	CreatedBy  int64
}

// RecordPartialPaymentInput records one settlement increment.
type RecordPartialPaymentInput struct {
	PaymentID  int64
	Amount     int64
	Method     PaymentMethod
	Date       time.Time
	Reference  string
	RecordedBy int64
}

// IssueChequeInput issues a cheque against a payment.
type IssueChequeInput struct {
	PaymentID int64
	Number    string
	Amount    int64
	Payee     string
	IssueDate time.Time
}

// AddBankTransactionInput registers an externally observed transaction.
// Pre-linked cheque/payment references come from the statement normalizer's
// read-only join; they are stored as-is.
type AddBankTransactionInput struct {
	Date        time.Time
	Description string
	Amount      int64
	Direction   Direction
	Method      TxMethod
	Origin      TxOrigin
	Reference   string
	ChequeID    *int64
	PaymentID   *int64
	Reconciled  bool
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	States     []PaymentState
	SupplierID int64
	Method     PaymentMethod
	DueBefore  time.Time
	DueAfter   time.Time
	Limit      int
	Offset     int
}

// ChequeFilter narrows cheque listings.
type ChequeFilter struct {
	State ChequeState
	Limit int
	Offset int
}

// BankTransactionFilter narrows transaction listings.
type BankTransactionFilter struct {
	Reconciled *bool
	Direction  Direction
	Origin     TxOrigin
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// DeriveState computes the obligation state from its amount, sub-ledger and
// due date. This is the single source of truth for Payment.State.
func DeriveState(amount int64, partials []PartialPayment, dueDate, now time.Time) PaymentState {
	var paid int64
	for _, pp := range partials {
		paid += pp.Amount
	}
	switch {
	case paid >= amount:
		return PaymentPaid
	case paid > 0:
		return PaymentPartiallyPaid
	case !dueDate.IsZero() && dueDate.Before(truncateDay(now)):
		return PaymentOverdue
	default:
		return PaymentPending
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AmountsMatch reports whether two minor-unit amounts are equal within the
// matching epsilon.
func AmountsMatch(a, b int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= MatchEpsilon
}
