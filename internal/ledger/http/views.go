package ledgerhttp

import (
	"time"

	"github.com/paydesk/paydesk/internal/ledger"
)

type paymentView struct {
	ID                int64         `json:"id"`
	SupplierID        int64         `json:"supplier_id"`
	Reference         string        `json:"reference"`
	Type              string        `json:"type,omitempty"`
	Amount            int64         `json:"amount"`
	DueDate           string        `json:"due_date"`
	State             string        `json:"state"`
	Method            string        `json:"method"`
	PaidDate          *string       `json:"paid_date,omitempty"`
	PaidTotal         int64         `json:"paid_total"`
	Outstanding       int64         `json:"outstanding"`
	ChequeID          *int64        `json:"cheque_id,omitempty"`
	BankTransactionID *int64        `json:"bank_transaction_id,omitempty"`
	PartialPayments   []partialView `json:"partial_payments,omitempty"`
}

type partialView struct {
	ID        string `json:"id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Date      string `json:"date"`
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

type chequeView struct {
	ID        int64   `json:"id"`
	Number    string  `json:"number"`
	Amount    int64   `json:"amount"`
	Payee     string  `json:"payee"`
	IssueDate string  `json:"issue_date"`
	ClearDate *string `json:"clear_date,omitempty"`
	State     string  `json:"state"`
	PaymentID *int64  `json:"payment_id,omitempty"`
}

type transactionView struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
	Direction   string `json:"direction"`
	Reconciled  bool   `json:"reconciled"`
	PaymentID   *int64 `json:"payment_id,omitempty"`
	ChequeID    *int64 `json:"cheque_id,omitempty"`
	Method      string `json:"method"`
	Origin      string `json:"origin"`
	Reference   string `json:"reference,omitempty"`
}

type matchView struct {
	TransactionID int64  `json:"transaction_id"`
	PaymentID     int64  `json:"payment_id"`
	ChequeID      *int64 `json:"cheque_id,omitempty"`
	Rule          string `json:"rule"`
	Amount        int64  `json:"amount"`
}

type reportView struct {
	Processed       int         `json:"processed"`
	Reconciled      int         `json:"reconciled"`
	Skipped         int         `json:"skipped"`
	ChequeMatches   int         `json:"cheque_matches"`
	TransferMatches int         `json:"transfer_matches"`
	AmountMatches   int         `json:"amount_matches"`
	Matches         []matchView `json:"matches"`
}

type agingView struct {
	AsOf      string `json:"as_of"`
	Current   int64  `json:"current"`
	Bucket30  int64  `json:"bucket_30"`
	Bucket60  int64  `json:"bucket_60"`
	Bucket90  int64  `json:"bucket_90"`
	Bucket120 int64  `json:"bucket_120"`
	Total     int64  `json:"total"`
}

func newPaymentView(p ledger.Payment) paymentView {
	view := paymentView{
		ID:                p.ID,
		SupplierID:        p.SupplierID,
		Reference:         p.Reference,
		Type:              string(p.Type),
		Amount:            p.Amount,
		DueDate:           p.DueDate.Format(dateLayout),
		State:             string(p.State),
		Method:            string(p.Method),
		PaidDate:          formatDatePtr(p.PaidDate),
		PaidTotal:         p.PaidTotal(),
		Outstanding:       p.Outstanding(),
		ChequeID:          p.ChequeID,
		BankTransactionID: p.BankTransactionID,
	}
	for _, pp := range p.Partials {
		view.PartialPayments = append(view.PartialPayments, newPartialView(pp))
	}
	return view
}

func newPaymentListView(payments []ledger.Payment) map[string]any {
	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, newPaymentView(p))
	}
	return map[string]any{"payments": views}
}

func newPartialView(pp ledger.PartialPayment) partialView {
	return partialView{
		ID:        pp.ID,
		PaymentID: pp.PaymentID,
		Amount:    pp.Amount,
		Date:      pp.Date.Format(dateLayout),
		Method:    string(pp.Method),
		Reference: pp.Reference,
	}
}

func newChequeView(ch ledger.Cheque) chequeView {
	return chequeView{
		ID:        ch.ID,
		Number:    ch.Number,
		Amount:    ch.Amount,
		Payee:     ch.Payee,
		IssueDate: ch.IssueDate.Format(dateLayout),
		ClearDate: formatDatePtr(ch.ClearDate),
		State:     string(ch.State),
		PaymentID: ch.PaymentID,
	}
}

func newTransactionView(t ledger.BankTransaction) transactionView {
	return transactionView{
		ID:          t.ID,
		Date:        t.Date.Format(dateLayout),
		Description: t.Description,
		Amount:      t.Amount,
		Direction:   string(t.Direction),
		Reconciled:  t.Reconciled,
		PaymentID:   t.PaymentID,
		ChequeID:    t.ChequeID,
		Method:      string(t.Method),
		Origin:      string(t.Origin),
		Reference:   t.Reference,
	}
}

func newReportView(report ledger.ReconciliationReport) reportView {
	view := reportView{
		Processed:       report.Processed,
		Reconciled:      report.Reconciled,
		Skipped:         report.Skipped,
		ChequeMatches:   report.ChequeMatches,
		TransferMatches: report.TransferMatches,
		AmountMatches:   report.AmountMatches,
		Matches:         []matchView{},
	}
	for _, m := range report.Matches {
		view.Matches = append(view.Matches, matchView{
			TransactionID: m.TransactionID,
			PaymentID:     m.PaymentID,
			ChequeID:      m.ChequeID,
			Rule:          string(m.Rule),
			Amount:        m.Amount,
		})
	}
	return view
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(dateLayout)
	return &formatted
}
