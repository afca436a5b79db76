package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newObligationFixture() (*memoryRepo, *ObligationService) {
	repo := newMemoryRepo()
	return repo, NewObligationService(repo, nil, nil, nil)
}

func createPayment(t *testing.T, svc *ObligationService, amount int64, due time.Time, method PaymentMethod) Payment {
	t.Helper()
	p, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		SupplierID: 1,
		Reference:  "INV-100",
		Type:       TypeInvoice,
		Amount:     amount,
		DueDate:    due,
		Method:     method,
	})
	require.NoError(t, err)
	return p
}

func TestCreatePaymentStartsPending(t *testing.T) {
	_, svc := newObligationFixture()
	due := time.Now().AddDate(0, 0, 30)

	p := createPayment(t, svc, 100_00, due, MethodTransfer)
	require.Equal(t, PaymentPending, p.State)
	require.EqualValues(t, 100_00, p.Outstanding())
	require.Nil(t, p.PaidDate)
}

func TestCreatePaymentPastDueStartsOverdue(t *testing.T) {
	_, svc := newObligationFixture()
	due := time.Now().AddDate(0, 0, -5)

	p := createPayment(t, svc, 100_00, due, MethodTransfer)
	require.Equal(t, PaymentOverdue, p.State)
}

func TestCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	_, svc := newObligationFixture()
	_, err := svc.CreatePayment(context.Background(), CreatePaymentInput{Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreatePayment(context.Background(), CreatePaymentInput{Amount: -50})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecordPartialPaymentProgression(t *testing.T) {
	_, svc := newObligationFixture()
	ctx := context.Background()
	due := time.Now().AddDate(0, 0, 10)
	p := createPayment(t, svc, 1000, due, MethodTransfer)

	_, err := svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 400, Method: MethodPettyCash, Date: day(2026, 1, 10),
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentPartiallyPaid, got.State)
	require.EqualValues(t, 600, got.Outstanding())

	_, err = svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 600, Method: MethodPettyCash, Date: day(2026, 1, 12),
	})
	require.NoError(t, err)

	got, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, got.State)
	require.EqualValues(t, 0, got.Outstanding())
	require.NotNil(t, got.PaidDate)
	require.True(t, got.PaidDate.Equal(day(2026, 1, 12)))

	_, err = svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 1, Method: MethodPettyCash, Date: day(2026, 1, 13),
	})
	require.ErrorIs(t, err, ErrOverpayment)

	// The rejected increment left nothing behind.
	got, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Partials, 2)
	require.EqualValues(t, 1000, got.PaidTotal())
}

func TestRecordPartialPaymentRejectsNonPositive(t *testing.T) {
	_, svc := newObligationFixture()
	p := createPayment(t, svc, 1000, time.Now().AddDate(0, 0, 10), MethodTransfer)

	_, err := svc.RecordPartialPayment(context.Background(), RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 0, Method: MethodTransfer, Date: day(2026, 1, 10),
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecordPartialPaymentChequeNeedsIssuedCheque(t *testing.T) {
	_, svc := newObligationFixture()
	p := createPayment(t, svc, 1000, time.Now().AddDate(0, 0, 10), MethodCheque)

	_, err := svc.RecordPartialPayment(context.Background(), RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 500, Method: MethodCheque, Date: day(2026, 1, 10),
	})
	require.ErrorIs(t, err, ErrChequeRequired)
}

func TestRecordPartialPaymentOnCancelled(t *testing.T) {
	_, svc := newObligationFixture()
	ctx := context.Background()
	p := createPayment(t, svc, 1000, time.Now().AddDate(0, 0, 10), MethodTransfer)
	require.NoError(t, svc.CancelPayment(ctx, p.ID))

	_, err := svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 500, Method: MethodTransfer, Date: day(2026, 1, 10),
	})
	require.ErrorIs(t, err, ErrPaymentCancelled)
}

func TestTransferPartialEmitsPendingBankTransaction(t *testing.T) {
	repo, svc := newObligationFixture()
	ctx := context.Background()
	p := createPayment(t, svc, 1000, time.Now().AddDate(0, 0, 10), MethodTransfer)

	_, err := svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 1000, Method: MethodTransfer, Date: day(2026, 2, 1), Reference: "TRF-9",
	})
	require.NoError(t, err)

	txs, err := repo.ListBankTransactions(ctx, BankTransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.False(t, txs[0].Reconciled)
	require.Equal(t, DirectionDebit, txs[0].Direction)
	require.Equal(t, TxMethodTransfer, txs[0].Method)
	require.Equal(t, OriginManual, txs[0].Origin)
	require.EqualValues(t, 1000, txs[0].Amount)
}

func TestNonTransferPartialEmitsNoBankTransaction(t *testing.T) {
	repo, svc := newObligationFixture()
	ctx := context.Background()
	p := createPayment(t, svc, 1000, time.Now().AddDate(0, 0, 10), MethodPettyCash)

	_, err := svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 1000, Method: MethodPettyCash, Date: day(2026, 2, 1),
	})
	require.NoError(t, err)

	txs, err := repo.ListBankTransactions(ctx, BankTransactionFilter{})
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestChangeMethodRejectedWhenPaid(t *testing.T) {
	_, svc := newObligationFixture()
	ctx := context.Background()
	p := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 10), MethodPettyCash)

	_, err := svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 500, Method: MethodPettyCash, Date: day(2026, 2, 1),
	})
	require.NoError(t, err)

	err = svc.ChangeMethod(ctx, p.ID, MethodTransfer)
	require.ErrorIs(t, err, ErrMethodChangeRejected)
}

func TestChangeMethodAwayFromChequeCancelsCheque(t *testing.T) {
	repo, svc := newObligationFixture()
	ctx := context.Background()
	cheques := NewChequeService(repo, nil, nil)

	p := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 10), MethodCheque)
	ch, err := cheques.Issue(ctx, IssueChequeInput{
		PaymentID: p.ID, Number: "77", Amount: 500, Payee: "Acme", IssueDate: day(2026, 3, 1),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ChangeMethod(ctx, p.ID, MethodTransfer))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, MethodTransfer, got.Method)
	require.Nil(t, got.ChequeID)

	chAfter, err := repo.GetCheque(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, ChequeCancelled, chAfter.State)
	require.Nil(t, chAfter.PaymentID)
}

func TestChangeMethodSameMethodIsNoop(t *testing.T) {
	_, svc := newObligationFixture()
	p := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 10), MethodTransfer)
	require.NoError(t, svc.ChangeMethod(context.Background(), p.ID, MethodTransfer))
}

func TestCancelPayment(t *testing.T) {
	repo, svc := newObligationFixture()
	ctx := context.Background()
	cheques := NewChequeService(repo, nil, nil)

	p := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 10), MethodCheque)
	ch, err := cheques.Issue(ctx, IssueChequeInput{
		PaymentID: p.ID, Number: "88", Amount: 500, Payee: "Acme", IssueDate: day(2026, 3, 1),
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelPayment(ctx, p.ID))
	// Idempotent.
	require.NoError(t, svc.CancelPayment(ctx, p.ID))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentCancelled, got.State)

	chAfter, err := repo.GetCheque(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, ChequeCancelled, chAfter.State)
}

func TestCancelPaymentRejectsReconciled(t *testing.T) {
	repo, svc := newObligationFixture()
	ctx := context.Background()
	engine := NewMatchingEngine(repo, nil, nil, nil)
	banktx := NewBankTransactionService(repo, nil)

	p := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 10), MethodTransfer)
	bt, err := banktx.Add(ctx, AddBankTransactionInput{
		Date: day(2026, 2, 1), Description: "wire", Amount: 500, Direction: DirectionDebit, Method: TxMethodTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, engine.ReconcileManually(ctx, bt.ID, p.ID))

	err = svc.CancelPayment(ctx, p.ID)
	require.ErrorIs(t, err, ErrAlreadyReconciled)
}

func TestListOutstanding(t *testing.T) {
	_, svc := newObligationFixture()
	ctx := context.Background()

	a := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 5), MethodTransfer)
	b := createPayment(t, svc, 300, time.Now().AddDate(0, 0, -3), MethodTransfer)
	paid := createPayment(t, svc, 200, time.Now().AddDate(0, 0, 5), MethodPettyCash)
	_, err := svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: paid.ID, Amount: 200, Method: MethodPettyCash, Date: day(2026, 2, 1),
	})
	require.NoError(t, err)

	out, err := svc.ListOutstanding(ctx, PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Ordered by due date: the overdue one first.
	require.Equal(t, b.ID, out[0].ID)
	require.Equal(t, a.ID, out[1].ID)
}

func TestAgingBuckets(t *testing.T) {
	_, svc := newObligationFixture()
	ctx := context.Background()
	asOf := day(2026, 6, 1)

	createPayment(t, svc, 100, asOf.AddDate(0, 0, 10), MethodTransfer)  // current
	createPayment(t, svc, 200, asOf.AddDate(0, 0, -10), MethodTransfer) // 30 bucket
	createPayment(t, svc, 300, asOf.AddDate(0, 0, -45), MethodTransfer) // 60 bucket
	createPayment(t, svc, 400, asOf.AddDate(0, 0, -80), MethodTransfer) // 90 bucket
	createPayment(t, svc, 500, asOf.AddDate(0, 0, -200), MethodTransfer)

	bucket, err := svc.Aging(ctx, asOf)
	require.NoError(t, err)
	require.EqualValues(t, 100, bucket.Current)
	require.EqualValues(t, 200, bucket.Bucket30)
	require.EqualValues(t, 300, bucket.Bucket60)
	require.EqualValues(t, 400, bucket.Bucket90)
	require.EqualValues(t, 500, bucket.Bucket120)
	require.EqualValues(t, 1500, bucket.Total())
}

func TestDeriveState(t *testing.T) {
	now := day(2026, 5, 15)
	due := day(2026, 5, 20)

	require.Equal(t, PaymentPending, DeriveState(1000, nil, due, now))
	require.Equal(t, PaymentOverdue, DeriveState(1000, nil, day(2026, 5, 14), now))
	// Due today is not overdue.
	require.Equal(t, PaymentPending, DeriveState(1000, nil, day(2026, 5, 15), now))

	partials := []PartialPayment{{Amount: 400}}
	require.Equal(t, PaymentPartiallyPaid, DeriveState(1000, partials, due, now))
	// Partially paid wins over overdue.
	require.Equal(t, PaymentPartiallyPaid, DeriveState(1000, partials, day(2026, 1, 1), now))

	partials = append(partials, PartialPayment{Amount: 600})
	require.Equal(t, PaymentPaid, DeriveState(1000, partials, due, now))
}

func TestAmountsMatch(t *testing.T) {
	require.True(t, AmountsMatch(1000, 1000))
	require.True(t, AmountsMatch(1000, 1001))
	require.True(t, AmountsMatch(1001, 1000))
	require.False(t, AmountsMatch(1000, 1002))
}
