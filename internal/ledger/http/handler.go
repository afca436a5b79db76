// Package ledgerhttp exposes the reconciliation ledger over JSON HTTP.
package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/paydesk/paydesk/internal/ledger"
	"github.com/paydesk/paydesk/internal/platform/httpx"
	"github.com/paydesk/paydesk/internal/statement"
	"github.com/paydesk/paydesk/jobs"
)

const dateLayout = "2006-01-02"

type obligationService interface {
	CreatePayment(ctx context.Context, input ledger.CreatePaymentInput) (ledger.Payment, error)
	Get(ctx context.Context, paymentID int64) (ledger.Payment, error)
	List(ctx context.Context, filter ledger.PaymentFilter) ([]ledger.Payment, error)
	ListOutstanding(ctx context.Context, filter ledger.PaymentFilter) ([]ledger.Payment, error)
	Aging(ctx context.Context, asOf time.Time) (ledger.AgingBucket, error)
	RecordPartialPayment(ctx context.Context, input ledger.RecordPartialPaymentInput) (ledger.PartialPayment, error)
	CancelPayment(ctx context.Context, paymentID int64) error
	ReverseToPending(ctx context.Context, paymentID int64) error
	ChangeMethod(ctx context.Context, paymentID int64, method ledger.PaymentMethod) error
}

type chequeService interface {
	Issue(ctx context.Context, input ledger.IssueChequeInput) (ledger.Cheque, error)
	Get(ctx context.Context, id int64) (ledger.Cheque, error)
	List(ctx context.Context, filter ledger.ChequeFilter) ([]ledger.Cheque, error)
	MarkCleared(ctx context.Context, chequeID int64, clearDate time.Time) error
}

type transactionService interface {
	Add(ctx context.Context, input ledger.AddBankTransactionInput) (ledger.BankTransaction, error)
	Get(ctx context.Context, id int64) (ledger.BankTransaction, error)
	List(ctx context.Context, filter ledger.BankTransactionFilter) ([]ledger.BankTransaction, error)
	Remove(ctx context.Context, id int64) error
}

type reconcileService interface {
	AutoReconcile(ctx context.Context, transactionIDs []int64) (ledger.ReconciliationReport, error)
	ReconcileManually(ctx context.Context, transactionID, paymentID int64) error
	Unreconcile(ctx context.Context, transactionID int64) error
}

type importEnqueuer interface {
	EnqueueStatementImport(ctx context.Context, payload jobs.StatementImportPayload) (*asynq.TaskInfo, error)
}

// Handler wires the ledger services to HTTP endpoints.
type Handler struct {
	logger       *slog.Logger
	validator    *validator.Validate
	payments     obligationService
	cheques      chequeService
	transactions transactionService
	engine       reconcileService
	importer     importEnqueuer
}

// NewHandler constructs a Handler instance. The importer may be nil; statement
// import then responds 503.
func NewHandler(logger *slog.Logger, payments obligationService, cheques chequeService, transactions transactionService, engine reconcileService, importer importEnqueuer) *Handler {
	return &Handler{
		logger:       logger,
		validator:    validator.New(),
		payments:     payments,
		cheques:      cheques,
		transactions: transactions,
		engine:       engine,
		importer:     importer,
	}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.createPayment)
		r.Get("/", h.listPayments)
		r.Get("/outstanding", h.listOutstanding)
		r.Get("/aging", h.aging)
		r.Get("/{id}", h.getPayment)
		r.Post("/{id}/partial-payments", h.recordPartial)
		r.Post("/{id}/cancel", h.cancelPayment)
		r.Post("/{id}/reverse", h.reversePayment)
		r.Post("/{id}/method", h.changeMethod)
	})
	r.Route("/cheques", func(r chi.Router) {
		r.Post("/", h.issueCheque)
		r.Get("/", h.listCheques)
		r.Get("/{id}", h.getCheque)
		r.Post("/{id}/clear", h.clearCheque)
	})
	r.Route("/bank-transactions", func(r chi.Router) {
		r.Post("/", h.addTransaction)
		r.Get("/", h.listTransactions)
		r.Get("/{id}", h.getTransaction)
		r.Delete("/{id}", h.removeTransaction)
		r.Post("/{id}/unreconcile", h.unreconcile)
	})
	r.Route("/reconcile", func(r chi.Router) {
		r.Post("/auto", h.autoReconcile)
		r.Post("/manual", h.manualReconcile)
	})
	r.Route("/statements", func(r chi.Router) {
		r.Post("/import", h.importStatement)
		r.Get("/profiles", h.listProfiles)
	})
}

// --- payments ---

type createPaymentRequest struct {
	SupplierID int64  `json:"supplier_id" validate:"required,gt=0"`
	Reference  string `json:"reference" validate:"required"`
	Type       string `json:"type"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	DueDate    string `json:"due_date" validate:"required"`
	Method     string `json:"method"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	dueDate, ok := h.parseDate(w, req.DueDate, "due_date")
	if !ok {
		return
	}
	payment, err := h.payments.CreatePayment(r.Context(), ledger.CreatePaymentInput{
		SupplierID: req.SupplierID,
		Reference:  req.Reference,
		Type:       ledger.PaymentType(strings.ToUpper(req.Type)),
		Amount:     req.Amount,
		DueDate:    dueDate,
		Method:     ledger.PaymentMethod(strings.ToUpper(req.Method)),
	})
	if err != nil {
		h.respondError(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newPaymentView(payment))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payment, err := h.payments.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPaymentView(payment))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.paymentFilter(w, r)
	if !ok {
		return
	}
	payments, err := h.payments.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPaymentListView(payments))
}

func (h *Handler) listOutstanding(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.paymentFilter(w, r)
	if !ok {
		return
	}
	payments, err := h.payments.ListOutstanding(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list outstanding", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPaymentListView(payments))
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("as_of")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	bucket, err := h.payments.Aging(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "aging", err)
		return
	}
	httpx.JSON(w, http.StatusOK, agingView{
		AsOf:      asOf.Format(dateLayout),
		Current:   bucket.Current,
		Bucket30:  bucket.Bucket30,
		Bucket60:  bucket.Bucket60,
		Bucket90:  bucket.Bucket90,
		Bucket120: bucket.Bucket120,
		Total:     bucket.Total(),
	})
}

type recordPartialRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Method    string `json:"method" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Reference string `json:"reference"`
}

func (h *Handler) recordPartial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req recordPartialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	date, ok := h.parseDate(w, req.Date, "date")
	if !ok {
		return
	}
	partial, err := h.payments.RecordPartialPayment(r.Context(), ledger.RecordPartialPaymentInput{
		PaymentID: id,
		Amount:    req.Amount,
		Method:    ledger.PaymentMethod(strings.ToUpper(req.Method)),
		Date:      date,
		Reference: req.Reference,
	})
	if err != nil {
		h.respondError(w, "record partial payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newPartialView(partial))
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.payments.CancelPayment(r.Context(), id); err != nil {
		h.respondError(w, "cancel payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.payments.ReverseToPending(r.Context(), id); err != nil {
		h.respondError(w, "reverse payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeMethodRequest struct {
	Method string `json:"method" validate:"required"`
}

func (h *Handler) changeMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req changeMethodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	if err := h.payments.ChangeMethod(r.Context(), id, ledger.PaymentMethod(strings.ToUpper(req.Method))); err != nil {
		h.respondError(w, "change method", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- cheques ---

type issueChequeRequest struct {
	PaymentID int64  `json:"payment_id" validate:"required,gt=0"`
	Number    string `json:"number" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Payee     string `json:"payee" validate:"required"`
	IssueDate string `json:"issue_date" validate:"required"`
}

func (h *Handler) issueCheque(w http.ResponseWriter, r *http.Request) {
	var req issueChequeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	issueDate, ok := h.parseDate(w, req.IssueDate, "issue_date")
	if !ok {
		return
	}
	cheque, err := h.cheques.Issue(r.Context(), ledger.IssueChequeInput{
		PaymentID: req.PaymentID,
		Number:    req.Number,
		Amount:    req.Amount,
		Payee:     req.Payee,
		IssueDate: issueDate,
	})
	if err != nil {
		h.respondError(w, "issue cheque", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newChequeView(cheque))
}

func (h *Handler) getCheque(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	cheque, err := h.cheques.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get cheque", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newChequeView(cheque))
}

func (h *Handler) listCheques(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.ChequeFilter{
		State:  ledger.ChequeState(strings.ToUpper(strings.TrimSpace(q.Get("state")))),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}
	cheques, err := h.cheques.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list cheques", err)
		return
	}
	views := make([]chequeView, 0, len(cheques))
	for _, ch := range cheques {
		views = append(views, newChequeView(ch))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cheques": views})
}

type clearChequeRequest struct {
	ClearDate string `json:"clear_date" validate:"required"`
}

func (h *Handler) clearCheque(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req clearChequeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	clearDate, ok := h.parseDate(w, req.ClearDate, "clear_date")
	if !ok {
		return
	}
	if err := h.cheques.MarkCleared(r.Context(), id, clearDate); err != nil {
		h.respondError(w, "clear cheque", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- bank transactions ---

type addTransactionRequest struct {
	Date        string `json:"date" validate:"required"`
	Description string `json:"description"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Direction   string `json:"direction" validate:"required,oneof=CREDIT DEBIT credit debit"`
	Method      string `json:"method"`
	Reference   string `json:"reference"`
}

func (h *Handler) addTransaction(w http.ResponseWriter, r *http.Request) {
	var req addTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	date, ok := h.parseDate(w, req.Date, "date")
	if !ok {
		return
	}
	tx, err := h.transactions.Add(r.Context(), ledger.AddBankTransactionInput{
		Date:        date,
		Description: req.Description,
		Amount:      req.Amount,
		Direction:   ledger.Direction(strings.ToUpper(req.Direction)),
		Method:      ledger.TxMethod(strings.ToUpper(req.Method)),
		Origin:      ledger.OriginManual,
		Reference:   req.Reference,
	})
	if err != nil {
		h.respondError(w, "add transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newTransactionView(tx))
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTransactionView(tx))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.BankTransactionFilter{
		Direction: ledger.Direction(strings.ToUpper(strings.TrimSpace(q.Get("direction")))),
		Origin:    ledger.TxOrigin(strings.ToUpper(strings.TrimSpace(q.Get("origin")))),
		Limit:     queryInt(q.Get("limit")),
		Offset:    queryInt(q.Get("offset")),
	}
	if raw := strings.TrimSpace(q.Get("reconciled")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "reconciled must be true or false")
			return
		}
		filter.Reconciled = &value
	}
	for param, target := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(q.Get(param))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", param+" must be YYYY-MM-DD")
			return
		}
		*target = parsed
	}
	txs, err := h.transactions.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list transactions", err)
		return
	}
	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, newTransactionView(tx))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": views})
}

func (h *Handler) removeTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.transactions.Remove(r.Context(), id); err != nil {
		h.respondError(w, "remove transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unreconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Unreconcile(r.Context(), id); err != nil {
		h.respondError(w, "unreconcile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- reconciliation ---

type autoReconcileRequest struct {
	TransactionIDs []int64 `json:"transaction_ids"`
}

func (h *Handler) autoReconcile(w http.ResponseWriter, r *http.Request) {
	var req autoReconcileRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
			return
		}
	}
	report, err := h.engine.AutoReconcile(r.Context(), req.TransactionIDs)
	if err != nil {
		h.respondError(w, "auto reconcile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newReportView(report))
}

type manualReconcileRequest struct {
	TransactionID int64 `json:"transaction_id" validate:"required,gt=0"`
	PaymentID     int64 `json:"payment_id" validate:"required,gt=0"`
}

func (h *Handler) manualReconcile(w http.ResponseWriter, r *http.Request) {
	var req manualReconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	if err := h.engine.ReconcileManually(r.Context(), req.TransactionID, req.PaymentID); err != nil {
		h.respondError(w, "manual reconcile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- statement imports ---

type importStatementRequest struct {
	Profile string          `json:"profile" validate:"required"`
	Rows    []statement.Row `json:"rows" validate:"required,min=1"`
}

func (h *Handler) importStatement(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Import unavailable", "statement import queue is not configured")
		return
	}
	var req importStatementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "malformed JSON body")
		return
	}
	if !h.validate(w, req) {
		return
	}
	if _, ok := statement.ProfileByName(req.Profile); !ok {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown profile", "no statement profile named "+req.Profile)
		return
	}
	batchID := uuid.NewString()
	_, err := h.importer.EnqueueStatementImport(r.Context(), jobs.StatementImportPayload{
		BatchID: batchID,
		Profile: req.Profile,
		Rows:    req.Rows,
	})
	if err != nil {
		h.logger.Error("enqueue statement import", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "could not enqueue import")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"rows":     len(req.Rows),
	})
}

func (h *Handler) listProfiles(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"profiles": statement.ProfileNames()})
}

// --- helpers ---

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) validate(w http.ResponseWriter, req any) bool {
	err := h.validator.Struct(req)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "invalid fields: "+strings.Join(fields, ", "))
		return false
	}
	httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
	return false
}

func (h *Handler) parseDate(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}

func queryInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrPaymentNotFound),
		errors.Is(err, ledger.ErrChequeNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrOverpayment),
		errors.Is(err, ledger.ErrChequeRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ledger.ErrMethodChangeRejected),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrAlreadyReconciled),
		errors.Is(err, ledger.ErrNotReconciled),
		errors.Is(err, ledger.ErrPaymentCancelled),
		errors.Is(err, ledger.ErrChequeAlreadyIssued),
		errors.Is(err, ledger.ErrPaymentNotCheque),
		errors.Is(err, ledger.ErrTransactionReconciled),
		errors.Is(err, ledger.ErrDuplicateChequeNumber):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "unexpected error")
	}
}

func (h *Handler) paymentFilter(w http.ResponseWriter, r *http.Request) (ledger.PaymentFilter, bool) {
	q := r.URL.Query()
	filter := ledger.PaymentFilter{
		SupplierID: int64(queryInt(q.Get("supplier_id"))),
		Method:     ledger.PaymentMethod(strings.ToUpper(strings.TrimSpace(q.Get("method")))),
		Limit:      queryInt(q.Get("limit")),
		Offset:     queryInt(q.Get("offset")),
	}
	if raw := strings.TrimSpace(q.Get("state")); raw != "" {
		for _, state := range strings.Split(raw, ",") {
			filter.States = append(filter.States, ledger.PaymentState(strings.ToUpper(strings.TrimSpace(state))))
		}
	}
	for param, target := range map[string]*time.Time{"due_after": &filter.DueAfter, "due_before": &filter.DueBefore} {
		raw := strings.TrimSpace(q.Get(param))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", param+" must be YYYY-MM-DD")
			return ledger.PaymentFilter{}, false
		}
		*target = parsed
	}
	return filter, true
}
