package statement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paydesk/paydesk/internal/ledger"
)

// Row is one tabular line from a bank export, keyed by column name.
type Row map[string]string

// Candidate is a normalized bank-transaction candidate. Cheque and payment
// references come from a read-only join against the existing cheque set; the
// normalizer never mutates any store.
type Candidate struct {
	Date         time.Time
	Description  string
	Amount       int64
	Direction    ledger.Direction
	Method       ledger.TxMethod
	ChequeNumber string
	ChequeID     *int64
	PaymentID    *int64
	Reconciled   bool
	Reference    string
}

// Input converts the candidate into the repository's add input. The cheque
// number rides in the reference when the source carried none, so the matching
// engine can still resolve the cheque later.
func (c Candidate) Input() ledger.AddBankTransactionInput {
	ref := c.Reference
	if ref == "" {
		ref = c.ChequeNumber
	}
	return ledger.AddBankTransactionInput{
		Date:        c.Date,
		Description: c.Description,
		Amount:      c.Amount,
		Direction:   c.Direction,
		Method:      c.Method,
		Origin:      ledger.OriginImported,
		Reference:   ref,
		ChequeID:    c.ChequeID,
		PaymentID:   c.PaymentID,
		Reconciled:  c.Reconciled,
	}
}

// SkippedRow records one dropped input row and why.
type SkippedRow struct {
	Index  int
	Reason string
}

// Result carries the candidates and the rows the normalizer dropped.
type Result struct {
	Candidates []Candidate
	Skipped    []SkippedRow
}

// ChequeLookup is the read-only join against the cheque tracker.
type ChequeLookup interface {
	FindByNumber(ctx context.Context, number string) (ledger.Cheque, error)
}

// Normalize converts heterogeneous export rows into transaction candidates.
// Deterministic: the same rows and the same cheque set always produce the
// same result. Malformed rows are counted and dropped, never fatal.
func Normalize(ctx context.Context, profile Profile, rows []Row, cheques ChequeLookup) (Result, error) {
	if profile.Name == "" {
		return Result{}, errors.New("statement: profile required")
	}
	result := Result{}
	for i, row := range rows {
		candidate, reason, err := normalizeRow(ctx, profile, row, cheques)
		if err != nil {
			return Result{}, err
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedRow{Index: i, Reason: reason})
			continue
		}
		result.Candidates = append(result.Candidates, candidate)
	}
	return result, nil
}

// normalizeRow returns a non-empty skip reason for rows that should be
// dropped, and an error only for lookup failures.
func normalizeRow(ctx context.Context, profile Profile, row Row, cheques ChequeLookup) (Candidate, string, error) {
	date, ok := parseDate(profile, row[profile.DateColumn])
	if !ok {
		return Candidate{}, "unparseable date", nil
	}

	value, ok := resolveAmount(profile, row)
	if !ok {
		return Candidate{}, "unparseable amount", nil
	}
	if value == 0 {
		return Candidate{}, "zero amount", nil
	}
	direction := ledger.DirectionCredit
	if value < 0 {
		direction = ledger.DirectionDebit
		value = -value
	}

	description := strings.TrimSpace(row[profile.DescriptionColumn])
	method, chequeNumber := Classify(description)

	candidate := Candidate{
		Date:         date,
		Description:  description,
		Amount:       value,
		Direction:    direction,
		Method:       method,
		ChequeNumber: chequeNumber,
		Reference:    strings.TrimSpace(row[profile.ReferenceColumn]),
	}

	if chequeNumber != "" && cheques != nil {
		ch, err := cheques.FindByNumber(ctx, chequeNumber)
		if err == nil {
			candidate.ChequeID = &ch.ID
			if ch.PaymentID != nil {
				paymentID := *ch.PaymentID
				candidate.PaymentID = &paymentID
				candidate.Reconciled = true
			}
		} else if !errors.Is(err, ledger.ErrChequeNotFound) {
			return Candidate{}, "", fmt.Errorf("statement: cheque lookup: %w", err)
		}
	}
	return candidate, "", nil
}

func parseDate(profile Profile, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range profile.DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveAmount yields a signed minor-unit value from either the single
// signed column or the split credit/debit pair.
func resolveAmount(profile Profile, row Row) (int64, bool) {
	if !profile.Split() {
		return ParseAmount(row[profile.AmountColumn])
	}
	credit, creditOK := ParseAmount(row[profile.CreditColumn])
	debit, debitOK := ParseAmount(row[profile.DebitColumn])
	switch {
	case creditOK && credit != 0:
		return credit, true
	case debitOK && debit != 0:
		if debit < 0 {
			return debit, true
		}
		return -debit, true
	case creditOK || debitOK:
		return 0, true
	default:
		return 0, false
	}
}

// ParseAmount parses a decimal currency string into minor units. Both
// dot-decimal ("1,234.56") and comma-decimal ("1.234,56") notations are
// accepted; sub-cent digits are not.
func ParseAmount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	decimalSep := byte(0)
	if lastComma > lastDot {
		decimalSep = ','
	} else if lastDot > lastComma {
		decimalSep = '.'
	}

	intPart, fracPart := s, ""
	if decimalSep != 0 {
		idx := strings.LastIndexByte(s, decimalSep)
		intPart, fracPart = s[:idx], s[idx+1:]
		// A three-digit tail after the only separator is a thousands group.
		if len(fracPart) == 3 && strings.Count(s, string(decimalSep)) == 1 &&
			!strings.ContainsAny(intPart, ".,") {
			intPart, fracPart = intPart+fracPart, ""
		}
	}
	intPart = strings.Map(func(r rune) rune {
		if r == '.' || r == ',' {
			return -1
		}
		return r
	}, intPart)

	if intPart == "" && fracPart == "" {
		return 0, false
	}
	if len(fracPart) > 2 {
		return 0, false
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}

	var value int64
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, false
		}
		value = value*10 + int64(r-'0')
	}
	if negative {
		value = -value
	}
	return value, true
}
