package statement

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/paydesk/paydesk/internal/ledger"
)

// Keyword tables per method. Descriptions are accent-folded and lowercased
// before scanning, so "TRANSFERÊNCIA" and "transferencia" hit the same entry.
var (
	chequeKeywords   = []string{"cheque", "check", "chq"}
	transferKeywords = []string{"transferencia", "transfer", "ted", "doc", "pix", "wire"}
	depositKeywords  = []string{"deposito", "deposit"}
)

var chequeNumberPattern = regexp.MustCompile(`(?:cheque|check|chq)\s*(?:n[oº°]?\.?\s*)?(\d+)`)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases a description and strips diacritics for keyword scanning.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Classify infers the settlement method of a transaction from its free-text
// description and extracts a cheque number when one follows a cheque keyword.
// It is a pure function over the keyword tables above.
func Classify(description string) (ledger.TxMethod, string) {
	folded := Fold(description)
	for _, kw := range chequeKeywords {
		if strings.Contains(folded, kw) {
			number := ""
			if m := chequeNumberPattern.FindStringSubmatch(folded); m != nil {
				number = m[1]
			}
			return ledger.TxMethodCheque, number
		}
	}
	for _, kw := range transferKeywords {
		if containsToken(folded, kw) {
			return ledger.TxMethodTransfer, ""
		}
	}
	for _, kw := range depositKeywords {
		if strings.Contains(folded, kw) {
			return ledger.TxMethodDeposit, ""
		}
	}
	return ledger.TxMethodOther, ""
}

// containsToken matches whole words only, so "doc" does not fire inside
// "document".
func containsToken(folded, token string) bool {
	if len(token) > 3 {
		return strings.Contains(folded, token)
	}
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, f := range fields {
		if f == token {
			return true
		}
	}
	return false
}
