package parse

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/pkg/money"
)

// Profile declaratively describes one bank statement layout: which date
// formats appear, how the trailing numeric tokens map to amount, debit,
// credit and balance, and how signs are expressed.
type Profile struct {
	Name        string
	DateFormats []string

	// European switches amount parsing to comma-decimal notation
	European bool

	// DebitCredit layouts carry separate debit and credit columns; when the
	// flattened row keeps both, amount is credit minus debit.
	DebitCredit bool

	// TrailingBalance layouts end every row with the running balance, so the
	// amount is the numeric token before it.
	TrailingBalance bool

	// RequireExplicitSign rejects rows whose amount carries no sign marker
	RequireExplicitSign bool

	// DebitKeywords force a negative sign when the layout itself is ambiguous
	DebitKeywords []string
}

// lineParse is a successfully recognized transaction row
type lineParse struct {
	date         time.Time
	description  string
	amount       decimal.Decimal
	balance      *decimal.Decimal
	signInferred bool
}

var slashDateFormats = []string{
	"02/01/2006", "2/1/2006", "02/01/06",
	"02-01-2006", "2-1-2006",
	"2006-01-02",
}

var ukDateFormats = []string{
	"02 Jan 2006", "2 Jan 2006",
	"02 January 2006", "2 January 2006",
	"02 Jan", "2 Jan",
}

var defaultDebitKeywords = []string{
	"withdrawal", "purchase", "payment", "debit", "fee", "charge",
	"atm", "pos ", "card ", "transfer to", "direct debit", "standing order",
}

// Registry returns the known layout profiles in scoring order. Order matters:
// it is the final tie-break when two profiles fit a document equally well.
func Registry() []Profile {
	return []Profile{
		{
			Name:            "generic-table",
			DateFormats:     slashDateFormats,
			TrailingBalance: true,
			DebitKeywords:   defaultDebitKeywords,
		},
		{
			Name:          "generic-text",
			DateFormats:   slashDateFormats,
			DebitKeywords: defaultDebitKeywords,
		},
		{
			Name:          "debit-credit",
			DateFormats:   slashDateFormats,
			DebitCredit:   true,
			DebitKeywords: defaultDebitKeywords,
		},
		{
			Name:                "signed-amount",
			DateFormats:         slashDateFormats,
			RequireExplicitSign: true,
		},
		{
			Name:            "uk-style",
			DateFormats:     ukDateFormats,
			TrailingBalance: true,
			DebitKeywords:   defaultDebitKeywords,
		},
	}
}

// parseLine recognizes one candidate line under this profile. The second
// return is false when the line does not match the layout.
func (p *Profile) parseLine(line string, refYear int) (*lineParse, bool) {
	line = sanitizeOCRAmounts(line)
	tokens := strings.Fields(line)

	date, consumed, ok := parseDate(tokens, p.DateFormats, refYear)
	if !ok {
		return nil, false
	}

	rest := mergeSignSuffixes(tokens[consumed:])

	// Trailing numeric run, right to left, at most three tokens
	start := len(rest)
	for start > 0 && len(rest)-start < 3 && isAmountToken(rest[start-1]) {
		start--
	}
	numerics := rest[start:]
	if len(numerics) == 0 || start == 0 {
		return nil, false
	}

	description := CleanDescription(strings.Join(rest[:start], " "))
	if description == "" {
		return nil, false
	}

	result := &lineParse{date: date, description: description}

	switch {
	case p.DebitCredit && len(numerics) == 3:
		debit, err1 := money.ParseAmount(numerics[0], p.European)
		credit, err2 := money.ParseAmount(numerics[1], p.European)
		balance, err3 := money.ParseAmount(numerics[2], p.European)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, false
		}
		result.amount = credit.Sub(debit.Abs())
		result.balance = &balance

	case p.TrailingBalance && len(numerics) >= 2:
		amount, err1 := money.ParseAmount(numerics[len(numerics)-2], p.European)
		balance, err2 := money.ParseAmount(numerics[len(numerics)-1], p.European)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		if p.RequireExplicitSign && !hasExplicitSign(numerics[len(numerics)-2]) {
			return nil, false
		}
		result.amount = amount
		result.balance = &balance
		p.inferSign(result, numerics[len(numerics)-2])

	default:
		token := numerics[len(numerics)-1]
		amount, err := money.ParseAmount(token, p.European)
		if err != nil {
			return nil, false
		}
		if p.RequireExplicitSign && !hasExplicitSign(token) {
			return nil, false
		}
		result.amount = amount
		p.inferSign(result, token)
	}

	if result.amount.IsZero() && result.balance == nil {
		return nil, false
	}
	return result, true
}

// inferSign negates an unsigned amount when the description reads like a
// debit. Marks the parse so profile scoring can prefer explicit layouts.
func (p *Profile) inferSign(lp *lineParse, amountToken string) {
	if hasExplicitSign(amountToken) || lp.amount.IsNegative() {
		return
	}
	lower := strings.ToLower(lp.description)
	for _, kw := range p.DebitKeywords {
		if strings.Contains(lower, kw) {
			lp.amount = lp.amount.Neg()
			lp.signInferred = true
			return
		}
	}
}

// hasExplicitSign reports whether an amount token carries its own sign marker
func hasExplicitSign(token string) bool {
	if strings.HasPrefix(token, "-") || strings.HasPrefix(token, "+") || strings.HasPrefix(token, "(") {
		return true
	}
	upper := strings.ToUpper(token)
	return strings.HasSuffix(upper, "DR") || strings.HasSuffix(upper, "CR")
}

// mergeSignSuffixes joins standalone DR/CR tokens onto the preceding numeric
// token so the amount parser sees them as one unit.
func mergeSignSuffixes(tokens []string) []string {
	merged := make([]string, 0, len(tokens))
	for _, t := range tokens {
		upper := strings.ToUpper(t)
		if (upper == "DR" || upper == "CR") && len(merged) > 0 && isAmountToken(merged[len(merged)-1]) {
			merged[len(merged)-1] += upper
			continue
		}
		merged = append(merged, t)
	}
	return merged
}
