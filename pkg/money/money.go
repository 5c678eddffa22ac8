// Package money provides amount parsing and currency-tagged display values for
// extracted statement figures. Amounts flow through the pipeline as
// shopspring/decimal; go-money is used only at the display edge where a
// currency code is attached.
package money

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	GBP = "GBP" // British Pound
	SAR = "SAR" // Saudi Riyal
	INR = "INR" // Indian Rupee
)

// currencySymbols maps symbols seen in statement text to ISO codes.
// Order matters: multi-rune symbols are checked before single-rune ones.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"SAR", SAR},
	{"USD", USD},
	{"EUR", EUR},
	{"GBP", GBP},
	{"INR", INR},
	{"£", GBP},
	{"€", EUR},
	{"₹", INR},
	{"$", USD},
}

// DetectCurrency returns the ISO code hinted at by a raw amount string, or ""
// when no symbol is present.
func DetectCurrency(s string) string {
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code
		}
	}
	return ""
}

// ParseAmount parses a raw amount string into a decimal.
// Accepts "1,234.56", "1.234,56" (European), "-£1,234.56" and "(1,234.56)"
// accounting-style negatives.
func ParseAmount(s string, europeanFormat bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "") // non-breaking space
	s = strings.ReplaceAll(s, " ", "")

	for _, cs := range currencySymbols {
		s = strings.ReplaceAll(s, cs.symbol, "")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	// Trailing DR/CR markers some banks append to the amount column
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "DR") {
		negative = true
		s = s[:len(s)-2]
	} else if strings.HasSuffix(upper, "CR") {
		s = s[:len(s)-2]
	}

	if europeanFormat {
		// European: 1.234,56 -> 1234.56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		// American: 1,234.56 -> 1234.56
		s = strings.ReplaceAll(s, ",", "")
	}

	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatTotal renders a decimal total with its currency for display, e.g. in
// statement summaries. An unknown or empty code falls back to a bare number.
func FormatTotal(d decimal.Decimal, currencyCode string) string {
	currency := gomoney.GetCurrency(currencyCode)
	if currency == nil {
		return d.StringFixed(2)
	}

	cents := d.Mul(decimal.New(1, int32(currency.Fraction))).Round(0).IntPart()
	return gomoney.New(cents, currency.Code).Display()
}
