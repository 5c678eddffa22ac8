// Package parse turns extracted page content into transaction candidates.
// A profile registry describes known bank layouts; unknown banks are handled
// by scoring every profile against the document and picking the best fit.
package parse

import (
	"regexp"
	"strings"
	"time"
)

// blocklist filters header, footer and summary rows that look numeric enough
// to fool the line recognizer but are not transactions.
var blocklist = []string{
	"balance brought forward",
	"balance carried forward",
	"opening balance",
	"closing balance",
	"statement period",
	"page ",
	"total",
	"subtotal",
	"sheet number",
}

func isBlocklisted(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range blocklist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// amountToken matches a monetary token, optionally signed, with either
// thousands-grouped or plain digits and an optional DR/CR suffix.
var amountToken = regexp.MustCompile(`^[-+(]?[£€$₹]?\d{1,3}(?:[,.\s]\d{3})*(?:[.,]\d{1,2})?\)?(?:DR|CR|Dr|Cr)?$`)

func isAmountToken(token string) bool {
	return amountToken.MatchString(token)
}

// ocrDigitFixes repairs the classic tesseract confusions inside numeric
// tokens. Applied only to tokens that are otherwise amount-shaped.
var ocrDigitFixes = strings.NewReplacer(
	"O", "0",
	"o", "0",
	"l", "1",
	"I", "1",
	"S", "5",
	"B", "8",
)

// almostAmount matches a token that would be an amount if a few letters were
// misread digits.
var almostAmount = regexp.MustCompile(`^[-+(]?[0-9OolISB]{1,3}(?:[,.][0-9OolISB]{3})*[.,][0-9OolISB]{2}\)?$`)

// sanitizeOCRAmounts fixes misread digits in amount-shaped tokens of an OCR
// line. Tokens that already parse cleanly are left alone.
func sanitizeOCRAmounts(line string) string {
	tokens := strings.Fields(line)
	changed := false
	for i, t := range tokens {
		if isAmountToken(t) {
			continue
		}
		if almostAmount.MatchString(t) {
			tokens[i] = ocrDigitFixes.Replace(t)
			changed = true
		}
	}
	if !changed {
		return line
	}
	return strings.Join(tokens, " ")
}

// controlChars strips non-printable characters OCR sometimes leaves behind
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// CleanDescription normalizes a free-text description for storage
func CleanDescription(s string) string {
	s = controlChars.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// parseDate tries to read a date from the leading tokens of a row. Formats
// that span multiple tokens ("02 Jan 2024") consume more than one token; the
// return value reports how many were used.
func parseDate(tokens []string, formats []string, refYear int) (time.Time, int, bool) {
	for consumed := 3; consumed >= 1; consumed-- {
		if len(tokens) < consumed {
			continue
		}
		candidate := strings.Join(tokens[:consumed], " ")
		for _, format := range formats {
			if tokenCount(format) != consumed {
				continue
			}
			t, err := time.Parse(format, candidate)
			if err != nil {
				continue
			}
			// Yearless formats parse into year 0; pin them to the
			// statement's reference year.
			if t.Year() == 0 {
				t = time.Date(refYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
			return t, consumed, true
		}
	}
	return time.Time{}, 0, false
}

func tokenCount(format string) int {
	return len(strings.Fields(format))
}

// hasDigit is the cheapest transaction-likeness signal
func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// isCandidateLine decides whether a line is worth offering to a profile.
// The ratio of parsed lines to candidate lines is the profile fit score, so
// this must be generous but not include obvious prose.
func isCandidateLine(line string) bool {
	if len(line) < 8 || isBlocklisted(line) {
		return false
	}
	if !hasDigit(line) {
		return false
	}
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		return false
	}
	return isAmountToken(tokens[len(tokens)-1]) ||
		(len(tokens) > 1 && isAmountToken(tokens[len(tokens)-2]))
}

var accountNumberPattern = regexp.MustCompile(`(?i)(?:account\s*(?:no|number|#)\.?\s*:?\s*|a/c\s*:?\s*)([\d][\d\s-]{4,24}\d)`)
var ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)

// DetectAccountNumber scans statement text for an account identifier
func DetectAccountNumber(text string) string {
	if m := accountNumberPattern.FindStringSubmatch(text); m != nil {
		return strings.Join(strings.Fields(m[1]), "")
	}
	if m := ibanPattern.FindString(text); m != "" {
		return m
	}
	return ""
}

// categoryKeywords maps description keywords to a spending category
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"groceries", []string{"supermarket", "grocery", "tesco", "sainsbury", "aldi", "lidl", "walmart", "carrefour"}},
	{"dining", []string{"restaurant", "cafe", "coffee", "mcdonald", "pizza", "deliveroo", "uber eats"}},
	{"transport", []string{"uber", "taxi", "fuel", "petrol", "parking", "rail", "transit", "metro"}},
	{"utilities", []string{"electric", "water", "gas bill", "internet", "broadband", "mobile", "phone"}},
	{"salary", []string{"salary", "payroll", "wages"}},
	{"fees", []string{"fee", "charge", "commission", "interest"}},
	{"cash", []string{"atm", "cash withdrawal", "cashpoint"}},
	{"transfer", []string{"transfer", "standing order", "direct debit", "wire"}},
	{"rent", []string{"rent", "mortgage", "landlord"}},
}

// Categorize assigns a coarse category from description keywords, empty when
// nothing matches.
func Categorize(description string) string {
	lower := strings.ToLower(description)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return ""
}
