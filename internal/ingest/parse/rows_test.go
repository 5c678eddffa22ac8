package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlocklisted(t *testing.T) {
	blocked := []string{
		"BALANCE BROUGHT FORWARD 1,234.56",
		"Opening Balance 500.00",
		"closing balance 2,000.00",
		"TOTAL 9,999.00",
		"Page 2 of 5",
	}
	for _, line := range blocked {
		assert.True(t, isBlocklisted(line), "line %q", line)
	}

	assert.False(t, isBlocklisted("05/01/2024 COFFEE SHOP -4.50"))
	assert.False(t, isBlocklisted("05/01/2024 SALARY PAYMENT 2,500.00"))
}

func TestIsAmountToken(t *testing.T) {
	valid := []string{"123.45", "1,234.56", "-4.50", "(1,234.56)", "£99.00", "500.00DR", "500.00CR", "42"}
	for _, tok := range valid {
		assert.True(t, isAmountToken(tok), "token %q", tok)
	}

	invalid := []string{"COFFEE", "05/01/2024", "1.2.3.4", "", "12345678901"}
	for _, tok := range invalid {
		assert.False(t, isAmountToken(tok), "token %q", tok)
	}
}

func TestSanitizeOCRAmounts(t *testing.T) {
	// Misread digits inside amount-shaped tokens are repaired
	assert.Equal(t, "COFFEE 14.50", sanitizeOCRAmounts("COFFEE l4.S0"))
	assert.Equal(t, "SHOP 108.00", sanitizeOCRAmounts("SHOP lO8.OO"))

	// Words and clean amounts are untouched
	assert.Equal(t, "SALARY 2,500.00", sanitizeOCRAmounts("SALARY 2,500.00"))
	assert.Equal(t, "OIL COMPANY 10.00", sanitizeOCRAmounts("OIL COMPANY 10.00"))
}

func TestParseDate(t *testing.T) {
	formats := []string{"02/01/2006", "2006-01-02", "2 Jan 2006", "2 Jan"}

	tests := []struct {
		tokens   []string
		want     time.Time
		consumed int
	}{
		{[]string{"05/01/2024", "COFFEE"}, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 1},
		{[]string{"2024-01-05", "COFFEE"}, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 1},
		{[]string{"5", "Jan", "2024", "COFFEE"}, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 3},
		{[]string{"5", "Jan", "COFFEE"}, time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), 2},
	}

	for _, tt := range tests {
		got, consumed, ok := parseDate(tt.tokens, formats, 2023)
		require.True(t, ok, "tokens %v", tt.tokens)
		assert.Equal(t, tt.consumed, consumed)
		assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
	}

	_, _, ok := parseDate([]string{"COFFEE", "SHOP"}, formats, 2023)
	assert.False(t, ok)
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "COFFEE SHOP", CleanDescription("  COFFEE \x00 SHOP  "))
	assert.Equal(t, "A B", CleanDescription("A\t\tB"))
	assert.Equal(t, "", CleanDescription("\x01\x02"))
}

func TestDetectAccountNumber(t *testing.T) {
	assert.Equal(t, "12345678", DetectAccountNumber("Account Number: 12345678"))
	assert.Equal(t, "12345678", DetectAccountNumber("account no. 1234 5678 sort code"))
	assert.Equal(t, "GB29NWBK60161331926819", DetectAccountNumber("IBAN GB29NWBK60161331926819"))
	assert.Empty(t, DetectAccountNumber("no identifiers here"))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"TESCO STORES 3412", "groceries"},
		{"UBER TRIP HELP.UBER.COM", "transport"},
		{"MONTHLY SALARY PAYMENT", "salary"},
		{"ATM WITHDRAWAL HIGH ST", "cash"},
		{"STANDING ORDER RENT", "transfer"},
		{"UNKNOWN MERCHANT 42", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.description), "description %q", tt.description)
	}
}

func TestIsCandidateLine(t *testing.T) {
	assert.True(t, isCandidateLine("05/01/2024 COFFEE SHOP -4.50"))
	assert.True(t, isCandidateLine("05/01/2024 COFFEE SHOP -4.50 995.50"))

	assert.False(t, isCandidateLine("Statement of Account"))
	assert.False(t, isCandidateLine("BALANCE BROUGHT FORWARD 1,234.56"))
	assert.False(t, isCandidateLine("short"))
	assert.False(t, isCandidateLine("Your bank thanks you for your business"))
}
