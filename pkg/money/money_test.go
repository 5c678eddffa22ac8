package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		european bool
		want     string
	}{
		{"plain", "123.45", false, "123.45"},
		{"thousands", "1,234.56", false, "1234.56"},
		{"negative", "-1,234.56", false, "-1234.56"},
		{"parentheses", "(1,234.56)", false, "-1234.56"},
		{"currency symbol", "£1,234.56", false, "1234.56"},
		{"negative with symbol", "-£1,234.56", false, "-1234.56"},
		{"debit suffix", "500.00DR", false, "-500"},
		{"credit suffix", "500.00CR", false, "500"},
		{"lowercase debit suffix", "500.00Dr", false, "-500"},
		{"european", "1.234,56", true, "1234.56"},
		{"european negative", "-1.234,56", true, "-1234.56"},
		{"integer", "42", false, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.european)
			require.NoError(t, err)
			want, err := decimal.NewFromString(tt.want)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "--", "()"} {
		_, err := ParseAmount(input, false)
		assert.Error(t, err, "input %q", input)
	}
}

func TestDetectCurrency(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"£1,234.56", "GBP"},
		{"€99.00", "EUR"},
		{"$50", "USD"},
		{"₹500", "INR"},
		{"Total SAR 120.00", "SAR"},
		{"1,234.56", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectCurrency(tt.input), "input %q", tt.input)
	}
}

func TestFormatTotal(t *testing.T) {
	d := decimal.RequireFromString("1234.56")

	assert.Equal(t, "£1,234.56", FormatTotal(d, "GBP"))
	assert.Equal(t, "$1,234.56", FormatTotal(d, "USD"))

	// Unknown code falls back to a bare fixed-point number
	assert.Equal(t, "1234.56", FormatTotal(d, ""))
	assert.Equal(t, "1234.56", FormatTotal(d, "ZZZ"))
}

func TestFormatTotal_Negative(t *testing.T) {
	d := decimal.RequireFromString("-500")
	got := FormatTotal(d, "USD")
	assert.Contains(t, got, "500.00")
}
