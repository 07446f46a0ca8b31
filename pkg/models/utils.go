package models

import (
	"github.com/shopspring/decimal"
)

// DecimalFromString creates a decimal from string with error handling
func DecimalFromString(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalFromFloat creates a decimal from float64
func DecimalFromFloat(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// DecimalFromInt creates a decimal from int64
func DecimalFromInt(value int64) decimal.Decimal {
	return decimal.NewFromInt(value)
}

// DecimalPtr returns a pointer to a copy of d, for building patches.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func BoolPtr(b bool) *bool       { return &b }
func IntPtr(i int) *int          { return &i }
func StringPtr(s string) *string { return &s }
