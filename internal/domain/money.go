package domain

import "github.com/shopspring/decimal"

// MinorUnitExponent is the number of decimal places in the platform currency.
const MinorUnitExponent = 2

// FormatAmount renders minor units as a fixed two-place decimal string.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -MinorUnitExponent).StringFixed(MinorUnitExponent)
}

// ParseAmount converts a decimal string in major units to minor units. It
// rejects values with more precision than the currency carries.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(MinorUnitExponent)
	if !minor.IsInteger() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}
