package utils

import (
	"fmt"
	"math"
	"strconv"
)

// Context keys carried through flow calls for audit logging
const (
	RequestIDKey = "X-Request-ID"
	EndpointKey  = "Endpoint"
)

// Store token permissions carried in JWT claims
const (
	PermissionCreatePullPayments = "payouts:create-pull-payments"
	PermissionManagePayouts      = "payouts:manage"
	PermissionViewPayouts        = "payouts:view"
)

// Payout processing constants
const (
	// DefaultBOLT11ExpirationMinutes bounds how long an approved lightning
	// payout keeps its locked rate
	DefaultBOLT11ExpirationMinutes = 30

	// MaxCancelBatchSize caps the number of payout ids in one cancel request
	MaxCancelBatchSize = 100
)

// currencyExponents maps currency codes to their minor-unit exponent
var currencyExponents = map[string]int{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"JPY": 0,
	"BTC": 8,
	"SAT": 0,
}

// CurrencyExponent returns the minor-unit exponent for a currency code,
// defaulting to 2 for unknown fiat codes
func CurrencyExponent(currency string) int {
	if exp, ok := currencyExponents[currency]; ok {
		return exp
	}
	return 2
}

// IsKnownCurrency reports whether the currency code has a registered exponent
func IsKnownCurrency(currency string) bool {
	_, ok := currencyExponents[currency]
	return ok
}

// MinorToMajor converts minor units to a major-unit float, e.g. cents to dollars
func MinorToMajor(amount uint64, currency string) float64 {
	return float64(amount) / math.Pow10(CurrencyExponent(currency))
}

// MajorToMinor converts a major-unit value to minor units, rounding half up
func MajorToMinor(value float64, currency string) uint64 {
	scaled := value * math.Pow10(CurrencyExponent(currency))
	return uint64(math.Round(scaled))
}

// FormatMajor renders minor units as a fixed-point decimal string
func FormatMajor(amount uint64, currency string) string {
	exp := CurrencyExponent(currency)
	if exp == 0 {
		return strconv.FormatUint(amount, 10)
	}
	div := uint64(math.Pow10(exp))
	return fmt.Sprintf("%d.%0*d", amount/div, exp, amount%div)
}

// FormatCoinAmount renders a rail-side amount with 8 decimal places
func FormatCoinAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
