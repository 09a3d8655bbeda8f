package domain

import (
	"github.com/shopspring/decimal"
)

// The system is single-currency by design. All amounts are Jordanian dinar.
const (
	Currency = "JOD"

	// MinorUnits is the number of decimal places JOD carries (1 JOD = 1000 fils).
	MinorUnits = 3
)

// RoundJOD rounds a monetary value to JOD precision using round-half-up.
// Every derived amount (commission, net amount) is rounded exactly once
// through this function so commissions and balances reconcile exactly.
func RoundJOD(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}

// ValidAmount reports whether d is a positive amount representable at JOD
// precision. Sub-fils amounts are rejected rather than silently rounded:
// the face value of an order is what the customer handed over.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(RoundJOD(d))
}
