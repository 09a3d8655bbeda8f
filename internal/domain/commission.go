package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CommissionKind selects how a commission is derived from an order's amount.
type CommissionKind string

const (
	CommissionFixed      CommissionKind = "FIXED"
	CommissionPercentage CommissionKind = "PERCENTAGE"
)

// ErrInvalidPolicy rejects malformed commission policies (negative value,
// unknown kind). It carries the validation kind so callers surface it as 400.
var ErrInvalidPolicy = &Error{Kind: KindValidation, Message: "invalid commission policy"}

// CommissionPolicy is the per-exchange, per-direction fee rule. An order
// snapshots the computed commission at creation; changing the policy later
// never touches existing orders.
type CommissionPolicy struct {
	Kind  CommissionKind  `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Validate checks the policy shape without computing anything.
func (p CommissionPolicy) Validate() error {
	switch p.Kind {
	case CommissionFixed, CommissionPercentage:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, p.Kind)
	}
	if p.Value.IsNegative() {
		return fmt.Errorf("%w: value must not be negative, got %s", ErrInvalidPolicy, p.Value)
	}
	return nil
}

// Compute derives the commission for an order amount.
//
// FIXED charges Value regardless of amount. PERCENTAGE charges
// amount * Value / 100, rounded half-up to JOD precision exactly once.
func (p CommissionPolicy) Compute(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Zero, err
	}
	switch p.Kind {
	case CommissionFixed:
		return RoundJOD(p.Value), nil
	case CommissionPercentage:
		return RoundJOD(amount.Mul(p.Value).Div(decimal.NewFromInt(100))), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, p.Kind)
	}
}
