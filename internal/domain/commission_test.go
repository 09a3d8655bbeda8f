package domain

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommissionPolicyValidate(t *testing.T) {
	ok := CommissionPolicy{Kind: CommissionFixed, Value: decimal.NewFromInt(2)}
	require.NoError(t, ok.Validate())

	zero := CommissionPolicy{Kind: CommissionPercentage, Value: decimal.Zero}
	require.NoError(t, zero.Validate(), "zero commission is a legal policy")

	badKind := CommissionPolicy{Kind: "TIERED", Value: decimal.NewFromInt(1)}
	err := badKind.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))

	negative := CommissionPolicy{Kind: CommissionFixed, Value: decimal.NewFromInt(-1)}
	err = negative.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestCommissionComputeFixed(t *testing.T) {
	p := CommissionPolicy{Kind: CommissionFixed, Value: decimal.RequireFromString("2.5")}

	got, err := p.Compute(decimal.RequireFromString("100"))
	require.NoError(t, err)
	assert.Equal(t, "2.5", got.String())

	// Fixed commission does not scale with the amount.
	got, err = p.Compute(decimal.RequireFromString("90000"))
	require.NoError(t, err)
	assert.Equal(t, "2.5", got.String())
}

func TestCommissionComputePercentage(t *testing.T) {
	p := CommissionPolicy{Kind: CommissionPercentage, Value: decimal.RequireFromString("1.5")}

	got, err := p.Compute(decimal.RequireFromString("200"))
	require.NoError(t, err)
	assert.Equal(t, "3", got.String())

	// 1.5% of 0.100 = 0.0015, rounds half-up to 0.002.
	got, err = p.Compute(decimal.RequireFromString("0.100"))
	require.NoError(t, err)
	assert.Equal(t, "0.002", got.String())

	// 1.5% of 0.033 = 0.000495, rounds to 0.
	got, err = p.Compute(decimal.RequireFromString("0.033"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCommissionComputeRejectsInvalidPolicy(t *testing.T) {
	p := CommissionPolicy{Kind: "UNKNOWN", Value: decimal.NewFromInt(1)}
	_, err := p.Compute(decimal.NewFromInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
	assert.Equal(t, KindValidation, KindOf(err))
}

// TestCommissionPercentageAgainstIntegerOracle cross-checks the decimal
// arithmetic against pure integer math in fils. amount = a fils, rate =
// pb/100 percent, so the exact commission in tenths of thousandths of a fil
// is a*pb; half-up rounding to whole fils is (a*pb + 5000) / 10000.
func TestCommissionPercentageAgainstIntegerOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 10_000; i++ {
		amountFils := rng.Int63n(1_000_000_000) + 1 // up to 1,000,000 JOD
		rateBasis := rng.Int63n(10_001)             // 0.00% .. 100.00%

		amount := decimal.New(amountFils, -3)
		p := CommissionPolicy{
			Kind:  CommissionPercentage,
			Value: decimal.New(rateBasis, -2),
		}

		got, err := p.Compute(amount)
		require.NoError(t, err)

		wantFils := (amountFils*rateBasis + 5_000) / 10_000
		want := decimal.New(wantFils, -3)
		require.True(t, got.Equal(want),
			"amount=%s rate=%s%%: got %s, want %s", amount, p.Value, got, want)
	}
}
