package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundJOD(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.5", "10.5"},
		{"10.1234", "10.123"},
		{"10.1235", "10.124"},
		{"10.9999", "11"},
		{"0.0005", "0.001"},
		{"0.0004", "0"},
	}
	for _, tc := range cases {
		d := decimal.RequireFromString(tc.in)
		assert.Equal(t, tc.want, RoundJOD(d).String(), "RoundJOD(%s)", tc.in)
	}
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(decimal.RequireFromString("150.250")))
	assert.True(t, ValidAmount(decimal.RequireFromString("0.001")))
	assert.True(t, ValidAmount(decimal.NewFromInt(1000)))

	assert.False(t, ValidAmount(decimal.Zero))
	assert.False(t, ValidAmount(decimal.RequireFromString("-5")))
	assert.False(t, ValidAmount(decimal.RequireFromString("1.0005")), "sub-fils precision must be rejected")
}
