package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	n, err := newOrderNumber(now)
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-20260315-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{6}$`, n)
}

func TestNewOrderNumberAvoidsAmbiguousCharacters(t *testing.T) {
	now := time.Now()
	for i := 0; i < 1000; i++ {
		n, err := newOrderNumber(now)
		require.NoError(t, err)
		suffix := n[strings.LastIndex(n, "-")+1:]
		assert.NotContains(t, suffix, "0")
		assert.NotContains(t, suffix, "1")
		assert.NotContains(t, suffix, "I")
		assert.NotContains(t, suffix, "L")
		assert.NotContains(t, suffix, "O")
	}
}
