package service

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Order numbers are the human-facing handle: ORD-YYYYMMDD-XXXXXX. The suffix
// alphabet drops lookalike characters (0/O, 1/I/L) because these numbers get
// read over the phone. Uniqueness is enforced by the database; creation
// retries on the (vanishingly rare) collision.
const orderNumberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const orderNumberAttempts = 3

func newOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), buf), nil
}
