package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/models"
	"github.com/qaddoumi/tahweel/internal/repository"
)

// applyBalanceEffect mutates the balance of an exchange the caller has
// already locked FOR UPDATE and appends the matching ledger entry in the
// same transaction. A negative effect debits, a positive one credits.
// The exchange struct is updated in place so subsequent effects within the
// transaction see the new balance.
func applyBalanceEffect(
	ctx context.Context,
	qtx *repository.Queries,
	ex *models.Exchange,
	orderID *uuid.UUID,
	effect decimal.Decimal,
	reason string,
) (decimal.Decimal, error) {
	if effect.IsZero() {
		return ex.Balance, nil
	}

	newBalance := ex.Balance.Add(effect)
	if effect.IsNegative() && newBalance.IsNegative() && !ex.AllowNegativeBalance {
		return decimal.Zero, domain.PolicyViolationf(
			"insufficient balance: %s available, %s required", ex.Balance, effect.Neg())
	}

	rows, err := qtx.UpdateExchangeBalance(ctx, repository.UpdateExchangeBalanceParams{
		Balance: newBalance,
		ID:      repository.ToPgUUID(ex.ID),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("update exchange balance: %w", err)
	}
	if err := requireExactlyOne(rows, "update exchange balance"); err != nil {
		return decimal.Zero, err
	}

	direction := domain.EntryCredit
	amount := effect
	if effect.IsNegative() {
		direction = domain.EntryDebit
		amount = effect.Neg()
	}

	var orderRef pgtype.UUID
	if orderID != nil {
		orderRef = repository.ToPgUUID(*orderID)
	}
	if err := qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		ID:         repository.ToPgUUID(uuid.New()),
		ExchangeID: repository.ToPgUUID(ex.ID),
		OrderID:    orderRef,
		Amount:     amount,
		Direction:  direction,
		Reason:     reason,
	}); err != nil {
		return decimal.Zero, fmt.Errorf("insert ledger entry: %w", err)
	}

	ex.Balance = newBalance
	return newBalance, nil
}
