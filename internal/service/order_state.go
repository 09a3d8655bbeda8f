package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/models"
	"github.com/qaddoumi/tahweel/internal/observability"
	"github.com/qaddoumi/tahweel/internal/repository"
)

// transitionOrder moves an order the caller has locked FOR UPDATE to its
// next status. The domain transition table is the only gate: anything it
// does not list fails with an invalid-transition error and writes nothing.
// update performs the actual column change and reports rows affected; the
// audit record lands in the same transaction.
func transitionOrder(
	ctx context.Context,
	qtx *repository.Queries,
	audit *AuditService,
	order *models.Order,
	next domain.Status,
	actorID *uuid.UUID,
	action string,
	metadata []byte,
	update func() (int64, error),
) error {
	if !domain.CanTransition(order.Status, next) {
		return domain.InvalidTransitionf("order %s: cannot %s while %s", order.OrderNumber, action, order.Status)
	}

	rows, err := update()
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	if err := requireExactlyOne(rows, "update order state"); err != nil {
		return err
	}

	if err := audit.Write(ctx, qtx, "order", order.ID, actorID, action, string(order.Status), string(next), metadata); err != nil {
		return err
	}

	observability.IncrementOrderTransition(action, string(next))
	order.Status = next
	return nil
}
