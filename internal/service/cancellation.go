package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/models"
	"github.com/qaddoumi/tahweel/internal/repository"
)

// CancellationAction is the admin resolution of a cancellation request.
type CancellationAction string

const (
	CancellationApprove CancellationAction = "approve"
	CancellationReject  CancellationAction = "reject"
)

type RequestCancellationRequest struct {
	OrderID uuid.UUID
	Reason  string
	ActorID *uuid.UUID
}

// RequestCancellation flags a non-terminal order for cancellation. The
// request is idempotent: asking again while the flag is already set changes
// nothing and succeeds.
func (s *OrderService) RequestCancellation(ctx context.Context, req RequestCancellationRequest) (*models.Order, error) {
	var (
		order   models.Order
		already bool
	)
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		order, err = qtx.GetOrderForUpdate(ctx, repository.ToPgUUID(req.OrderID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFoundf("order %s not found", req.OrderID)
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if order.Status.Terminal() {
			return domain.InvalidTransitionf("order %s: cannot request cancellation while %s", order.OrderNumber, order.Status)
		}
		if order.CancellationRequested {
			already = true
			return nil
		}

		reason := textParam(strings.TrimSpace(req.Reason))
		rows, err := qtx.SetOrderCancellationRequested(ctx, repository.SetOrderCancellationRequestedParams{
			ID:     repository.ToPgUUID(req.OrderID),
			Reason: reason,
		})
		if err != nil {
			return fmt.Errorf("set cancellation flag: %w", err)
		}
		if err := requireExactlyOne(rows, "set cancellation flag"); err != nil {
			return err
		}
		order.CancellationRequested = true
		order.CancellationReason = reason

		metadata, err := marshalReasonMetadata(strings.TrimSpace(req.Reason))
		if err != nil {
			return fmt.Errorf("marshal cancellation metadata: %w", err)
		}
		return s.audit.Write(ctx, qtx, "order", order.ID, req.ActorID, "cancellation_requested", string(order.Status), string(order.Status), metadata)
	})
	if err != nil {
		return nil, err
	}

	if !already {
		s.publish(ctx, order, "cancellation_requested")
	}
	order.RefreshUrgency(time.Now())
	return &order, nil
}

type ResolveCancellationRequest struct {
	OrderID uuid.UUID
	Action  CancellationAction
	Reason  string
	ActorID *uuid.UUID
}

// ResolveCancellation settles a pending cancellation request. Approving
// cancels the order; for an OUTGOING order this refunds the amount plus
// commission that was debited at submission, in the same transaction.
// Rejecting clears the flag and leaves the order where it was.
func (s *OrderService) ResolveCancellation(ctx context.Context, req ResolveCancellationRequest) (*models.Order, error) {
	action := CancellationAction(strings.ToLower(strings.TrimSpace(string(req.Action))))
	switch action {
	case CancellationApprove, CancellationReject:
	default:
		return nil, domain.Validationf("action must be approve or reject")
	}
	reason := strings.TrimSpace(req.Reason)
	if action == CancellationReject && reason == "" {
		return nil, domain.Validationf("reason is required when rejecting a cancellation request")
	}

	var order models.Order
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		order, err = qtx.GetOrderForUpdate(ctx, repository.ToPgUUID(req.OrderID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFoundf("order %s not found", req.OrderID)
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if !order.CancellationRequested || order.Status.Terminal() {
			return domain.InvalidTransitionf("order %s has no pending cancellation request", order.OrderNumber)
		}

		metadata, err := marshalReasonMetadata(reason)
		if err != nil {
			return fmt.Errorf("marshal resolution metadata: %w", err)
		}

		switch action {
		case CancellationApprove:
			if order.Direction == domain.DirectionOutgoing {
				ex, err := qtx.GetExchangeForUpdate(ctx, repository.ToPgUUID(order.ExchangeID))
				if err != nil {
					return fmt.Errorf("lock exchange: %w", err)
				}
				refund := order.Amount.Add(order.Commission)
				if _, err := applyBalanceEffect(ctx, qtx, &ex, &order.ID, refund, domain.ReasonCancellationRefund); err != nil {
					return err
				}
			}
			if err := transitionOrder(ctx, qtx, s.audit, &order, domain.StatusCancelled, req.ActorID, "cancellation_approved", metadata, func() (int64, error) {
				return qtx.MarkOrderCancelled(ctx, repository.ToPgUUID(req.OrderID))
			}); err != nil {
				return err
			}
			order.CancellationRequested = false

		case CancellationReject:
			rows, err := qtx.ClearOrderCancellation(ctx, repository.ToPgUUID(req.OrderID))
			if err != nil {
				return fmt.Errorf("clear cancellation flag: %w", err)
			}
			if err := requireExactlyOne(rows, "clear cancellation flag"); err != nil {
				return err
			}
			order.CancellationRequested = false
			if err := s.audit.Write(ctx, qtx, "order", order.ID, req.ActorID, "cancellation_rejected", string(order.Status), string(order.Status), metadata); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventAction := "cancellation_approved"
	if action == CancellationReject {
		eventAction = "cancellation_rejected"
	}
	s.publish(ctx, order, eventAction)
	order.RefreshUrgency(time.Now())
	return &order, nil
}
