package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/models"
	"github.com/qaddoumi/tahweel/internal/repository"
)

// ReviewAction is the admin decision on a submitted order.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

type ResolveReviewRequest struct {
	OrderID uuid.UUID
	Action  ReviewAction
	Reason  string
	ActorID *uuid.UUID
}

// ResolveReview approves an order into PROCESSING or rejects it with a
// reason. A rejected OUTGOING order keeps its creation-time debit: reversal
// is an explicit admin action through the cancellation workflow, never a
// side effect of rejection.
func (s *OrderService) ResolveReview(ctx context.Context, req ResolveReviewRequest) (*models.Order, error) {
	action := ReviewAction(strings.ToLower(strings.TrimSpace(string(req.Action))))
	switch action {
	case ReviewApprove, ReviewReject:
	default:
		return nil, domain.Validationf("action must be approve or reject")
	}
	reason := strings.TrimSpace(req.Reason)
	if action == ReviewReject && reason == "" {
		return nil, domain.Validationf("reason is required when rejecting an order")
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

		metadata, err := marshalReasonMetadata(reason)
		if err != nil {
			return fmt.Errorf("marshal review metadata: %w", err)
		}

		switch action {
		case ReviewApprove:
			if err := transitionOrder(ctx, qtx, s.audit, &order, domain.StatusProcessing, req.ActorID, "review_approved", metadata, func() (int64, error) {
				return qtx.MarkOrderProcessing(ctx, repository.ToPgUUID(req.OrderID))
			}); err != nil {
				return err
			}
			now := time.Now()
			order.ApprovedAt = &now
		case ReviewReject:
			if err := transitionOrder(ctx, qtx, s.audit, &order, domain.StatusRejected, req.ActorID, "review_rejected", metadata, func() (int64, error) {
				return qtx.MarkOrderRejected(ctx, repository.MarkOrderRejectedParams{
					ID:     repository.ToPgUUID(req.OrderID),
					Reason: reason,
				})
			}); err != nil {
				return err
			}
			order.RejectionReason = &reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventAction := "review_approved"
	if action == ReviewReject {
		eventAction = "review_rejected"
	}
	s.publish(ctx, order, eventAction)
	order.RefreshUrgency(time.Now())
	return &order, nil
}

type CompleteOrderRequest struct {
	OrderID uuid.UUID
	ActorID *uuid.UUID
	// CompletionProofRef is required for OUTGOING orders: the opaque
	// reference to the already-stored transfer receipt image.
	CompletionProofRef *string
	// ActualAmount optionally overrides the face amount of an INCOMING
	// order when the received sum differs from what was declared.
	ActualAmount *decimal.Decimal
}

// CompleteOrder finalizes a PROCESSING order. OUTGOING orders were debited
// at submission, so completion only attaches the proof. INCOMING orders are
// credited here: the (possibly overridden) received amount minus the
// commission frozen at creation.
func (s *OrderService) CompleteOrder(ctx context.Context, req CompleteOrderRequest) (*models.Order, error) {
	if req.ActualAmount != nil && !domain.ValidAmount(*req.ActualAmount) {
		return nil, domain.Validationf("actual_amount must be positive with at most %d decimal places", domain.MinorUnits)
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

		// Gate before any side effect so an illegal completion never even
		// computes a balance mutation that would have to roll back.
		if !domain.CanTransition(order.Status, domain.StatusCompleted) {
			return domain.InvalidTransitionf("order %s: cannot complete while %s", order.OrderNumber, order.Status)
		}

		var proofRef *string
		switch order.Direction {
		case domain.DirectionOutgoing:
			if req.ActualAmount != nil {
				return domain.Validationf("actual_amount applies to incoming orders only")
			}
			if req.CompletionProofRef == nil || strings.TrimSpace(*req.CompletionProofRef) == "" {
				return domain.Validationf("completion proof is required for outgoing orders")
			}
			proofRef = req.CompletionProofRef

		case domain.DirectionIncoming:
			if req.CompletionProofRef != nil {
				return domain.Validationf("completion proof applies to outgoing orders only")
			}
			credit := order.NetAmount
			if req.ActualAmount != nil {
				credit = domain.RoundJOD(req.ActualAmount.Sub(order.Commission))
				if credit.IsNegative() {
					return domain.Validationf("actual_amount %s does not cover the %s commission", req.ActualAmount, order.Commission)
				}
			}
			// The credit must land in the same commit as the status change;
			// lock order first, then exchange, the same ordering every
			// operation uses.
			ex, err := qtx.GetExchangeForUpdate(ctx, repository.ToPgUUID(order.ExchangeID))
			if err != nil {
				return fmt.Errorf("lock exchange: %w", err)
			}
			if _, err := applyBalanceEffect(ctx, qtx, &ex, &order.ID, credit, domain.ReasonOrderCredit); err != nil {
				return err
			}
		}

		if err := transitionOrder(ctx, qtx, s.audit, &order, domain.StatusCompleted, req.ActorID, "completed", nil, func() (int64, error) {
			return qtx.MarkOrderCompleted(ctx, repository.MarkOrderCompletedParams{
				ID:                 repository.ToPgUUID(req.OrderID),
				CompletionProofRef: proofRef,
			})
		}); err != nil {
			return err
		}
		if proofRef != nil {
			order.CompletionProofRef = proofRef
		}
		now := time.Now()
		order.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, order, "completed")
	order.RefreshUrgency(time.Now())
	return &order, nil
}
