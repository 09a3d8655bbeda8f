package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/events"
	"github.com/qaddoumi/tahweel/internal/models"
	"github.com/qaddoumi/tahweel/internal/observability"
	"github.com/qaddoumi/tahweel/internal/repository"
)

// OrderService orchestrates the order lifecycle: creation, review,
// completion and the cancellation workflow. Every mutating entry point is a
// single transaction; validation that needs no data runs before the
// transaction opens so bad requests never take a row lock.
type OrderService struct {
	store  QueryStore
	audit  *AuditService
	events *events.Publisher
}

func NewOrderService(store QueryStore, publisher *events.Publisher) *OrderService {
	return &OrderService{
		store:  store,
		audit:  NewAuditService(store),
		events: publisher,
	}
}

// Jordanian mobile numbers: optional country prefix, then 77/78/79 + 7 digits.
var jordanMobileRe = regexp.MustCompile(`^(?:\+962|00962|0)7[789]\d{7}$`)

// CreateOrderRequest holds the parameters for submitting an order.
type CreateOrderRequest struct {
	ExchangeID        uuid.UUID
	Direction         domain.Direction
	Amount            decimal.Decimal
	SenderName        string
	RecipientName     string
	BankName          string
	CliqBankAliasName string
	CliqMobileNumber  string
	PaymentProofRef   string
	ActorID           *uuid.UUID
}

// Validate checks everything that does not require exchange data.
func (r CreateOrderRequest) Validate() error {
	if r.ExchangeID == uuid.Nil {
		return domain.Validationf("exchange_id is required")
	}
	if !r.Direction.Valid() {
		return domain.Validationf("direction must be INCOMING or OUTGOING")
	}
	if !domain.ValidAmount(r.Amount) {
		return domain.Validationf("amount must be positive with at most %d decimal places", domain.MinorUnits)
	}

	switch r.Direction {
	case domain.DirectionOutgoing:
		if strings.TrimSpace(r.CliqBankAliasName) == "" {
			return domain.Validationf("cliq_bank_alias_name is required for outgoing orders")
		}
		if !jordanMobileRe.MatchString(strings.TrimSpace(r.CliqMobileNumber)) {
			return domain.Validationf("cliq_mobile_number is not a valid Jordanian mobile number")
		}
	case domain.DirectionIncoming:
		if strings.TrimSpace(r.BankName) == "" {
			return domain.Validationf("bank_name is required for incoming orders")
		}
		if strings.TrimSpace(r.PaymentProofRef) == "" {
			return domain.Validationf("payment_proof_ref is required for incoming orders")
		}
	}
	return nil
}

// OrderCreated is the creation result: the persisted order plus the balance
// after the outgoing debit (unchanged for incoming orders).
type OrderCreated struct {
	Order      models.Order
	NewBalance decimal.Decimal
}

// CreateOrder validates the request, then in one transaction: locks the
// exchange row, checks the bank allow-list against the current configuration
// (a snapshot check, never re-validated later), freezes commission and net
// amount from the policy at this instant, debits outgoing funds, and inserts
// the order in SUBMITTED. Two concurrent creations against one exchange
// serialize on the row lock, so the balance never loses an update.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderCreated, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result OrderCreated
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		orderNumber, err := newOrderNumber(time.Now())
		if err != nil {
			return nil, err
		}

		err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
			ex, err := qtx.GetExchangeForUpdate(ctx, repository.ToPgUUID(req.ExchangeID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return domain.NotFoundf("exchange %s not found", req.ExchangeID)
				}
				return fmt.Errorf("lock exchange: %w", err)
			}

			if err := checkBankAllowed(ex, req.Direction, req.BankName); err != nil {
				return err
			}

			policy := ex.IncomingCommission
			if req.Direction == domain.DirectionOutgoing {
				policy = ex.OutgoingCommission
			}
			commission, err := policy.Compute(req.Amount)
			if err != nil {
				return err
			}

			// INCOMING: net is what the exchange will be credited on
			// completion. OUTGOING: net is the total debited right now.
			netAmount := req.Amount.Sub(commission)
			if req.Direction == domain.DirectionOutgoing {
				netAmount = req.Amount.Add(commission)
			}

			orderID := uuid.New()
			result.NewBalance = ex.Balance
			if req.Direction == domain.DirectionOutgoing {
				result.NewBalance, err = applyBalanceEffect(ctx, qtx, &ex, &orderID, netAmount.Neg(), domain.ReasonOrderDebit)
				if err != nil {
					return err
				}
			}

			order, err := qtx.InsertOrder(ctx, repository.InsertOrderParams{
				ID:               repository.ToPgUUID(orderID),
				OrderNumber:      orderNumber,
				ExchangeID:       repository.ToPgUUID(req.ExchangeID),
				Direction:        req.Direction,
				Status:           domain.StatusSubmitted,
				Amount:           req.Amount,
				Commission:       commission,
				NetAmount:        netAmount,
				SenderName:       textParam(strings.TrimSpace(req.SenderName)),
				RecipientName:    textParam(strings.TrimSpace(req.RecipientName)),
				BankName:         textParam(strings.TrimSpace(req.BankName)),
				CliqAliasName:    textParam(strings.TrimSpace(req.CliqBankAliasName)),
				CliqMobileNumber: textParam(strings.TrimSpace(req.CliqMobileNumber)),
				PaymentProofRef:  textParam(strings.TrimSpace(req.PaymentProofRef)),
			})
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			result.Order = order

			return s.audit.Write(ctx, qtx, "order", orderID, req.ActorID, "created", "", string(domain.StatusSubmitted), nil)
		})
		if err != nil {
			if isUniqueViolation(err, "orders_order_number_key") {
				zap.L().Warn("order number collision, retrying", zap.String("order_number", orderNumber))
				continue
			}
			return nil, err
		}

		observability.IncrementOrderTransition("created", string(domain.StatusSubmitted))
		s.publish(ctx, result.Order, "created")
		result.Order.RefreshUrgency(time.Now())
		return &result, nil
	}

	return nil, fmt.Errorf("order number generation exhausted %d attempts", orderNumberAttempts)
}

// checkBankAllowed validates the bank name against the exchange's allow-list
// for the order's direction. INCOMING always carries a bank; OUTGOING may
// omit it (CliQ transfers address by alias, not bank).
func checkBankAllowed(ex models.Exchange, direction domain.Direction, bankName string) error {
	bank := strings.TrimSpace(bankName)
	if bank == "" {
		return nil
	}
	allowed := ex.AllowedIncomingBanks
	if direction == domain.DirectionOutgoing {
		allowed = ex.AllowedOutgoingBanks
	}
	for _, b := range allowed {
		if strings.EqualFold(b, bank) {
			return nil
		}
	}
	return domain.PolicyViolationf("bank %q is not allowed for %s orders on this exchange", bank, strings.ToLower(string(direction)))
}

// GetOrder fetches an order with the urgency flag derived against now.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, repository.ToPgUUID(orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundf("order %s not found", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order.RefreshUrgency(time.Now())
	return &order, nil
}

// ListOrders returns an exchange's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, exchangeID uuid.UUID, limit, offset int32) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := s.store.Queries().ListOrdersByExchange(ctx, repository.ListOrdersByExchangeParams{
		ExchangeID: repository.ToPgUUID(exchangeID),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	now := time.Now()
	for i := range orders {
		orders[i].RefreshUrgency(now)
	}
	return orders, nil
}

// publish emits a lifecycle event after commit. Delivery is best-effort:
// the transaction already committed, so a broker hiccup must not fail the call.
func (s *OrderService) publish(ctx context.Context, order models.Order, action string) {
	evt := events.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ExchangeID:  order.ExchangeID,
		Action:      action,
		Status:      string(order.Status),
		Direction:   string(order.Direction),
		Amount:      order.Amount.String(),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		zap.L().Warn("order event publish failed",
			zap.Error(err),
			zap.String("order_id", order.ID.String()),
			zap.String("action", action),
		)
	}
}
