package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/repository"
)

func TestCreateOutgoingOrderDebitsBalance(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000.000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)

	ctx := context.Background()
	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "150.250"))
	require.NoError(t, err)

	order := created.Order
	assert.Equal(t, domain.StatusSubmitted, order.Status)
	assert.True(t, order.Commission.Equal(decimal.RequireFromString("2")))
	assert.True(t, order.NetAmount.Equal(decimal.RequireFromString("152.250")))
	assert.True(t, created.NewBalance.Equal(decimal.RequireFromString("847.750")))
	assert.Regexp(t, `^ORD-\d{8}-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{6}$`, order.OrderNumber)

	requireBalance(t, pool, ex, "847.750")
	requireLedgerConsistent(t, pool)

	var reason string
	err = pool.QueryRow(ctx,
		"SELECT reason FROM ledger_entries WHERE order_id = $1", order.ID).Scan(&reason)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOrderDebit, reason)

	var auditCount int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM audit_log WHERE entity_id = $1 AND action = 'created'", order.ID).Scan(&auditCount)
	require.NoError(t, err)
	assert.Equal(t, 1, auditCount)
}

func TestIncomingOrderFreezesCommissionAtCreation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000.000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	exchangeSvc := NewExchangeService(store)

	ctx := context.Background()
	created, err := orderSvc.CreateOrder(ctx, incomingRequest(ex.ID, "200"))
	require.NoError(t, err)

	order := created.Order
	assert.True(t, order.Commission.Equal(decimal.RequireFromString("3")))
	assert.True(t, order.NetAmount.Equal(decimal.RequireFromString("197")))

	// Incoming orders touch the balance only on completion.
	requireBalance(t, pool, ex, "1000.000")

	// Doubling the commission rate must not affect the frozen order.
	require.NoError(t, exchangeSvc.UpdateCommission(ctx, ex.ID, domain.DirectionIncoming, percentPolicy("3"), nil))

	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{OrderID: order.ID, Action: ReviewApprove})
	require.NoError(t, err)

	completed, err := orderSvc.CompleteOrder(ctx, CompleteOrderRequest{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)

	requireBalance(t, pool, ex, "1197.000")
	requireLedgerConsistent(t, pool)
}

func TestCreateOrderValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateOrderRequest)
	}{
		{"missing_cliq_alias", func(r *CreateOrderRequest) { r.CliqBankAliasName = "" }},
		{"bad_mobile", func(r *CreateOrderRequest) { r.CliqMobileNumber = "0751234567" }},
		{"foreign_mobile", func(r *CreateOrderRequest) { r.CliqMobileNumber = "+14155551212" }},
		{"zero_amount", func(r *CreateOrderRequest) { r.Amount = decimal.Zero }},
		{"sub_fils_amount", func(r *CreateOrderRequest) { r.Amount = decimal.RequireFromString("10.0001") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := outgoingRequest(ex.ID, "100")
			tc.mutate(&req)
			_, err := orderSvc.CreateOrder(ctx, req)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}

	t.Run("incoming_missing_proof", func(t *testing.T) {
		req := incomingRequest(ex.ID, "100")
		req.PaymentProofRef = ""
		_, err := orderSvc.CreateOrder(ctx, req)
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("incoming_missing_bank", func(t *testing.T) {
		req := incomingRequest(ex.ID, "100")
		req.BankName = ""
		_, err := orderSvc.CreateOrder(ctx, req)
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("unknown_exchange", func(t *testing.T) {
		req := outgoingRequest(uuid.New(), "100")
		_, err := orderSvc.CreateOrder(ctx, req)
		require.Error(t, err)
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})

	// No order or balance change leaked out of the failed attempts.
	requireBalance(t, pool, ex, "1000")
	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&count))
	assert.Zero(t, count)
}

func TestCreateOrderBankNotAllowed(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)

	req := incomingRequest(ex.ID, "100")
	req.BankName = "Cairo Amman Bank"
	_, err := orderSvc.CreateOrder(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindPolicyViolation, domain.KindOf(err))

	// Allow-list matching is case-insensitive.
	req.BankName = "arab bank"
	_, err = orderSvc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
}

func TestConcurrentOutgoingCreationsSerialize(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orderSvc.CreateOrder(context.Background(), outgoingRequest(ex.ID, "100"))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	// Each order debits 102 (100 + fixed 2). No update may be lost.
	requireBalance(t, pool, ex, "592")
	requireLedgerConsistent(t, pool)

	require.NoError(t, NewReconciliationService(store).Run(context.Background()))
}

func TestReviewRejectKeepsDebit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "100"))
	require.NoError(t, err)
	requireBalance(t, pool, ex, "898")

	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{OrderID: created.Order.ID, Action: ReviewReject})
	require.Error(t, err, "rejection without a reason must fail")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	rejected, err := orderSvc.ResolveReview(ctx, ResolveReviewRequest{
		OrderID: created.Order.ID,
		Action:  ReviewReject,
		Reason:  "suspicious recipient",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)

	// Rejection never reverses the creation-time debit on its own.
	requireBalance(t, pool, ex, "898")
	requireLedgerConsistent(t, pool)

	// A terminal order accepts no further review.
	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{
		OrderID: created.Order.ID,
		Action:  ReviewApprove,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestCompleteOutgoingRequiresProof(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "100"))
	require.NoError(t, err)
	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{OrderID: created.Order.ID, Action: ReviewApprove})
	require.NoError(t, err)

	_, err = orderSvc.CompleteOrder(ctx, CompleteOrderRequest{OrderID: created.Order.ID})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	proof := "receipt-1.png"
	completed, err := orderSvc.CompleteOrder(ctx, CompleteOrderRequest{
		OrderID:            created.Order.ID,
		CompletionProofRef: &proof,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletionProofRef)

	// Outgoing funds left at creation; completion is balance-neutral.
	requireBalance(t, pool, ex, "898")
	requireLedgerConsistent(t, pool)
}

func TestCompleteIncomingWithActualAmount(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, incomingRequest(ex.ID, "200"))
	require.NoError(t, err)
	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{OrderID: created.Order.ID, Action: ReviewApprove})
	require.NoError(t, err)

	// Received 190 instead of the declared 200; the frozen 3 commission
	// still applies, so the credit is 187.
	actual := decimal.RequireFromString("190")
	completed, err := orderSvc.CompleteOrder(ctx, CompleteOrderRequest{
		OrderID:      created.Order.ID,
		ActualAmount: &actual,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)

	requireBalance(t, pool, ex, "1187")
	requireLedgerConsistent(t, pool)
}

func TestCompleteIncomingRejectsActualBelowCommission(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", fixedPolicy("5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, incomingRequest(ex.ID, "200"))
	require.NoError(t, err)
	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{OrderID: created.Order.ID, Action: ReviewApprove})
	require.NoError(t, err)

	actual := decimal.RequireFromString("4")
	_, err = orderSvc.CompleteOrder(ctx, CompleteOrderRequest{
		OrderID:      created.Order.ID,
		ActualAmount: &actual,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	// The failed completion must leave no trace on the balance.
	requireBalance(t, pool, ex, "1000")
	requireLedgerConsistent(t, pool)
}

func TestCancellationRequestIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "100"))
	require.NoError(t, err)

	first, err := orderSvc.RequestCancellation(ctx, RequestCancellationRequest{
		OrderID: created.Order.ID,
		Reason:  "customer changed their mind",
	})
	require.NoError(t, err)
	assert.True(t, first.CancellationRequested)
	assert.Equal(t, domain.StatusSubmitted, first.Status)

	second, err := orderSvc.RequestCancellation(ctx, RequestCancellationRequest{
		OrderID: created.Order.ID,
		Reason:  "asking again",
	})
	require.NoError(t, err)
	assert.True(t, second.CancellationRequested)

	var auditCount int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM audit_log WHERE entity_id = $1 AND action = 'cancellation_requested'",
		created.Order.ID).Scan(&auditCount))
	assert.Equal(t, 1, auditCount, "repeat request must not audit again")
}

func TestCancellationApproveRefundsOutgoing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "100"))
	require.NoError(t, err)
	requireBalance(t, pool, ex, "898")

	_, err = orderSvc.RequestCancellation(ctx, RequestCancellationRequest{OrderID: created.Order.ID})
	require.NoError(t, err)

	cancelled, err := orderSvc.ResolveCancellation(ctx, ResolveCancellationRequest{
		OrderID: created.Order.ID,
		Action:  CancellationApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	// The full debit (amount + commission) comes back.
	requireBalance(t, pool, ex, "1000")
	requireLedgerConsistent(t, pool)

	var reason string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT reason FROM ledger_entries WHERE order_id = $1 AND direction = 'credit'",
		created.Order.ID).Scan(&reason))
	assert.Equal(t, domain.ReasonCancellationRefund, reason)
}

func TestCancellationRejectKeepsOrderAlive(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "100"))
	require.NoError(t, err)
	_, err = orderSvc.RequestCancellation(ctx, RequestCancellationRequest{OrderID: created.Order.ID})
	require.NoError(t, err)

	_, err = orderSvc.ResolveCancellation(ctx, ResolveCancellationRequest{
		OrderID: created.Order.ID,
		Action:  CancellationReject,
	})
	require.Error(t, err, "rejecting without a reason must fail")

	kept, err := orderSvc.ResolveCancellation(ctx, ResolveCancellationRequest{
		OrderID: created.Order.ID,
		Action:  CancellationReject,
		Reason:  "transfer already dispatched",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, kept.Status)
	assert.False(t, kept.CancellationRequested)

	// Debit stays; the order continues its normal life.
	requireBalance(t, pool, ex, "898")

	// With the flag cleared there is nothing left to resolve.
	_, err = orderSvc.ResolveCancellation(ctx, ResolveCancellationRequest{
		OrderID: created.Order.ID,
		Action:  CancellationApprove,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestCancellationRequestOnTerminalOrderFails(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "100"))
	require.NoError(t, err)
	_, err = orderSvc.ResolveReview(ctx, ResolveReviewRequest{
		OrderID: created.Order.ID,
		Action:  ReviewReject,
		Reason:  "bad details",
	})
	require.NoError(t, err)

	_, err = orderSvc.RequestCancellation(ctx, RequestCancellationRequest{OrderID: created.Order.ID})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestListOrdersNewestFirst(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	ex := createTestExchange(t, store, "1000", percentPolicy("1.5"), fixedPolicy("2"))
	orderSvc := NewOrderService(store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := orderSvc.CreateOrder(ctx, incomingRequest(ex.ID, "50"))
		require.NoError(t, err)
	}

	orders, err := orderSvc.ListOrders(ctx, ex.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.False(t, orders[0].CreatedAt.Before(orders[1].CreatedAt))

	rest, err := orderSvc.ListOrders(ctx, ex.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestCreateOutgoingOrderRejectedWhenOverdrawn(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	svc := NewExchangeService(store)
	ctx := context.Background()

	ex, err := svc.CreateExchange(ctx, CreateExchangeRequest{
		Name:                 "Zarqa Exchange",
		OpeningBalance:       decimal.RequireFromString("100"),
		AllowNegativeBalance: false,
		IncomingCommission:   percentPolicy("1.5"),
		OutgoingCommission:   fixedPolicy("2"),
		AllowedOutgoingBanks: []string{"Jordan Kuwait Bank"},
	})
	require.NoError(t, err)

	orderSvc := NewOrderService(store, nil)

	// 150 plus the 2 JOD commission overdraws the 100 balance.
	_, err = orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "150"))
	require.Error(t, err)
	assert.Equal(t, domain.KindPolicyViolation, domain.KindOf(err))

	// The rejected debit leaves no trace: no order row, no ledger entry,
	// balance untouched.
	requireBalance(t, pool, ex, "100")
	var orderCount, entryCount int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&orderCount))
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE order_id IS NOT NULL").Scan(&entryCount))
	assert.Zero(t, orderCount)
	assert.Zero(t, entryCount)

	// An order the balance covers still goes through.
	created, err := orderSvc.CreateOrder(ctx, outgoingRequest(ex.ID, "50"))
	require.NoError(t, err)
	require.True(t, created.NewBalance.Equal(decimal.RequireFromString("48")),
		"new balance: got %s", created.NewBalance)
	requireLedgerConsistent(t, pool)
}
