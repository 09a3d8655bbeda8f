package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/proofstore"
	"github.com/qaddoumi/tahweel/internal/service"
)

const maxProofSize = 5 << 20 // 5 MiB

// OrderHandler handles HTTP requests for transfer orders.
type OrderHandler struct {
	orders *service.OrderService
	proofs proofstore.Store
}

func NewOrderHandler(orders *service.OrderService, proofs proofstore.Store) *OrderHandler {
	return &OrderHandler{orders: orders, proofs: proofs}
}

type createOrderBody struct {
	ExchangeID        string `json:"exchange_id"`
	Direction         string `json:"direction"`
	Amount            string `json:"amount"`
	SenderName        string `json:"sender_name"`
	RecipientName     string `json:"recipient_name"`
	BankName          string `json:"bank_name"`
	CliqBankAliasName string `json:"cliq_bank_alias_name"`
	CliqMobileNumber  string `json:"cliq_mobile_number"`
}

// CreateOrder handles POST /v1/orders.
//
// Outgoing orders arrive as JSON. Incoming orders arrive as multipart form
// data carrying the payment proof image, which is stored before the order is
// created so the order always references an existing proof.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	scope, err := exchangeScope(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var body createOrderBody
	var proofRef string

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxProofSize); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-multipart", "Invalid multipart form")
			return
		}
		body = createOrderBody{
			ExchangeID:        r.FormValue("exchange_id"),
			Direction:         r.FormValue("direction"),
			Amount:            r.FormValue("amount"),
			SenderName:        r.FormValue("sender_name"),
			RecipientName:     r.FormValue("recipient_name"),
			BankName:          r.FormValue("bank_name"),
			CliqBankAliasName: r.FormValue("cliq_bank_alias_name"),
			CliqMobileNumber:  r.FormValue("cliq_mobile_number"),
		}
		ref, ok := h.saveProofUpload(w, r, "payment_proof")
		if !ok {
			return
		}
		proofRef = ref
	} else {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
			return
		}
	}

	exchangeID := scope
	if body.ExchangeID != "" {
		parsed, err := uuid.Parse(body.ExchangeID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-exchange-id", "Invalid exchange_id")
			return
		}
		if scope != uuid.Nil && parsed != scope {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "cannot create orders for another exchange")
			return
		}
		exchangeID = parsed
	}
	if exchangeID == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-exchange-id", "exchange_id is required")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal number")
		return
	}

	created, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		ExchangeID:        exchangeID,
		Direction:         domain.Direction(strings.ToUpper(strings.TrimSpace(body.Direction))),
		Amount:            amount,
		SenderName:        body.SenderName,
		RecipientName:     body.RecipientName,
		BankName:          body.BankName,
		CliqBankAliasName: body.CliqBankAliasName,
		CliqMobileNumber:  body.CliqMobileNumber,
		PaymentProofRef:   proofRef,
		ActorID:           &actorID,
	})
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	RespondJSON(w, http.StatusCreated, map[string]any{
		"order":       created.Order,
		"new_balance": created.NewBalance,
	})
}

// GetOrder handles GET /v1/orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	scope, err := exchangeScope(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	if scope != uuid.Nil && order.ExchangeID != scope {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /v1/orders?exchange_id=&limit=&offset=.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	scope, err := exchangeScope(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	exchangeID := scope
	if v := strings.TrimSpace(r.URL.Query().Get("exchange_id")); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-exchange-id", "Invalid exchange_id")
			return
		}
		if scope != uuid.Nil && parsed != scope {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
			return
		}
		exchangeID = parsed
	}
	if exchangeID == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-exchange-id", "exchange_id is required")
		return
	}

	limit := int32(50)
	offset := int32(0)
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return
		}
		limit = int32(parsed)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return
		}
		offset = int32(parsed)
	}

	orders, err := h.orders.ListOrders(r.Context(), exchangeID, limit, offset)
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  orders,
		"limit":  limit,
		"offset": offset,
		"count":  len(orders),
	})
}

type reviewOrderBody struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// ReviewOrder handles POST /v1/orders/{id}/review (admin only).
func (h *OrderHandler) ReviewOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	var body reviewOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	order, err := h.orders.ResolveReview(r.Context(), service.ResolveReviewRequest{
		OrderID: orderID,
		Action:  service.ReviewAction(body.Action),
		Reason:  body.Reason,
		ActorID: &actorID,
	})
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

type completeOrderBody struct {
	ActualAmount *string `json:"actual_amount,omitempty"`
}

// CompleteOrder handles POST /v1/orders/{id}/complete (admin only).
//
// Completing an outgoing order requires a multipart upload with the transfer
// receipt under "completion_proof". Completing an incoming order takes a JSON
// body with an optional actual_amount override.
func (h *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	req := service.CompleteOrderRequest{OrderID: orderID, ActorID: &actorID}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxProofSize); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-multipart", "Invalid multipart form")
			return
		}
		ref, ok := h.saveProofUpload(w, r, "completion_proof")
		if !ok {
			return
		}
		req.CompletionProofRef = &ref
	} else {
		var body completeOrderBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
			return
		}
		if body.ActualAmount != nil {
			amount, err := decimal.NewFromString(strings.TrimSpace(*body.ActualAmount))
			if err != nil {
				RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "actual_amount must be a decimal number")
				return
			}
			req.ActualAmount = &amount
		}
	}

	order, err := h.orders.CompleteOrder(r.Context(), req)
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

type cancellationBody struct {
	Reason string `json:"reason"`
}

// RequestCancellation handles POST /v1/orders/{id}/cancellation.
func (h *OrderHandler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	scope, err := exchangeScope(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	if scope != uuid.Nil {
		existing, err := h.orders.GetOrder(r.Context(), orderID)
		if err != nil {
			RespondDomainError(w, r, err, "order")
			return
		}
		if existing.ExchangeID != scope {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
			return
		}
	}

	var body cancellationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	order, err := h.orders.RequestCancellation(r.Context(), service.RequestCancellationRequest{
		OrderID: orderID,
		Reason:  body.Reason,
		ActorID: &actorID,
	})
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	RespondJSON(w, http.StatusAccepted, order)
}

// ResolveCancellation handles POST /v1/orders/{id}/cancellation/resolve (admin only).
func (h *OrderHandler) ResolveCancellation(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	var body reviewOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	order, err := h.orders.ResolveCancellation(r.Context(), service.ResolveCancellationRequest{
		OrderID: orderID,
		Action:  service.CancellationAction(body.Action),
		Reason:  body.Reason,
		ActorID: &actorID,
	})
	if err != nil {
		RespondDomainError(w, r, err, "order")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

// GetProof handles GET /v1/proofs/{ref}: streams a stored proof image back.
func (h *OrderHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	content, err := h.proofs.Load(r.Context(), ref)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "proof/not-found", "Proof not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(content))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// saveProofUpload reads, sniffs and stores an uploaded proof image. On
// failure it writes the error response and returns ok=false.
func (h *OrderHandler) saveProofUpload(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-proof", field+" file is required")
		return "", false
	}
	defer file.Close()

	if header.Size > maxProofSize {
		RespondError(w, r, http.StatusRequestEntityTooLarge, "request/proof-too-large", "proof image exceeds 5 MiB")
		return "", false
	}

	content, err := io.ReadAll(io.LimitReader(file, maxProofSize+1))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-proof", "failed to read proof upload")
		return "", false
	}
	if len(content) > maxProofSize {
		RespondError(w, r, http.StatusRequestEntityTooLarge, "request/proof-too-large", "proof image exceeds 5 MiB")
		return "", false
	}

	switch http.DetectContentType(content) {
	case "image/png", "image/jpeg":
	default:
		RespondError(w, r, http.StatusUnsupportedMediaType, "request/unsupported-proof-type", "proof must be a PNG or JPEG image")
		return "", false
	}

	ref, err := h.proofs.Save(r.Context(), header.Filename, content)
	if err != nil {
		zap.L().Error("proof save failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "proof/save-failed", "failed to store proof")
		return "", false
	}
	return ref, true
}
