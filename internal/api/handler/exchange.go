package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/service"
)

// ExchangeHandler handles HTTP requests for exchange offices.
type ExchangeHandler struct {
	exchanges *service.ExchangeService
}

func NewExchangeHandler(exchanges *service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchanges: exchanges}
}

type commissionBody struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (b commissionBody) policy() (domain.CommissionPolicy, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(b.Value))
	if err != nil {
		return domain.CommissionPolicy{}, domain.Validationf("commission value must be a decimal number")
	}
	return domain.CommissionPolicy{
		Kind:  domain.CommissionKind(strings.ToUpper(strings.TrimSpace(b.Kind))),
		Value: value,
	}, nil
}

type createExchangeBody struct {
	Name                 string         `json:"name"`
	OpeningBalance       string         `json:"opening_balance"`
	AllowNegativeBalance *bool          `json:"allow_negative_balance,omitempty"`
	IncomingCommission   commissionBody `json:"incoming_commission"`
	OutgoingCommission   commissionBody `json:"outgoing_commission"`
	AllowedIncomingBanks []string       `json:"allowed_incoming_banks"`
	AllowedOutgoingBanks []string       `json:"allowed_outgoing_banks"`
}

// CreateExchange handles POST /v1/exchanges (admin only).
func (h *ExchangeHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var body createExchangeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	opening := decimal.Zero
	if strings.TrimSpace(body.OpeningBalance) != "" {
		opening, err = decimal.NewFromString(strings.TrimSpace(body.OpeningBalance))
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-opening-balance", "opening_balance must be a decimal number")
			return
		}
	}

	incoming, err := body.IncomingCommission.policy()
	if err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}
	outgoing, err := body.OutgoingCommission.policy()
	if err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}

	// Negative running balances are the norm for this business, so the
	// flag defaults to permissive unless explicitly disabled.
	allowNegative := true
	if body.AllowNegativeBalance != nil {
		allowNegative = *body.AllowNegativeBalance
	}

	ex, err := h.exchanges.CreateExchange(r.Context(), service.CreateExchangeRequest{
		Name:                 body.Name,
		OpeningBalance:       opening,
		AllowNegativeBalance: allowNegative,
		IncomingCommission:   incoming,
		OutgoingCommission:   outgoing,
		AllowedIncomingBanks: body.AllowedIncomingBanks,
		AllowedOutgoingBanks: body.AllowedOutgoingBanks,
		ActorID:              &actorID,
	})
	if err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}

	RespondJSON(w, http.StatusCreated, ex)
}

// GetExchange handles GET /v1/exchanges/{id}.
func (h *ExchangeHandler) GetExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-exchange-id", "Invalid exchange ID")
		return
	}

	scope, err := exchangeScope(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	if scope != uuid.Nil && exchangeID != scope {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	ex, err := h.exchanges.GetExchange(r.Context(), exchangeID)
	if err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}

	RespondJSON(w, http.StatusOK, ex)
}

type updateCommissionBody struct {
	Direction string `json:"direction"`
	commissionBody
}

// UpdateCommission handles PUT /v1/exchanges/{id}/commission (admin only).
func (h *ExchangeHandler) UpdateCommission(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	exchangeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-exchange-id", "Invalid exchange ID")
		return
	}

	var body updateCommissionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	policy, err := body.policy()
	if err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}

	direction := domain.Direction(strings.ToUpper(strings.TrimSpace(body.Direction)))
	if err := h.exchanges.UpdateCommission(r.Context(), exchangeID, direction, policy, &actorID); err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type updateBanksBody struct {
	Direction string   `json:"direction"`
	Banks     []string `json:"banks"`
}

// UpdateBanks handles PUT /v1/exchanges/{id}/banks (admin only).
func (h *ExchangeHandler) UpdateBanks(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	exchangeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-exchange-id", "Invalid exchange ID")
		return
	}

	var body updateBanksBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	direction := domain.Direction(strings.ToUpper(strings.TrimSpace(body.Direction)))
	if err := h.exchanges.UpdateBanks(r.Context(), exchangeID, direction, body.Banks, &actorID); err != nil {
		RespondDomainError(w, r, err, "exchange")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
