package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qaddoumi/tahweel/internal/domain"
)

// Exchange is a tenant exchange office holding a running JOD balance.
// Balance is mutated only through the ledger inside a row-locked transaction.
type Exchange struct {
	ID                   uuid.UUID               `json:"id"`
	Name                 string                  `json:"name"`
	Balance              decimal.Decimal         `json:"balance"`
	AllowNegativeBalance bool                    `json:"allow_negative_balance"`
	IncomingCommission   domain.CommissionPolicy `json:"incoming_commission"`
	OutgoingCommission   domain.CommissionPolicy `json:"outgoing_commission"`
	AllowedIncomingBanks []string                `json:"allowed_incoming_banks"`
	AllowedOutgoingBanks []string                `json:"allowed_outgoing_banks"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// Order is a single money-transfer request. Amount, commission and net amount
// are frozen at creation; status changes only through the transition table.
// Rows are never deleted.
type Order struct {
	ID                    uuid.UUID        `json:"id"`
	OrderNumber           string           `json:"order_number"`
	ExchangeID            uuid.UUID        `json:"exchange_id"`
	Direction             domain.Direction `json:"direction"`
	Status                domain.Status    `json:"status"`
	Amount                decimal.Decimal  `json:"amount"`
	Commission            decimal.Decimal  `json:"commission"`
	NetAmount             decimal.Decimal  `json:"net_amount"`
	SenderName            *string          `json:"sender_name,omitempty"`
	RecipientName         *string          `json:"recipient_name,omitempty"`
	BankName              *string          `json:"bank_name,omitempty"`
	CliqAliasName         *string          `json:"cliq_alias_name,omitempty"`
	CliqMobileNumber      *string          `json:"cliq_mobile_number,omitempty"`
	PaymentProofRef       *string          `json:"payment_proof_ref,omitempty"`
	CompletionProofRef    *string          `json:"completion_proof_ref,omitempty"`
	RejectionReason       *string          `json:"rejection_reason,omitempty"`
	CancellationRequested bool             `json:"cancellation_requested"`
	CancellationReason    *string          `json:"cancellation_reason,omitempty"`
	// Urgent is derived on every read and never stored.
	Urgent      bool       `json:"urgent"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RefreshUrgency recomputes the derived urgency flag against now.
func (o *Order) RefreshUrgency(now time.Time) {
	o.Urgent = domain.Urgent(o.Status, o.CreatedAt, now)
}

// LedgerEntry records one balance mutation. Amount is always non-negative;
// Direction carries the sign.
type LedgerEntry struct {
	ID         uuid.UUID       `json:"id"`
	ExchangeID uuid.UUID       `json:"exchange_id"`
	OrderID    *uuid.UUID      `json:"order_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Direction  string          `json:"direction"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}
