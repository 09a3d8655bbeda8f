package domain

import (
	"time"
)

// Direction distinguishes money flowing into the exchange's customers
// (INCOMING) from transfers the exchange sends out via CliQ (OUTGOING).
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// Status is the order lifecycle state. The transition table below is the
// single authority on what moves are legal; nothing else in the codebase
// compares statuses to decide a transition.
type Status string

const (
	StatusSubmitted     Status = "SUBMITTED"
	StatusPendingReview Status = "PENDING_REVIEW"
	// StatusApproved exists only for rows imported from the legacy flow.
	// No action produces it; approval moves straight to PROCESSING.
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

var orderTransitions = map[Status]map[Status]struct{}{
	StatusSubmitted: {
		StatusProcessing: {},
		StatusRejected:   {},
		StatusCancelled:  {},
	},
	StatusPendingReview: {
		StatusProcessing: {},
		StatusRejected:   {},
		StatusCancelled:  {},
	},
	StatusApproved: {
		StatusProcessing: {},
	},
	StatusProcessing: {
		StatusCompleted: {},
		StatusCancelled: {},
	},
	StatusCompleted: {},
	StatusRejected:  {},
	StatusCancelled: {},
}

// CanTransition reports whether current -> next is a legal move. Unknown
// statuses and self-transitions are illegal.
func CanTransition(current, next Status) bool {
	nextStates, ok := orderTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// Terminal statuses accept no further actions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Reviewable statuses accept an admin approve/reject decision.
func (s Status) Reviewable() bool {
	return s == StatusSubmitted || s == StatusPendingReview
}

// UrgencyThreshold is how long a SUBMITTED order may sit unreviewed before
// it is flagged urgent.
const UrgencyThreshold = 2 * time.Hour

// Urgent derives the urgency flag on read. It is never persisted.
func Urgent(status Status, createdAt, now time.Time) bool {
	if !status.Reviewable() {
		return false
	}
	return now.Sub(createdAt) > UrgencyThreshold
}

// Ledger entry directions and reasons. Entries are append-only; the reason
// ties each balance mutation back to the lifecycle event that caused it.
const (
	EntryDebit  = "debit"
	EntryCredit = "credit"

	ReasonOrderDebit         = "order_debit"
	ReasonOrderCredit        = "order_credit"
	ReasonCancellationRefund = "cancellation_refund"
	ReasonOpeningBalance     = "opening_balance"
)
