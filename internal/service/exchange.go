package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/models"
	"github.com/qaddoumi/tahweel/internal/repository"
)

// ExchangeService manages exchange-office accounts and their configuration.
// Commission and bank changes only affect orders created afterwards; every
// existing order froze its numbers at creation.
type ExchangeService struct {
	store QueryStore
	audit *AuditService
}

func NewExchangeService(store QueryStore) *ExchangeService {
	return &ExchangeService{
		store: store,
		audit: NewAuditService(store),
	}
}

type CreateExchangeRequest struct {
	Name                 string
	OpeningBalance       decimal.Decimal
	AllowNegativeBalance bool
	IncomingCommission   domain.CommissionPolicy
	OutgoingCommission   domain.CommissionPolicy
	AllowedIncomingBanks []string
	AllowedOutgoingBanks []string
	ActorID              *uuid.UUID
}

func (r CreateExchangeRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return domain.Validationf("name is required")
	}
	// Opening balances may be negative (an exchange can start in debt),
	// but must still be representable at JOD precision.
	if !r.OpeningBalance.Equal(domain.RoundJOD(r.OpeningBalance)) {
		return domain.Validationf("opening_balance must have at most %d decimal places", domain.MinorUnits)
	}
	if err := r.IncomingCommission.Validate(); err != nil {
		return err
	}
	return r.OutgoingCommission.Validate()
}

// CreateExchange creates the account and, when the opening balance is not
// zero, the matching opening ledger entry, so balance always equals the
// ledger net from the very first row.
func (s *ExchangeService) CreateExchange(ctx context.Context, req CreateExchangeRequest) (*models.Exchange, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var ex models.Exchange
	exchangeID := uuid.New()
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		ex, err = qtx.CreateExchange(ctx, repository.CreateExchangeParams{
			ID:                   repository.ToPgUUID(exchangeID),
			Name:                 strings.TrimSpace(req.Name),
			Balance:              req.OpeningBalance,
			AllowNegativeBalance: req.AllowNegativeBalance,
			IncomingCommission:   req.IncomingCommission,
			OutgoingCommission:   req.OutgoingCommission,
			AllowedIncomingBanks: normalizeBanks(req.AllowedIncomingBanks),
			AllowedOutgoingBanks: normalizeBanks(req.AllowedOutgoingBanks),
		})
		if err != nil {
			return fmt.Errorf("create exchange: %w", err)
		}

		if !req.OpeningBalance.IsZero() {
			direction := domain.EntryCredit
			amount := req.OpeningBalance
			if amount.IsNegative() {
				direction = domain.EntryDebit
				amount = amount.Neg()
			}
			if err := qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
				ID:         repository.ToPgUUID(uuid.New()),
				ExchangeID: repository.ToPgUUID(exchangeID),
				Amount:     amount,
				Direction:  direction,
				Reason:     domain.ReasonOpeningBalance,
			}); err != nil {
				return fmt.Errorf("insert opening ledger entry: %w", err)
			}
		}

		return s.audit.Write(ctx, qtx, "exchange", exchangeID, req.ActorID, "created", "", "", nil)
	})
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (s *ExchangeService) GetExchange(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	ex, err := s.store.Queries().GetExchange(ctx, repository.ToPgUUID(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundf("exchange %s not found", id)
		}
		return nil, fmt.Errorf("get exchange: %w", err)
	}
	return &ex, nil
}

// UpdateCommission replaces one direction's commission policy.
func (s *ExchangeService) UpdateCommission(ctx context.Context, id uuid.UUID, direction domain.Direction, policy domain.CommissionPolicy, actorID *uuid.UUID) error {
	if !direction.Valid() {
		return domain.Validationf("direction must be INCOMING or OUTGOING")
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.UpdateExchangeCommission(ctx, repository.UpdateExchangeCommissionParams{
			ID:        repository.ToPgUUID(id),
			Direction: direction,
			Policy:    policy,
		})
		if err != nil {
			return fmt.Errorf("update commission: %w", err)
		}
		if rows == 0 {
			return domain.NotFoundf("exchange %s not found", id)
		}

		metadata := []byte(fmt.Sprintf(`{"direction":%q,"kind":%q,"value":%q}`, direction, policy.Kind, policy.Value))
		return s.audit.Write(ctx, qtx, "exchange", id, actorID, "commission_updated", "", "", metadata)
	})
}

// UpdateBanks replaces one direction's allowed-bank set.
func (s *ExchangeService) UpdateBanks(ctx context.Context, id uuid.UUID, direction domain.Direction, banks []string, actorID *uuid.UUID) error {
	if !direction.Valid() {
		return domain.Validationf("direction must be INCOMING or OUTGOING")
	}

	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.UpdateExchangeBanks(ctx, repository.UpdateExchangeBanksParams{
			ID:        repository.ToPgUUID(id),
			Direction: direction,
			Banks:     normalizeBanks(banks),
		})
		if err != nil {
			return fmt.Errorf("update banks: %w", err)
		}
		if rows == 0 {
			return domain.NotFoundf("exchange %s not found", id)
		}
		return s.audit.Write(ctx, qtx, "exchange", id, actorID, "banks_updated", "", "", nil)
	})
}

func normalizeBanks(banks []string) []string {
	out := make([]string, 0, len(banks))
	seen := make(map[string]struct{}, len(banks))
	for _, b := range banks {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		key := strings.ToLower(b)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b)
	}
	return out
}
